package services

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/pulsecrm/syncd/internal/domain/models"
	"github.com/pulsecrm/syncd/pkg/constants"
)

// PriorityRule maps a boolean expression over an incoming mutation to the
// priority it should be queued with. Rules are evaluated in file order; the
// first match wins.
type PriorityRule struct {
	When     string `yaml:"when"`
	Priority int    `yaml:"priority"`
}

type priorityRuleFile struct {
	Rules []PriorityRule `yaml:"rules"`
}

// PriorityRuleEngine assigns flush priorities to incoming mutations using
// expr expressions. Compiled programs are cached per rule.
type PriorityRuleEngine struct {
	rules    []PriorityRule
	programs map[string]*vm.Program
	mu       sync.RWMutex
}

// ruleEnv is the environment a rule expression sees
type ruleEnv struct {
	Op       string `expr:"op"`
	Entity   string `expr:"entity"`
	DeviceID string `expr:"device_id"`
	HasID    bool   `expr:"has_entity_id"`
}

// NewPriorityRuleEngine creates an engine with no rules; every mutation gets
// the default priority until rules are loaded.
func NewPriorityRuleEngine() *PriorityRuleEngine {
	return &PriorityRuleEngine{
		programs: make(map[string]*vm.Program),
	}
}

// LoadFile reads and compiles a YAML rules file. Invalid expressions fail the
// whole load so a bad deploy is caught at startup, not at enqueue time.
func (e *PriorityRuleEngine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read priority rules: %w", err)
	}
	return e.Load(data)
}

// Load parses and compiles rules from YAML bytes
func (e *PriorityRuleEngine) Load(data []byte) error {
	var file priorityRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse priority rules: %w", err)
	}

	programs := make(map[string]*vm.Program, len(file.Rules))
	for i, rule := range file.Rules {
		if rule.When == "" {
			return fmt.Errorf("priority rule %d has an empty 'when' expression", i)
		}
		if rule.Priority < constants.MinPriority || rule.Priority > constants.MaxPriority {
			return fmt.Errorf("priority rule %d: priority %d out of range [%d,%d]",
				i, rule.Priority, constants.MinPriority, constants.MaxPriority)
		}

		program, err := expr.Compile(rule.When, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return fmt.Errorf("priority rule %d (%q): %w", i, rule.When, err)
		}
		programs[rule.When] = program
	}

	e.mu.Lock()
	e.rules = file.Rules
	e.programs = programs
	e.mu.Unlock()

	log.Printf("📐 Loaded %d priority rules", len(file.Rules))
	return nil
}

// Assign returns the priority for a mutation: the first matching rule's
// priority, or the default when nothing matches. Rule evaluation errors skip
// the rule rather than rejecting the mutation.
func (e *PriorityRuleEngine) Assign(m *models.Mutation) int {
	env := ruleEnv{
		Op:       string(m.Operation),
		Entity:   m.Entity,
		DeviceID: m.DeviceID,
		HasID:    m.EntityID != "",
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.rules {
		program, ok := e.programs[rule.When]
		if !ok {
			continue
		}
		output, err := expr.Run(program, env)
		if err != nil {
			log.Printf("⚠️ Priority rule %q failed: %v", rule.When, err)
			continue
		}
		if matched, ok := output.(bool); ok && matched {
			return rule.Priority
		}
	}

	return constants.DefaultPriority
}
