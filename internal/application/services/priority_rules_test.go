package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/syncd/internal/domain/models"
	"github.com/pulsecrm/syncd/pkg/constants"
)

const testRules = `
rules:
  - when: 'op == "delete"'
    priority: 8
  - when: 'entity == "opportunities" && has_entity_id'
    priority: 7
  - when: 'entity == "notes"'
    priority: 2
`

func TestPriorityRules_FirstMatchWins(t *testing.T) {
	engine := NewPriorityRuleEngine()
	require.NoError(t, engine.Load([]byte(testRules)))

	// A delete on notes hits the delete rule before the notes rule
	m := &models.Mutation{Operation: models.OpDelete, Entity: "notes", EntityID: "n-1"}
	assert.Equal(t, 8, engine.Assign(m))

	m = &models.Mutation{Operation: models.OpUpdate, Entity: "opportunities", EntityID: "o-1"}
	assert.Equal(t, 7, engine.Assign(m))

	m = &models.Mutation{Operation: models.OpCreate, Entity: "notes"}
	assert.Equal(t, 2, engine.Assign(m))
}

func TestPriorityRules_DefaultWhenNoMatch(t *testing.T) {
	engine := NewPriorityRuleEngine()
	require.NoError(t, engine.Load([]byte(testRules)))

	m := &models.Mutation{Operation: models.OpCreate, Entity: "contacts"}
	assert.Equal(t, constants.DefaultPriority, engine.Assign(m))
}

func TestPriorityRules_EmptyEngineUsesDefault(t *testing.T) {
	engine := NewPriorityRuleEngine()
	m := &models.Mutation{Operation: models.OpCreate, Entity: "contacts"}
	assert.Equal(t, constants.DefaultPriority, engine.Assign(m))
}

func TestPriorityRules_RejectsBadExpression(t *testing.T) {
	engine := NewPriorityRuleEngine()
	err := engine.Load([]byte("rules:\n  - when: 'entity ==='\n    priority: 3\n"))
	assert.Error(t, err)
}

func TestPriorityRules_RejectsOutOfRangePriority(t *testing.T) {
	engine := NewPriorityRuleEngine()
	err := engine.Load([]byte("rules:\n  - when: 'true'\n    priority: 42\n"))
	assert.ErrorContains(t, err, "out of range")
}

func TestPriorityRules_BadLoadKeepsOldRules(t *testing.T) {
	engine := NewPriorityRuleEngine()
	require.NoError(t, engine.Load([]byte(testRules)))
	require.Error(t, engine.Load([]byte("rules:\n  - when: ''\n    priority: 1\n")))

	m := &models.Mutation{Operation: models.OpDelete, Entity: "contacts", EntityID: "c-1"}
	assert.Equal(t, 8, engine.Assign(m))
}
