package services

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsecrm/syncd/internal/domain/ports"
	"github.com/pulsecrm/syncd/internal/infrastructure/database"
	"github.com/pulsecrm/syncd/pkg/constants"
)

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	db *database.Connection

	Auth         *AuthService
	Rules        *PriorityRuleEngine
	Upstream     ports.Deliverer
	Sync         *SyncService
	Connectivity *ConnectivityMonitor
	Janitor      *Janitor
	Metrics      *Metrics
}

// NewServiceManager creates a new service manager with all dependencies wired.
// Configuration comes from the environment (loaded from .env by main).
func NewServiceManager(db *database.Connection) *ServiceManager {
	sm := &ServiceManager{db: db}

	sm.Metrics = NewMetrics(prometheus.DefaultRegisterer)
	sm.Auth = NewAuthService(db)

	sm.Rules = NewPriorityRuleEngine()
	if path := os.Getenv("SYNCD_PRIORITY_RULES"); path != "" {
		if err := sm.Rules.LoadFile(path); err != nil {
			log.Printf("⚠️ Warning: failed to load priority rules from %s: %v", path, err)
		}
	}

	sm.Upstream = NewUpstreamClient(UpstreamConfig{
		BaseURL:       os.Getenv("UPSTREAM_BASE_URL"),
		ServiceToken:  os.Getenv("UPSTREAM_SERVICE_TOKEN"),
		Timeout:       envDuration("UPSTREAM_TIMEOUT_SECONDS", 15) * time.Second,
		RatePerSecond: envFloat("UPSTREAM_RATE_PER_SECOND", 20),
		Burst:         int(envFloat("UPSTREAM_RATE_BURST", 10)),
	})

	sm.Sync = NewSyncService(db, sm.Upstream, sm.Rules, sm.Metrics)

	probeInterval := envDuration("SYNCD_PROBE_INTERVAL_SECONDS", constants.ConnectivityProbeIntervalSeconds) * time.Second
	sm.Connectivity = NewConnectivityMonitor(sm.Upstream, probeInterval)
	sm.Connectivity.SetOnOnline(func() { sm.Sync.TriggerFlush() })
	sm.Sync.SetConnectivity(sm.Connectivity)

	retention := envDuration("SYNCD_RETENTION_HOURS", constants.DeliveredRetentionHours) * time.Hour
	sm.Janitor = NewJanitor(sm.Sync, retention)

	return sm
}

// Start launches the background workers
func (sm *ServiceManager) Start() error {
	sm.Connectivity.Start()
	return sm.Janitor.Start()
}

// Stop shuts the background workers down gracefully
func (sm *ServiceManager) Stop() {
	sm.Connectivity.Stop()
	sm.Janitor.Stop()
}

func envDuration(key string, fallback int) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return time.Duration(v)
		}
	}
	return time.Duration(fallback)
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
