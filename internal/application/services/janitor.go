package services

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pulsecrm/syncd/pkg/constants"
)

// Janitor runs the periodic maintenance schedule: purging delivered
// mutations past retention and kicking a safety-net flush in case a
// connectivity transition was missed.
type Janitor struct {
	sync      *SyncService
	retention time.Duration
	cron      *cron.Cron
}

// NewJanitor creates a janitor for the sync service
func NewJanitor(syncSvc *SyncService, retention time.Duration) *Janitor {
	if retention <= 0 {
		retention = constants.DeliveredRetentionHours * time.Hour
	}
	return &Janitor{
		sync:      syncSvc,
		retention: retention,
		cron:      cron.New(),
	}
}

// Start registers and starts the cron schedule
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@hourly", j.purge); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc("@every 5m", j.kickFlush); err != nil {
		return err
	}

	j.cron.Start()
	log.Println("🧹 Janitor started (hourly purge, 5m flush kick)")
	return nil
}

// Stop halts the schedule and waits for running jobs
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Println("🧹 Janitor stopped")
}

func (j *Janitor) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := j.sync.PurgeDelivered(ctx, j.retention)
	if err != nil {
		log.Printf("⚠️ Janitor purge failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("🧹 Purged %d delivered mutations older than %v", purged, j.retention)
	}
}

func (j *Janitor) kickFlush() {
	if j.sync.connectivity != nil && !j.sync.connectivity.IsOnline() {
		return
	}
	j.sync.TriggerFlush()
}
