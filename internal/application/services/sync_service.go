package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsecrm/syncd/internal/domain/models"
	"github.com/pulsecrm/syncd/internal/domain/ports"
	"github.com/pulsecrm/syncd/internal/infrastructure/database"
	"github.com/pulsecrm/syncd/internal/infrastructure/persistence"
	"github.com/pulsecrm/syncd/pkg/constants"
	"github.com/pulsecrm/syncd/pkg/errors"
	"github.com/pulsecrm/syncd/pkg/utils"
)

// FlushReport summarises one flush pass
type FlushReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Attempted int           `json:"attempted"`
	Delivered int           `json:"delivered"`
	Retried   int           `json:"retried"`
	Dead      int           `json:"dead"`
	Skipped   int           `json:"skipped"`
}

// EnqueueRequest is a device's buffered intent as submitted over the API
type EnqueueRequest struct {
	Operation string          `json:"operation"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	Priority  *int            `json:"priority"`
}

// SyncService is the flush engine: it drains the durable mutation queue to
// the upstream CRM with at-least-once semantics.
//
// Exactly one flush runs at a time. A trigger while a flush is in progress
// is a no-op; the running pass will pick up anything enqueued meanwhile on
// its next batch.
type SyncService struct {
	db        *database.Connection
	repo      *persistence.QueueRepository
	deliverer ports.Deliverer
	rules     *PriorityRuleEngine
	metrics   *Metrics

	connectivity *ConnectivityMonitor

	flushing atomic.Bool

	reportMu   sync.RWMutex
	lastReport *FlushReport
}

// NewSyncService creates a new SyncService
func NewSyncService(db *database.Connection, deliverer ports.Deliverer, rules *PriorityRuleEngine, metrics *Metrics) *SyncService {
	return &SyncService{
		db:        db,
		repo:      persistence.NewQueueRepository(db.DB()),
		deliverer: deliverer,
		rules:     rules,
		metrics:   metrics,
	}
}

// SetConnectivity wires the monitor after construction (the monitor's
// online callback points back at TriggerFlush)
func (s *SyncService) SetConnectivity(m *ConnectivityMonitor) {
	s.connectivity = m
}

// Enqueue validates and persists a single mutation for the device
func (s *SyncService) Enqueue(ctx context.Context, deviceID string, req *EnqueueRequest) (*models.Mutation, error) {
	batch, err := s.EnqueueBatch(ctx, deviceID, []EnqueueRequest{*req})
	if err != nil {
		return nil, err
	}
	return batch[0], nil
}

// EnqueueBatch validates and persists a set of mutations all-or-nothing:
// every mutation is validated before any row is written and the inserts
// share one transaction, so a rejected batch leaves the queue untouched and
// a resubmitted batch never duplicates its leading entries. If the upstream
// is currently reachable an opportunistic flush is kicked off after commit.
func (s *SyncService) EnqueueBatch(ctx context.Context, deviceID string, reqs []EnqueueRequest) ([]*models.Mutation, error) {
	if len(reqs) == 0 {
		return nil, errors.NewValidationError("body", "expected a mutation or a 'mutations' batch")
	}

	mutations := make([]*models.Mutation, 0, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		m := &models.Mutation{
			DeviceID:  deviceID,
			Operation: models.Operation(req.Operation),
			Entity:    req.Entity,
			EntityID:  req.EntityID,
			Payload:   string(req.Payload),
			Status:    models.StatusPending,
		}

		if req.Priority != nil {
			m.Priority = *req.Priority
		} else {
			m.Priority = s.rules.Assign(m)
		}

		if err := m.Validate(); err != nil {
			return nil, errors.NewValidationError("mutation", err.Error())
		}
		mutations = append(mutations, m)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range mutations {
		id, err := s.repo.Enqueue(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		m.ID = id
		m.CreatedDate = time.Now()
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit enqueue: %w", err)
	}

	for _, m := range mutations {
		log.Printf("📥 Enqueued %s %s for device %s (priority %d, id %s)", m.Operation, m.Entity, deviceID, m.Priority, m.ID)
	}

	if s.connectivity != nil && s.connectivity.IsOnline() {
		go s.TriggerFlush()
	}

	return mutations, nil
}

// TriggerFlush starts a flush in the background unless one is already
// running. Returns true if a new flush was started.
func (s *SyncService) TriggerFlush() bool {
	if !s.flushing.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.FlushSkipped.Inc()
		}
		return false
	}

	go func() {
		defer s.flushing.Store(false)
		if _, err := s.flushLocked(context.Background()); err != nil {
			log.Printf("⚠️ Flush error: %v", err)
		}
	}()

	return true
}

// Flush runs a flush pass synchronously. A pass already in progress makes
// this a no-op returning (nil, nil).
func (s *SyncService) Flush(ctx context.Context) (*FlushReport, error) {
	if !s.flushing.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.FlushSkipped.Inc()
		}
		return nil, nil
	}
	defer s.flushing.Store(false)

	return s.flushLocked(ctx)
}

// flushLocked drains the queue in priority order. Caller holds the flush flag.
func (s *SyncService) flushLocked(ctx context.Context) (*FlushReport, error) {
	report := &FlushReport{StartedAt: time.Now()}

	for {
		batch, err := s.repo.GetPendingBatch(ctx, constants.FlushBatchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}

		log.Printf("🔄 Flushing %d pending mutations", len(batch))

		progressed := 0
		for _, m := range batch {
			outcome, err := s.deliverMutationAtomic(ctx, &m)
			if err != nil {
				log.Printf("⚠️ Failed to process mutation %s: %v", m.ID, err)
				continue
			}
			report.Attempted++
			switch outcome {
			case outcomeDelivered:
				report.Delivered++
				progressed++
				if s.metrics != nil {
					s.metrics.Delivered.Inc()
				}
			case outcomeRetried:
				report.Retried++
				if s.metrics != nil {
					s.metrics.Retried.Inc()
				}
			case outcomeDead:
				report.Dead++
				progressed++
				if s.metrics != nil {
					s.metrics.Dead.Inc()
				}
			case outcomeSkipped:
				report.Skipped++
			}

			if ctx.Err() != nil {
				report.Duration = time.Since(report.StartedAt)
				s.finishReport(report)
				return report, ctx.Err()
			}
		}

		// A pass where nothing left the pending set means every remaining
		// mutation just failed; stop instead of hammering the upstream.
		if progressed == 0 {
			break
		}
	}

	report.Duration = time.Since(report.StartedAt)
	s.finishReport(report)

	if report.Attempted > 0 {
		log.Printf("✅ Flush done in %v: %d delivered, %d retried, %d dead",
			report.Duration.Round(time.Millisecond), report.Delivered, report.Retried, report.Dead)
	}
	return report, nil
}

type deliveryOutcome int

const (
	outcomeSkipped deliveryOutcome = iota
	outcomeDelivered
	outcomeRetried
	outcomeDead
)

// deliverMutationAtomic claims a mutation, attempts upstream delivery, and
// records the result in one transaction. The claim uses FOR UPDATE SKIP
// LOCKED so concurrent replicas never double-send a row the database has
// already handed out.
//
// At-least-once: the upstream call happens before the local status update
// commits, so a crash in between yields a duplicate delivery on restart.
func (s *SyncService) deliverMutationAtomic(ctx context.Context, m *models.Mutation) (deliveryOutcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	claimed, claimedRetries, err := s.repo.Claim(ctx, tx, m.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to claim mutation: %w", err)
	}
	if !claimed {
		return outcomeSkipped, nil // Already claimed or resolved elsewhere
	}

	// A payload that no longer parses can never deliver
	if m.Payload != "" && !json.Valid([]byte(m.Payload)) {
		if markErr := s.repo.MarkDead(ctx, tx, m.ID, "invalid payload JSON"); markErr != nil {
			return outcomeSkipped, fmt.Errorf("failed to mark mutation dead: %w", markErr)
		}
		return outcomeDead, tx.Commit()
	}

	if err := s.deliverer.Deliver(ctx, m); err != nil {
		if ports.IsPermanent(err) {
			log.Printf("💀 Mutation %s rejected permanently: %v", m.ID, err)
			if markErr := s.repo.MarkDead(ctx, tx, m.ID, err.Error()); markErr != nil {
				return outcomeSkipped, fmt.Errorf("failed to mark mutation dead: %w", markErr)
			}
			return outcomeDead, tx.Commit()
		}

		// Escalate from the claimed row's count, not the batch snapshot:
		// another replica may have burned attempts since the fetch.
		newRetryCount := claimedRetries + 1
		if !models.Retryable(newRetryCount) {
			log.Printf("💀 Mutation %s dead after %d attempts: %v", m.ID, newRetryCount, err)
			if markErr := s.repo.MarkDead(ctx, tx, m.ID, fmt.Sprintf("max retries exceeded: %v", err)); markErr != nil {
				return outcomeSkipped, fmt.Errorf("failed to mark mutation dead: %w", markErr)
			}
			return outcomeDead, tx.Commit()
		}

		if updateErr := s.repo.IncrementRetry(ctx, tx, m.ID, newRetryCount, err.Error()); updateErr != nil {
			return outcomeSkipped, fmt.Errorf("failed to update retry count: %w", updateErr)
		}
		log.Printf("⚠️ Mutation %s failed (attempt %d/%d): %v", m.ID, newRetryCount, constants.MaxDeliveryAttempts, err)
		return outcomeRetried, tx.Commit()
	}

	if err := s.repo.MarkDelivered(ctx, tx, m.ID); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to mark mutation delivered: %w", err)
	}
	return outcomeDelivered, tx.Commit()
}

func (s *SyncService) finishReport(report *FlushReport) {
	if s.metrics != nil {
		s.metrics.FlushDuration.Observe(report.Duration.Seconds())
	}
	s.reportMu.Lock()
	s.lastReport = report
	s.reportMu.Unlock()
}

// LastReport returns the most recent flush report (nil if none yet)
func (s *SyncService) LastReport() *FlushReport {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.lastReport
}

// IsFlushing reports whether a flush pass is currently running
func (s *SyncService) IsFlushing() bool {
	return s.flushing.Load()
}

// List returns the device's queued mutations
func (s *SyncService) List(ctx context.Context, deviceID, status, entity string, limit int) ([]models.Mutation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if status != "" {
		switch models.Status(status) {
		case models.StatusPending, models.StatusDelivered, models.StatusDead:
		default:
			return nil, errors.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
		}
	}
	return s.repo.ListByDevice(ctx, deviceID, status, entity, limit)
}

// Retry revives a dead mutation for the device
func (s *SyncService) Retry(ctx context.Context, deviceID, id string) error {
	if !utils.IsValidUUID(id) {
		return errors.NewNotFoundError("mutation", id)
	}

	revived, err := s.repo.Revive(ctx, id, deviceID)
	if err != nil {
		return err
	}
	if !revived {
		return errors.NewConflictError("mutation", "not found for this device or not dead")
	}

	log.Printf("♻️ Mutation %s revived by device %s", id, deviceID)

	if s.connectivity != nil && s.connectivity.IsOnline() {
		go s.TriggerFlush()
	}
	return nil
}

// Cancel removes a still-pending mutation for the device
func (s *SyncService) Cancel(ctx context.Context, deviceID, id string) error {
	if !utils.IsValidUUID(id) {
		return errors.NewNotFoundError("mutation", id)
	}

	cancelled, err := s.repo.CancelPending(ctx, id, deviceID)
	if err != nil {
		return err
	}
	if !cancelled {
		return errors.NewConflictError("mutation", "not found for this device or no longer pending")
	}
	return nil
}

// StatusReport is the /api/sync/status payload
type StatusReport struct {
	Queue     *models.QueueStats `json:"queue"`
	Online    bool               `json:"online"`
	Flushing  bool               `json:"flushing"`
	LastProbe time.Time          `json:"last_probe,omitempty"`
	LastFlush *FlushReport       `json:"last_flush,omitempty"`
}

// Status assembles queue counts, connectivity state and the last flush report
func (s *SyncService) Status(ctx context.Context) (*StatusReport, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.QueueDepth.WithLabelValues(string(models.StatusPending)).Set(float64(stats.Pending))
		s.metrics.QueueDepth.WithLabelValues(string(models.StatusDelivered)).Set(float64(stats.Delivered))
		s.metrics.QueueDepth.WithLabelValues(string(models.StatusDead)).Set(float64(stats.Dead))
	}

	report := &StatusReport{
		Queue:     stats,
		Flushing:  s.IsFlushing(),
		LastFlush: s.LastReport(),
	}
	if s.connectivity != nil {
		report.Online = s.connectivity.IsOnline()
		report.LastProbe = s.connectivity.LastCheck()
	}
	return report, nil
}

// PurgeDelivered deletes delivered mutations older than the retention window
func (s *SyncService) PurgeDelivered(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.PurgeDelivered(ctx, time.Now().Add(-retention))
}
