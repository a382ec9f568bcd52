package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pulsecrm/syncd/internal/domain/models"
	"github.com/pulsecrm/syncd/pkg/constants"
	"github.com/pulsecrm/syncd/pkg/utils"
)

// QueueRepository handles database operations for the durable mutation queue
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a new pending mutation and returns its id
func (r *QueueRepository) Enqueue(ctx context.Context, exec Executor, m *models.Mutation) (string, error) {
	id := utils.GenerateID()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, device_id, operation, entity, entity_id, payload, priority, status, retry_count, created_date, last_modified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NOW(6), NOW(6))
	`, constants.TableMutation)

	_, err := exec.ExecContext(ctx, query,
		id, m.DeviceID, string(m.Operation), m.Entity, m.EntityID, m.Payload, m.Priority, string(models.StatusPending))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	return id, nil
}

// GetPendingBatch retrieves pending mutations in flush order:
// priority descending, then creation time ascending (stable FIFO within a
// priority band).
func (r *QueueRepository) GetPendingBatch(ctx context.Context, limit int) ([]models.Mutation, error) {
	query := fmt.Sprintf(`
		SELECT id, device_id, operation, entity, entity_id, payload, priority, retry_count, created_date
		FROM %s
		WHERE status = ?
		ORDER BY priority DESC, created_date ASC
		LIMIT ?
	`, constants.TableMutation)

	rows, err := r.db.QueryContext(ctx, query, string(models.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending mutations: %w", err)
	}
	defer rows.Close()

	var batch []models.Mutation
	for rows.Next() {
		var m models.Mutation
		var op string
		if err := rows.Scan(&m.ID, &m.DeviceID, &op, &m.Entity, &m.EntityID, &m.Payload, &m.Priority, &m.RetryCount, &m.CreatedDate); err != nil {
			continue
		}
		m.Operation = models.Operation(op)
		m.Status = models.StatusPending
		batch = append(batch, m)
	}

	return batch, rows.Err()
}

// Claim attempts to lock a specific pending mutation for delivery and
// returns the row's current retry count, which may be ahead of the batch
// snapshot when another replica failed a delivery in between.
// Returns claimed=false if another worker already claimed or resolved it.
func (r *QueueRepository) Claim(ctx context.Context, exec Executor, id string) (claimed bool, retryCount int, err error) {
	query := fmt.Sprintf(`
		SELECT id, retry_count FROM %s
		WHERE id = ? AND status = ?
		FOR UPDATE SKIP LOCKED
	`, constants.TableMutation)

	var claimedID string
	err = exec.QueryRowContext(ctx, query, id, string(models.StatusPending)).Scan(&claimedID, &retryCount)
	if err == sql.ErrNoRows {
		return false, 0, nil // Already claimed
	}
	if err != nil {
		return false, 0, err
	}
	return true, retryCount, nil
}

// MarkDelivered records a successful upstream delivery
func (r *QueueRepository) MarkDelivered(ctx context.Context, exec Executor, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, last_error = '', delivered_date = NOW(6), last_modified_date = NOW(6)
		WHERE id = ?
	`, constants.TableMutation)

	_, err := exec.ExecContext(ctx, query, string(models.StatusDelivered), id)
	return err
}

// MarkDead parks a mutation permanently; only a manual retry revives it
func (r *QueueRepository) MarkDead(ctx context.Context, exec Executor, id string, errMessage string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, last_error = ?, last_modified_date = NOW(6)
		WHERE id = ?
	`, constants.TableMutation)

	_, err := exec.ExecContext(ctx, query, string(models.StatusDead), errMessage, id)
	return err
}

// IncrementRetry bumps the retry count and records the delivery error
func (r *QueueRepository) IncrementRetry(ctx context.Context, exec Executor, id string, newCount int, errMessage string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET retry_count = ?, last_error = ?, last_modified_date = NOW(6)
		WHERE id = ?
	`, constants.TableMutation)

	_, err := exec.ExecContext(ctx, query, newCount, errMessage, id)
	return err
}

// Revive resets a dead mutation to pending with a fresh retry budget.
// Returns false if the mutation was not dead (or does not exist).
func (r *QueueRepository) Revive(ctx context.Context, id string, deviceID string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, retry_count = 0, last_error = '', last_modified_date = NOW(6)
		WHERE id = ? AND device_id = ? AND status = ?
	`, constants.TableMutation)

	result, err := r.db.ExecContext(ctx, query, string(models.StatusPending), id, deviceID, string(models.StatusDead))
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// CancelPending deletes a not-yet-delivered mutation.
// Returns false if the mutation is no longer pending.
func (r *QueueRepository) CancelPending(ctx context.Context, id string, deviceID string) (bool, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = ? AND device_id = ? AND status = ?
	`, constants.TableMutation)

	result, err := r.db.ExecContext(ctx, query, id, deviceID, string(models.StatusPending))
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// ListByDevice returns a device's mutations, newest first, optionally
// filtered by status and entity
func (r *QueueRepository) ListByDevice(ctx context.Context, deviceID string, status string, entity string, limit int) ([]models.Mutation, error) {
	query := fmt.Sprintf(`
		SELECT id, device_id, operation, entity, entity_id, payload, priority, retry_count, last_error, status, created_date
		FROM %s
		WHERE device_id = ?
	`, constants.TableMutation)

	args := []interface{}{deviceID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if entity != "" {
		query += " AND entity = ?"
		args = append(args, entity)
	}
	query += " ORDER BY created_date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	var result []models.Mutation
	for rows.Next() {
		var m models.Mutation
		var op, st string
		if err := rows.Scan(&m.ID, &m.DeviceID, &op, &m.Entity, &m.EntityID, &m.Payload, &m.Priority, &m.RetryCount, &m.LastError, &st, &m.CreatedDate); err != nil {
			continue
		}
		m.Operation = models.Operation(op)
		m.Status = models.Status(st)
		result = append(result, m)
	}

	return result, rows.Err()
}

// PurgeDelivered deletes delivered mutations older than the cutoff
func (r *QueueRepository) PurgeDelivered(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE status = ? AND delivered_date < ?
	`, constants.TableMutation)

	result, err := r.db.ExecContext(ctx, query, string(models.StatusDelivered), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Stats returns a per-status census of the queue
func (r *QueueRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	query := fmt.Sprintf(`
		SELECT status, COUNT(*)
		FROM %s
		GROUP BY status
	`, constants.TableMutation)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	stats := &models.QueueStats{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			continue
		}
		switch models.Status(status) {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusDelivered:
			stats.Delivered = count
		case models.StatusDead:
			stats.Dead = count
		}
	}

	return stats, rows.Err()
}
