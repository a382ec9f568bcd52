package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pulsecrm/syncd/internal/domain/models"
	"github.com/pulsecrm/syncd/pkg/constants"
)

// DeviceRepository handles database operations for registered devices
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new DeviceRepository
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts a new device row
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, platform, secret_hash, created_date, last_modified_date)
		VALUES (?, ?, ?, ?, NOW(6), NOW(6))
	`, constants.TableDevice)

	_, err := r.db.ExecContext(ctx, query, d.ID, d.Name, d.Platform, d.SecretHash)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// GetByID fetches a device by id. Returns nil, nil when absent.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	query := fmt.Sprintf(`
		SELECT id, name, platform, secret_hash, created_date, last_seen_date
		FROM %s
		WHERE id = ?
		LIMIT 1
	`, constants.TableDevice)

	var d models.Device
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &d.Platform, &d.SecretHash, &d.CreatedDate, &d.LastSeenDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device: %w", err)
	}
	return &d, nil
}

// TouchLastSeen updates the device's last activity timestamp
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET last_seen_date = NOW(6) WHERE id = ?
	`, constants.TableDevice)

	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
