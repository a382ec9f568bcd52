package bootstrap

import (
	"fmt"
	"log"

	"github.com/pulsecrm/syncd/internal/infrastructure/database"
	"github.com/pulsecrm/syncd/pkg/constants"
)

// InitializeSchema creates the syncd tables if they do not exist.
// The schema is fixed: a device registry and the durable mutation queue.
func InitializeSchema(db *database.Connection) error {
	deviceDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			platform VARCHAR(50) NOT NULL DEFAULT '',
			secret_hash VARCHAR(255) NOT NULL,
			created_date DATETIME(6) NOT NULL,
			last_modified_date DATETIME(6) NOT NULL,
			last_seen_date DATETIME(6) NULL
		)
	`, constants.TableDevice)

	if _, err := db.Exec(deviceDDL); err != nil {
		return fmt.Errorf("failed to create %s: %w", constants.TableDevice, err)
	}

	// idx_flush_order backs the hot path: pending rows drained by
	// priority DESC, created_date ASC.
	mutationDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			device_id VARCHAR(36) NOT NULL,
			operation VARCHAR(10) NOT NULL,
			entity VARCHAR(50) NOT NULL,
			entity_id VARCHAR(64) NOT NULL DEFAULT '',
			payload LONGTEXT,
			priority INT NOT NULL DEFAULT %d,
			status VARCHAR(12) NOT NULL DEFAULT 'pending',
			retry_count INT NOT NULL DEFAULT 0,
			last_error TEXT,
			created_date DATETIME(6) NOT NULL,
			last_modified_date DATETIME(6) NOT NULL,
			delivered_date DATETIME(6) NULL,
			INDEX idx_flush_order (status, priority DESC, created_date),
			INDEX idx_device (device_id, status)
		)
	`, constants.TableMutation, constants.DefaultPriority)

	if _, err := db.Exec(mutationDDL); err != nil {
		return fmt.Errorf("failed to create %s: %w", constants.TableMutation, err)
	}

	log.Println("✅ Schema initialized")
	return nil
}
