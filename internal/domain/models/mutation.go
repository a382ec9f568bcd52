package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsecrm/syncd/pkg/constants"
)

// Operation is the kind of change a device buffered while offline.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Status is the lifecycle state of a queued mutation.
//
//	pending   — waiting for delivery (retry_count may be > 0)
//	delivered — upstream accepted it; kept until the janitor purges it
//	dead      — retry ceiling reached or upstream rejected it permanently;
//	            only a manual retry revives it
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusDead      Status = "dead"
)

// Mutation is a persisted create/update/delete intent captured by a device
// while offline, awaiting at-least-once delivery to the upstream CRM.
type Mutation struct {
	ID            string       `json:"id"`
	DeviceID      string       `json:"device_id"`
	Operation     Operation    `json:"operation"`
	Entity        string       `json:"entity"`
	EntityID      string       `json:"entity_id,omitempty"`
	Payload       string       `json:"payload,omitempty"`
	Priority      int          `json:"priority"`
	RetryCount    int          `json:"retry_count"`
	LastError     string       `json:"last_error,omitempty"`
	Status        Status       `json:"status"`
	CreatedDate   time.Time    `json:"created_date"`
	DeliveredDate sql.NullTime `json:"-"`
}

// Validate checks a mutation before it is accepted into the queue.
// Rejected mutations are never enqueued.
func (m *Mutation) Validate() error {
	switch m.Operation {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("unknown operation %q", m.Operation)
	}

	if !constants.SyncableEntities[m.Entity] {
		return fmt.Errorf("entity %q is not syncable", m.Entity)
	}

	// Creates carry a payload and no entity id (the upstream assigns one).
	// Updates need both, deletes need only the target id.
	switch m.Operation {
	case OpCreate:
		if m.Payload == "" {
			return fmt.Errorf("create requires a payload")
		}
	case OpUpdate:
		if m.EntityID == "" {
			return fmt.Errorf("update requires an entity_id")
		}
		if m.Payload == "" {
			return fmt.Errorf("update requires a payload")
		}
	case OpDelete:
		if m.EntityID == "" {
			return fmt.Errorf("delete requires an entity_id")
		}
	}

	if m.Payload != "" && !json.Valid([]byte(m.Payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	if m.Priority < constants.MinPriority || m.Priority > constants.MaxPriority {
		return fmt.Errorf("priority %d out of range [%d,%d]", m.Priority, constants.MinPriority, constants.MaxPriority)
	}

	return nil
}

// Retryable reports whether a failed delivery attempt should be retried,
// given the attempt count the mutation would reach.
func Retryable(retryCount int) bool {
	return retryCount < constants.MaxDeliveryAttempts
}

// QueueStats is a per-status census of the queue, served by /api/sync/status.
type QueueStats struct {
	Pending   int64 `json:"pending"`
	Delivered int64 `json:"delivered"`
	Dead      int64 `json:"dead"`
}
