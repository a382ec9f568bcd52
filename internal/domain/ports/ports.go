package ports

import (
	"context"
	"errors"

	"github.com/pulsecrm/syncd/internal/domain/models"
)

// Deliverer pushes a single mutation to the upstream CRM.
// Implementations live in the application layer (resty client); the sync
// engine and tests depend only on this interface.
type Deliverer interface {
	// Deliver forwards the mutation. A nil error means the upstream accepted
	// it. A *PermanentError means the upstream rejected it in a way a retry
	// cannot fix. Any other error is retryable.
	Deliver(ctx context.Context, m *models.Mutation) error

	// Ping reports whether the upstream is reachable.
	Ping(ctx context.Context) error
}

// PermanentError marks an upstream rejection that retrying cannot fix
// (validation failure, conflict, gone resource). The sync engine parks the
// mutation as dead immediately instead of burning retry attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as non-retryable
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
