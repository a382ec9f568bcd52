package services

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// EntityLimiter applies a token bucket per entity name so a burst of queued
// contact edits cannot starve the upstream of opportunity updates.
type EntityLimiter struct {
	limit rate.Limit
	burst int
	mu    sync.Mutex
	byKey map[string]*rate.Limiter
}

// NewEntityLimiter creates a per-entity limiter; returns nil if args are
// invalid, and a nil limiter never blocks.
func NewEntityLimiter(rps float64, burst int) *EntityLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &EntityLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		byKey: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until one token is available for the entity or ctx is done
func (l *EntityLimiter) Wait(ctx context.Context, entity string) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.byKey[entity]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.byKey[entity] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}
