package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityLimiter_NilNeverBlocks(t *testing.T) {
	var limiter *EntityLimiter
	assert.NoError(t, limiter.Wait(context.Background(), "contacts"))

	assert.Nil(t, NewEntityLimiter(0, 10))
	assert.Nil(t, NewEntityLimiter(5, 0))
}

func TestEntityLimiter_BurstIsImmediate(t *testing.T) {
	limiter := NewEntityLimiter(1, 3)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(context.Background(), "contacts"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestEntityLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewEntityLimiter(1, 1)

	require.NoError(t, limiter.Wait(context.Background(), "contacts"))

	// contacts is drained but leads still has its burst token
	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background(), "leads"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestEntityLimiter_CancelledContext(t *testing.T) {
	limiter := NewEntityLimiter(0.001, 1)
	require.NoError(t, limiter.Wait(context.Background(), "contacts"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, limiter.Wait(ctx, "contacts"))
}
