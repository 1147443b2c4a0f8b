package httpx_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuejanitor/decluttd/internal/httpx"
)

func TestThrottleZeroIntervalNeverWaits(t *testing.T) {
	th := httpx.NewThrottle(0, 0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, th.Acquire(context.Background()))
		th.Release()
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottleEnforcesMinimumSpacing(t *testing.T) {
	th := httpx.NewThrottle(30*time.Millisecond, 0)
	start := time.Now()
	require.NoError(t, th.Acquire(context.Background()))
	th.Release()
	require.NoError(t, th.Acquire(context.Background()))
	th.Release()
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestThrottleConcurrencyLimitBlocksUntilReleased(t *testing.T) {
	th := httpx.NewThrottle(0, 1)
	require.NoError(t, th.Acquire(context.Background()))

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		_ = th.Acquire(context.Background())
		acquired.Store(true)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load(), "second acquire should block while the slot is held")

	th.Release()
	<-done
	assert.True(t, acquired.Load())
}

func TestThrottleAcquireRespectsContextCancellation(t *testing.T) {
	th := httpx.NewThrottle(0, 1)
	require.NoError(t, th.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := th.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
