package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSharesInFlightAttempt(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	g := New(func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.Ensure(context.Background())
		}()
	}

	// let every caller reach the gate before the attempt finishes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, g.Connected())

	require.NoError(t, g.Ensure(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnsureRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	g := New(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("connection refused")
		}
		return nil
	})

	assert.Error(t, g.Ensure(context.Background()))
	assert.False(t, g.Connected())

	assert.NoError(t, g.Ensure(context.Background()))
	assert.True(t, g.Connected())
	assert.Equal(t, int32(2), calls.Load())
}

func TestDisconnect(t *testing.T) {
	var calls atomic.Int32
	g := New(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, g.Ensure(context.Background()))
	g.Disconnect()
	assert.False(t, g.Connected())
	require.NoError(t, g.Ensure(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestEnsureHonorsCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	g := New(func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Ensure(ctx), context.DeadlineExceeded)
}
