package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_OnceReturnsJobError(t *testing.T) {
	err := Run(context.Background(), zerolog.Nop(), "sweep", 0, func(context.Context) (int64, error) {
		return 0, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
}

func TestRun_OnceRunsExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	err := Run(context.Background(), zerolog.Nop(), "cleanup", 0, func(context.Context) (int64, error) {
		calls.Add(1)
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_LoopKeepsGoingAfterFailuresUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, zerolog.Nop(), "sweep", 5*time.Millisecond, func(context.Context) (int64, error) {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return 0, errors.New("transient")
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance loop did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}
