package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQuotaRepo_CreateIsIdempotent(t *testing.T) {
	repo := NewMemoryQuotaRepo()
	ctx := context.Background()
	resetAt := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	first, err := repo.CreateQuota(ctx, "u1", "2026-10-15", 5, resetAt)
	require.NoError(t, err)
	second, err := repo.CreateQuota(ctx, "u1", "2026-10-15", 50, resetAt)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.GenerationsLimit, "existing record must not be overwritten")
}

func TestMemoryQuotaRepo_IncrementStopsAtLimit(t *testing.T) {
	repo := NewMemoryQuotaRepo()
	ctx := context.Background()
	_, err := repo.CreateQuota(ctx, "u1", "2026-10-15", 2, time.Now().Add(time.Hour))
	require.NoError(t, err)

	q, err := repo.AtomicIncrement(ctx, "u1", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, 1, q.GenerationsUsed)

	q, err = repo.AtomicIncrement(ctx, "u1", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, 2, q.GenerationsUsed)

	_, err = repo.AtomicIncrement(ctx, "u1", "2026-10-15")
	assert.ErrorIs(t, err, ErrQuotaIncrementRejected)
}

func TestMemoryQuotaRepo_IncrementWithoutRecordIsRejected(t *testing.T) {
	repo := NewMemoryQuotaRepo()
	_, err := repo.AtomicIncrement(context.Background(), "ghost", "2026-10-15")
	assert.ErrorIs(t, err, ErrQuotaIncrementRejected)
}

func TestMemoryQuotaRepo_ConcurrentIncrements(t *testing.T) {
	repo := NewMemoryQuotaRepo()
	ctx := context.Background()
	const limit = 5
	_, err := repo.CreateQuota(ctx, "u1", "2026-10-15", limit, time.Now().Add(time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AtomicIncrement(ctx, "u1", "2026-10-15"); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), succeeded.Load())
	q, err := repo.FindQuota(ctx, "u1", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, limit, q.GenerationsUsed)
}

func TestMemoryQuotaRepo_UpdateLimitKeepsUsage(t *testing.T) {
	repo := NewMemoryQuotaRepo()
	ctx := context.Background()
	_, err := repo.CreateQuota(ctx, "u1", "2026-10-15", 5, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.AtomicIncrement(ctx, "u1", "2026-10-15")
	require.NoError(t, err)

	q, err := repo.UpdateQuotaLimit(ctx, "u1", "2026-10-15", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, q.GenerationsLimit)
	assert.Equal(t, 1, q.GenerationsUsed)

	missing, err := repo.UpdateQuotaLimit(ctx, "u2", "2026-10-15", 50)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryQuotaRepo_DeleteExpired(t *testing.T) {
	repo := NewMemoryQuotaRepo()
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	_, err := repo.CreateQuota(ctx, "u1", "2026-10-14", 5, now.Add(-12*time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateQuota(ctx, "u1", "2026-10-15", 5, now.Add(12*time.Hour))
	require.NoError(t, err)

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := repo.FindQuota(ctx, "u1", "2026-10-14")
	require.NoError(t, err)
	assert.Nil(t, old)
	current, err := repo.FindQuota(ctx, "u1", "2026-10-15")
	require.NoError(t, err)
	assert.NotNil(t, current)
}
