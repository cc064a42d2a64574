package repository

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepo(t *testing.T) QuotaRepository {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set, skip redis integration test")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	prefix := "imgforge:test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})
	return NewRedisQuotaRepo(client, prefix)
}

func TestRedisQuotaRepo_Lifecycle(t *testing.T) {
	repo := newTestRedisRepo(t)
	ctx := context.Background()
	resetAt := time.Now().Add(time.Hour).Truncate(time.Second)

	missing, err := repo.FindQuota(ctx, "u1", "2026-10-15")
	require.NoError(t, err)
	assert.Nil(t, missing)

	q, err := repo.CreateQuota(ctx, "u1", "2026-10-15", 1, resetAt)
	require.NoError(t, err)
	assert.Equal(t, 0, q.GenerationsUsed)
	assert.Equal(t, 1, q.GenerationsLimit)
	assert.True(t, resetAt.Equal(q.ResetAt))

	again, err := repo.CreateQuota(ctx, "u1", "2026-10-15", 9, resetAt)
	require.NoError(t, err)
	assert.Equal(t, q.ID, again.ID)

	q, err = repo.AtomicIncrement(ctx, "u1", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, 1, q.GenerationsUsed)

	_, err = repo.AtomicIncrement(ctx, "u1", "2026-10-15")
	assert.ErrorIs(t, err, ErrQuotaIncrementRejected)

	q, err = repo.UpdateQuotaLimit(ctx, "u1", "2026-10-15", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, q.GenerationsLimit)
	assert.Equal(t, 1, q.GenerationsUsed)
}

func TestRedisQuotaRepo_ConcurrentIncrements(t *testing.T) {
	repo := newTestRedisRepo(t)
	ctx := context.Background()
	_, err := repo.CreateQuota(ctx, "u1", "2026-10-15", 3, time.Now().Add(time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AtomicIncrement(ctx, "u1", "2026-10-15"); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(3), succeeded.Load())
}
