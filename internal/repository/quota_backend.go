package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

const (
	QuotaBackendPostgres = "postgres"
	QuotaBackendRedis    = "redis"
	QuotaBackendMemory   = "memory"
)

// RedisSettings addresses the Redis instance used by the redis quota backend.
type RedisSettings struct {
	Addr     string
	Password string
	DB       int
}

// OpenQuotaRepository builds the QuotaRepository for backend. The returned close func releases
// any connection the backend opened and is never nil.
func OpenQuotaRepository(ctx context.Context, backend string, pool *pgxpool.Pool, redis RedisSettings) (QuotaRepository, func(), error) {
	switch backend {
	case QuotaBackendPostgres, "":
		return NewQuotaRepo(pool), func() {}, nil
	case QuotaBackendMemory:
		return NewMemoryQuotaRepo(), func() {}, nil
	case QuotaBackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     redis.Addr,
			Password: redis.Password,
			DB:       redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("pinging redis at %s: %w", redis.Addr, err)
		}
		return NewRedisQuotaRepo(client, ""), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported quota backend %q", backend)
	}
}
