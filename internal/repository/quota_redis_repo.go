package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"imgforge/internal/model"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// redisQuotaRetention keeps a day's record readable for a while after it resets.
const redisQuotaRetention = 24 * time.Hour

type redisQuotaRepo struct {
	client    goredis.Cmdable
	keyPrefix string
	now       func() time.Time
}

// NewRedisQuotaRepo creates a Redis-backed QuotaRepository. Records are hashes that
// expire a day after their reset time, so DeleteExpired has nothing to do.
func NewRedisQuotaRepo(client goredis.Cmdable, keyPrefix string) QuotaRepository {
	if keyPrefix == "" {
		keyPrefix = "imgforge:quota:"
	}
	return &redisQuotaRepo{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (r *redisQuotaRepo) key(userID, day string) string {
	return r.keyPrefix + userID + ":" + day
}

// KEYS[1] = quota hash
// ARGV = id, user_id, day, limit, reset_at, now, expire_at (unix seconds)
// Returns 1 when created, 0 when the record already existed.
var createQuotaScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'user_id', ARGV[2], 'day', ARGV[3],
	'used', 0, 'limit', ARGV[4], 'reset_at', ARGV[5],
	'created_at', ARGV[6], 'updated_at', ARGV[6])
redis.call('EXPIREAT', KEYS[1], ARGV[7])
return 1
`)

// KEYS[1] = quota hash
// ARGV[1] = now (unix seconds)
// Returns the new used count, -1 when the limit is reached, -2 when the record is missing.
var incrementQuotaScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -2
end
local used = tonumber(redis.call('HGET', KEYS[1], 'used'))
local limit = tonumber(redis.call('HGET', KEYS[1], 'limit'))
if used >= limit then
	return -1
end
redis.call('HSET', KEYS[1], 'used', used + 1, 'updated_at', ARGV[1])
return used + 1
`)

// KEYS[1] = quota hash
// ARGV[1] = limit, ARGV[2] = now (unix seconds)
var updateLimitScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'limit', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

func (r *redisQuotaRepo) FindQuota(ctx context.Context, userID, day string) (*model.Quota, error) {
	fields, err := r.client.HGetAll(ctx, r.key(userID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch quota for user %s on %s: %w", userID, day, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	q, err := quotaFromHash(fields)
	if err != nil {
		return nil, fmt.Errorf("decode quota for user %s on %s: %w", userID, day, err)
	}
	return q, nil
}

func (r *redisQuotaRepo) CreateQuota(ctx context.Context, userID, day string, limit int, resetAt time.Time) (*model.Quota, error) {
	now := r.now().Unix()
	expireAt := resetAt.Add(redisQuotaRetention).Unix()
	err := createQuotaScript.Run(ctx, r.client, []string{r.key(userID, day)},
		uuid.NewString(), userID, day, limit, resetAt.Unix(), now, expireAt,
	).Err()
	if err != nil {
		return nil, fmt.Errorf("creating quota for user %s on %s: %w", userID, day, err)
	}
	q, err := r.FindQuota(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("quota for user %s on %s missing after insert", userID, day)
	}
	return q, nil
}

func (r *redisQuotaRepo) UpdateQuotaLimit(ctx context.Context, userID, day string, limit int) (*model.Quota, error) {
	updated, err := updateLimitScript.Run(ctx, r.client, []string{r.key(userID, day)}, limit, r.now().Unix()).Int64()
	if err != nil {
		return nil, fmt.Errorf("updating quota limit for user %s on %s: %w", userID, day, err)
	}
	if updated == 0 {
		return nil, nil
	}
	return r.FindQuota(ctx, userID, day)
}

func (r *redisQuotaRepo) AtomicIncrement(ctx context.Context, userID, day string) (*model.Quota, error) {
	used, err := incrementQuotaScript.Run(ctx, r.client, []string{r.key(userID, day)}, r.now().Unix()).Int64()
	if err != nil {
		return nil, fmt.Errorf("incrementing quota for user %s on %s: %w", userID, day, err)
	}
	if used < 0 {
		return nil, ErrQuotaIncrementRejected
	}
	q, err := r.FindQuota(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("quota for user %s on %s expired during increment", userID, day)
	}
	// Report the count this call produced, not whatever later callers added.
	q.GenerationsUsed = int(used)
	return q, nil
}

func (r *redisQuotaRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func quotaFromHash(h map[string]string) (*model.Quota, error) {
	used, err := strconv.Atoi(h["used"])
	if err != nil {
		return nil, fmt.Errorf("used: %w", err)
	}
	limit, err := strconv.Atoi(h["limit"])
	if err != nil {
		return nil, fmt.Errorf("limit: %w", err)
	}
	resetAt, err := unixField(h, "reset_at")
	if err != nil {
		return nil, err
	}
	createdAt, err := unixField(h, "created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := unixField(h, "updated_at")
	if err != nil {
		return nil, err
	}
	if h["id"] == "" {
		return nil, errors.New("missing id")
	}
	return &model.Quota{
		ID:               h["id"],
		UserID:           h["user_id"],
		Day:              h["day"],
		GenerationsUsed:  used,
		GenerationsLimit: limit,
		ResetAt:          resetAt,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

func unixField(h map[string]string, name string) (time.Time, error) {
	v, err := strconv.ParseInt(h[name], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return time.Unix(v, 0), nil
}
