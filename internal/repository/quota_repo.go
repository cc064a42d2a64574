package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imgforge/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrQuotaIncrementRejected is returned when a conditional increment finds no free slot
// (or no quota record) for the user and day.
var ErrQuotaIncrementRejected = errors.New("quota_increment_rejected")

// QuotaRepository stores per-user, per-day generation quotas.
type QuotaRepository interface {
	// FindQuota returns nil without error when no record exists for the user and day.
	FindQuota(ctx context.Context, userID, day string) (*model.Quota, error)
	// CreateQuota inserts a record if none exists for (user, day) and returns the stored record,
	// which is the pre-existing one when a concurrent caller created it first.
	CreateQuota(ctx context.Context, userID, day string, limit int, resetAt time.Time) (*model.Quota, error)
	// UpdateQuotaLimit replaces the limit snapshot without touching usage.
	UpdateQuotaLimit(ctx context.Context, userID, day string, limit int) (*model.Quota, error)
	// AtomicIncrement adds one generation if and only if used < limit, in a single step.
	// Returns ErrQuotaIncrementRejected otherwise.
	AtomicIncrement(ctx context.Context, userID, day string) (*model.Quota, error)
	// DeleteExpired removes records whose reset time is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type quotaRepo struct {
	pool *pgxpool.Pool
}

// NewQuotaRepo creates a Postgres-backed QuotaRepository.
func NewQuotaRepo(pool *pgxpool.Pool) QuotaRepository {
	return &quotaRepo{pool: pool}
}

const quotaColumns = `id, user_id, day::text, generations_used, generations_limit, reset_at, created_at, updated_at`

func (r *quotaRepo) FindQuota(ctx context.Context, userID, day string) (*model.Quota, error) {
	q := `SELECT ` + quotaColumns + ` FROM generation_quotas WHERE user_id = $1 AND day = $2::date`
	quota, err := scanQuota(r.pool.QueryRow(ctx, q, userID, day))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch quota for user %s on %s: %w", userID, day, err)
	}
	return quota, nil
}

func (r *quotaRepo) CreateQuota(ctx context.Context, userID, day string, limit int, resetAt time.Time) (*model.Quota, error) {
	const insertQ = `
		INSERT INTO generation_quotas (id, user_id, day, generations_used, generations_limit, reset_at)
		VALUES ($1, $2, $3::date, 0, $4, $5)
		ON CONFLICT (user_id, day) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insertQ, uuid.NewString(), userID, day, limit, resetAt); err != nil {
		return nil, fmt.Errorf("creating quota for user %s on %s: %w", userID, day, err)
	}
	quota, err := r.FindQuota(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if quota == nil {
		return nil, fmt.Errorf("quota for user %s on %s missing after insert", userID, day)
	}
	return quota, nil
}

func (r *quotaRepo) UpdateQuotaLimit(ctx context.Context, userID, day string, limit int) (*model.Quota, error) {
	q := `
		UPDATE generation_quotas
		SET generations_limit = $3, updated_at = NOW()
		WHERE user_id = $1 AND day = $2::date
		RETURNING ` + quotaColumns
	quota, err := scanQuota(r.pool.QueryRow(ctx, q, userID, day, limit))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("updating quota limit for user %s on %s: %w", userID, day, err)
	}
	return quota, nil
}

func (r *quotaRepo) AtomicIncrement(ctx context.Context, userID, day string) (*model.Quota, error) {
	q := `
		UPDATE generation_quotas
		SET generations_used = generations_used + 1, updated_at = NOW()
		WHERE user_id = $1
		  AND day = $2::date
		  AND generations_used < generations_limit
		RETURNING ` + quotaColumns
	quota, err := scanQuota(r.pool.QueryRow(ctx, q, userID, day))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuotaIncrementRejected
	}
	if err != nil {
		return nil, fmt.Errorf("incrementing quota for user %s on %s: %w", userID, day, err)
	}
	return quota, nil
}

func (r *quotaRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM generation_quotas WHERE reset_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired quotas: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanQuota(row pgx.Row) (*model.Quota, error) {
	var q model.Quota
	if err := row.Scan(
		&q.ID,
		&q.UserID,
		&q.Day,
		&q.GenerationsUsed,
		&q.GenerationsLimit,
		&q.ResetAt,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &q, nil
}
