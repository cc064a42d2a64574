package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"imgforge/internal/model"
	"imgforge/internal/repository"

	"github.com/rs/zerolog"
)

// TierLimits maps account tiers to daily generation allowances.
type TierLimits struct {
	Free int
	Paid int
}

// LimitFor returns the daily limit for tier. Unknown tiers get the free allowance.
func (l TierLimits) LimitFor(tier model.Tier) int {
	if tier == model.TierPaid {
		return l.Paid
	}
	return l.Free
}

// RemainingGenerations returns max(0, limit-used).
func RemainingGenerations(q model.Quota) int {
	if r := q.GenerationsLimit - q.GenerationsUsed; r > 0 {
		return r
	}
	return 0
}

// UsagePercentage returns used/limit as a rounded percentage. A zero limit reads as fully used.
func UsagePercentage(q model.Quota) int {
	if q.GenerationsLimit <= 0 {
		return 100
	}
	return int(math.Round(float64(q.GenerationsUsed) / float64(q.GenerationsLimit) * 100))
}

// QuotaStatusOf buckets q: exceeded at the limit, warning from 80% of it.
func QuotaStatusOf(q model.Quota) model.QuotaStatus {
	switch {
	case q.GenerationsUsed >= q.GenerationsLimit:
		return model.QuotaExceeded
	case q.GenerationsUsed*5 >= q.GenerationsLimit*4:
		return model.QuotaWarning
	default:
		return model.QuotaNormal
	}
}

// QuotaSnapshot is the caller-facing view of a quota.
type QuotaSnapshot struct {
	Day             string
	Used            int
	Limit           int
	Remaining       int
	UsagePercentage int
	Status          model.QuotaStatus
	ResetAt         time.Time
}

func NewQuotaSnapshot(q model.Quota) QuotaSnapshot {
	return QuotaSnapshot{
		Day:             q.Day,
		Used:            q.GenerationsUsed,
		Limit:           q.GenerationsLimit,
		Remaining:       RemainingGenerations(q),
		UsagePercentage: UsagePercentage(q),
		Status:          QuotaStatusOf(q),
		ResetAt:         q.ResetAt,
	}
}

type QuotaService interface {
	// GetOrCreateTodayQuota returns today's record, creating it lazily and refreshing its
	// limit snapshot when the user's tier changed. Usage is never reset.
	GetOrCreateTodayQuota(ctx context.Context, userID string, tier model.Tier) (*model.Quota, error)
	CanGenerate(ctx context.Context, userID string, tier model.Tier) (bool, error)
	// IncrementUsage charges one generation. Returns *QuotaExceededError when no slot is left.
	IncrementUsage(ctx context.Context, userID string, tier model.Tier) (*model.Quota, error)
	// CleanupExpired purges records past their reset time.
	CleanupExpired(ctx context.Context) (int64, error)
}

type QuotaOption func(*quotaService)

// WithQuotaClock overrides the clock used to determine the current day.
func WithQuotaClock(now func() time.Time) QuotaOption {
	return func(s *quotaService) { s.now = now }
}

type quotaService struct {
	repo   repository.QuotaRepository
	limits TierLimits
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewQuotaService(repo repository.QuotaRepository, limits TierLimits, loc *time.Location, logger zerolog.Logger, opts ...QuotaOption) QuotaService {
	if loc == nil {
		loc = time.Local
	}
	s := &quotaService{
		repo:   repo,
		limits: limits,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("service", "QuotaService").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// today returns the day key and the start of the following day in the quota time zone.
func (s *quotaService) today() (string, time.Time) {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	return now.Format("2006-01-02"), time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
}

func (s *quotaService) GetOrCreateTodayQuota(ctx context.Context, userID string, tier model.Tier) (*model.Quota, error) {
	day, resetAt := s.today()
	limit := s.limits.LimitFor(tier)

	q, err := s.repo.FindQuota(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("finding quota: %w", err)
	}
	if q == nil {
		q, err = s.repo.CreateQuota(ctx, userID, day, limit, resetAt)
		if err != nil {
			return nil, fmt.Errorf("creating quota: %w", err)
		}
		s.logger.Debug().Str("user_id", userID).Str("day", day).Int("limit", q.GenerationsLimit).Msg("Created daily quota")
	}
	if q.GenerationsLimit != limit {
		s.logger.Info().
			Str("user_id", userID).
			Str("day", day).
			Int("old_limit", q.GenerationsLimit).
			Int("new_limit", limit).
			Msg("Tier limit changed, updating quota")
		q, err = s.repo.UpdateQuotaLimit(ctx, userID, day, limit)
		if err != nil {
			return nil, fmt.Errorf("updating quota limit: %w", err)
		}
		if q == nil {
			return nil, fmt.Errorf("quota for user %s on %s vanished during limit update", userID, day)
		}
	}
	return q, nil
}

func (s *quotaService) CanGenerate(ctx context.Context, userID string, tier model.Tier) (bool, error) {
	q, err := s.GetOrCreateTodayQuota(ctx, userID, tier)
	if err != nil {
		return false, err
	}
	return q.GenerationsUsed < q.GenerationsLimit, nil
}

func (s *quotaService) IncrementUsage(ctx context.Context, userID string, tier model.Tier) (*model.Quota, error) {
	q, err := s.GetOrCreateTodayQuota(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if q.GenerationsUsed >= q.GenerationsLimit {
		return nil, &QuotaExceededError{Quota: *q}
	}

	updated, err := s.repo.AtomicIncrement(ctx, userID, q.Day)
	if errors.Is(err, repository.ErrQuotaIncrementRejected) {
		// Another request took the last slot between the read and the increment.
		latest, ferr := s.repo.FindQuota(ctx, userID, q.Day)
		if ferr == nil && latest != nil {
			q = latest
		}
		return nil, &QuotaExceededError{Quota: *q}
	}
	if err != nil {
		return nil, fmt.Errorf("incrementing quota usage: %w", err)
	}
	return updated, nil
}

func (s *quotaService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("deleting expired quotas: %w", err)
	}
	s.logger.Info().Int64("deleted", n).Msg("Expired quotas cleaned up")
	return n, nil
}
