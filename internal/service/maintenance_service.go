package service

import (
	"context"
	"fmt"
	"time"

	"imgforge/internal/model"
	"imgforge/internal/repository"

	"github.com/rs/zerolog"
)

const staleGenerationMessage = "generation did not finish in time"

type MaintenanceService interface {
	// CleanupQuotas purges quota records past their reset time.
	CleanupQuotas(ctx context.Context) (int64, error)
	// SweepStaleGenerations fails records left processing for longer than the staleness window.
	SweepStaleGenerations(ctx context.Context) (int64, error)
}

type maintenanceService struct {
	quotas      QuotaService
	generations repository.GenerationRepository
	staleAfter  time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

func NewMaintenanceService(quotas QuotaService, generations repository.GenerationRepository, staleAfter time.Duration, logger zerolog.Logger) MaintenanceService {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &maintenanceService{
		quotas:      quotas,
		generations: generations,
		staleAfter:  staleAfter,
		now:         time.Now,
		logger:      logger.With().Str("service", "MaintenanceService").Logger(),
	}
}

func (s *maintenanceService) CleanupQuotas(ctx context.Context) (int64, error) {
	return s.quotas.CleanupExpired(ctx)
}

func (s *maintenanceService) SweepStaleGenerations(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.generations.FailStaleGenerations(ctx, cutoff, model.ErrorCodeTimeout, staleGenerationMessage)
	if err != nil {
		return 0, fmt.Errorf("sweeping stale generations: %w", err)
	}
	if n > 0 {
		s.logger.Warn().Int64("failed", n).Time("cutoff", cutoff).Msg("Stale generations resolved to failed")
	}
	return n, nil
}
