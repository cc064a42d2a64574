package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"imgforge/internal/config"
	"imgforge/internal/logger"
	"imgforge/internal/maintenance"
	"imgforge/internal/model"
	"imgforge/internal/repository"
	"imgforge/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "", "Maintenance mode: cleanup-quotas|sweep-generations|set-tier")
	userID := flag.String("user", "", "User ID (set-tier)")
	tier := flag.String("tier", "", "Tier to assign: free|paid (set-tier)")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize DB connection
	pool, err := repository.NewPool(ctx, cfg.DBConnectionString, cfg.Environment == "development")
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
	}
	defer pool.Close()
	logger.Info().Msg("Database connection established")

	quotaRepo, closeQuotas, err := repository.OpenQuotaRepository(ctx, cfg.QuotaBackend, pool, repository.RedisSettings{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Fatal().Msgf("Failed to open quota backend: %v", err)
	}
	defer closeQuotas()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Msgf("Invalid quota timezone: %v", err)
	}

	quotaSvc := service.NewQuotaService(quotaRepo, service.TierLimits{Free: cfg.FreeDailyLimit, Paid: cfg.PaidDailyLimit}, loc, logger)
	maintenanceSvc := service.NewMaintenanceService(quotaSvc, repository.NewGenerationRepo(pool), cfg.StaleGenerationAge(), logger)
	interval := time.Duration(cfg.MaintenanceIntervalSec) * time.Second

	// Dispatch to the selected job
	var runErr error
	switch *mode {
	case "cleanup-quotas":
		runErr = maintenance.Run(ctx, logger, *mode, interval, maintenanceSvc.CleanupQuotas)
	case "sweep-generations":
		runErr = maintenance.Run(ctx, logger, *mode, interval, maintenanceSvc.SweepStaleGenerations)
	case "set-tier":
		userSvc := service.NewUserService(repository.NewUserRepo(pool), logger)
		var u *model.User
		u, runErr = userSvc.SetTier(ctx, *userID, model.Tier(*tier))
		if runErr == nil {
			logger.Info().Str("user_id", u.UserID).Str("tier", string(u.Tier)).Msg("Tier updated")
		}
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Fatal().Msgf("%s failed: %v", *mode, runErr)
	}

	logger.Info().Msgf("%s stopped gracefully", *mode)
}
