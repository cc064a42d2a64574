package router

import (
	"context"
	"net/http"
	"strings"

	"imgforge/internal/api/v1/handler"
	"imgforge/internal/config"
	"imgforge/internal/middleware"
	"imgforge/internal/pubsub"
	"imgforge/internal/repository"
	"imgforge/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the API and returns it with a cleanup func that releases every connection it opened.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	logger.Info().Str("environment", cfg.Environment).Msg("App environment loaded")

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (http.Handler, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// 1. Open DB connection pool
	pool, err := repository.NewPool(ctx, cfg.DBConnectionString, cfg.Environment == "development")
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, pool.Close)
	logger.Info().Msg("Database connection successful")

	if cfg.AutoMigrate {
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			return fail(err)
		}
		logger.Info().Msg("Database schema ensured")
	}

	// 2. Quota backend
	quotaRepo, closeQuotas, err := repository.OpenQuotaRepository(ctx, cfg.QuotaBackend, pool, repository.RedisSettings{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeQuotas)
	logger.Info().Str("backend", cfg.QuotaBackend).Msg("Quota backend ready")

	loc, err := cfg.Location()
	if err != nil {
		return fail(err)
	}

	// 3. Object storage
	s3Settings := service.S3Settings{
		Endpoint:      cfg.S3URL,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}
	s3Client, err := service.NewS3Client(ctx, s3Settings)
	if err != nil {
		return fail(err)
	}
	store := service.NewS3ObjectStore(s3Client, s3Settings)

	// 4. Image provider
	provider, err := newImageProvider(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}

	// 5. Preset catalog
	catalog, err := service.LoadPresetCatalog(cfg.PresetCatalogPath)
	if err != nil {
		return fail(err)
	}

	// 6. Pub/Sub publisher for generation events
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" && cfg.PubSubGenerationTopic != "" {
		p, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID)
		if err != nil {
			return fail(err)
		}
		cleanups = append(cleanups, func() { _ = p.Close() })
		publisher = p
	}

	// 7. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 8. Initialize repositories & services & handlers
	userRepo := repository.NewUserRepo(pool)
	generationRepo := repository.NewGenerationRepo(pool)

	quotaSvc := service.NewQuotaService(quotaRepo, service.TierLimits{Free: cfg.FreeDailyLimit, Paid: cfg.PaidDailyLimit}, loc, logger)
	userSvc := service.NewUserService(userRepo, logger)
	generationSvc := service.NewGenerationService(service.GenerationDeps{
		Users:           userRepo,
		Generations:     generationRepo,
		Quotas:          quotaSvc,
		Prompts:         service.NewPromptResolver(catalog, logger),
		Provider:        provider,
		Uploads:         service.NewUploadService(store, cfg.MaxUploadBytes, logger),
		Store:           store,
		Events:          service.NewEventPublisher(publisher, cfg.PubSubGenerationTopic, logger),
		ProviderTimeout: cfg.ProviderTimeout(),
		FinishTimeout:   cfg.FinishTimeout(),
	}, logger)

	userHandler := handler.NewUserHandler(userSvc, validate, logger)
	generationHandler := handler.NewGenerationHandler(generationSvc, validate, cfg.MaxUploadBytes, logger)
	presetHandler := handler.NewPresetHandler(catalog)

	// 9. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)

	// 10. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	generationHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	presetHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Redirect /api/* to /v1/* for backward compatibility
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/")
		http.Redirect(w, r, "/v1/"+rest, http.StatusMovedPermanently)
	})

	// 11. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	h := middleware.RecoveryMiddleware(logger)(c.Handler(mux))
	return middleware.LoggerMiddleware(logger)(h), cleanup, nil
}

// newImageProvider returns nil when no API key is configured, which the generation
// service reports as an unavailable provider.
func newImageProvider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (service.ImageProvider, error) {
	var secrets service.SecretManagerService
	if cfg.GeminiAPIKey == "" && cfg.GeminiAPIKeySecret != "" && cfg.GCPProjectID != "" {
		sm, err := service.NewSecretManagerService(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		defer sm.Close()
		secrets = sm
	}

	apiKey, err := service.ResolveProviderAPIKey(ctx, cfg.GeminiAPIKey, cfg.GeminiAPIKeySecret, secrets)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		logger.Warn().Msg("No image provider API key configured, generation requests will be rejected")
		return nil, nil
	}

	logger.Info().Str("model", cfg.GeminiImageModel).Msg("Image provider configured")
	return service.NewGeminiProvider(apiKey,
		service.WithGeminiBaseURL(cfg.GeminiBaseURL),
		service.WithGeminiModel(cfg.GeminiImageModel),
	), nil
}
