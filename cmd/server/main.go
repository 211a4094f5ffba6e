package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/deviceauth-go/internal/config"
	"github.com/openclaw/deviceauth-go/internal/database"
	"github.com/openclaw/deviceauth-go/internal/handler"
	"github.com/openclaw/deviceauth-go/internal/jobs"
	"github.com/openclaw/deviceauth-go/internal/middleware"
	"github.com/openclaw/deviceauth-go/internal/redis"
	"github.com/openclaw/deviceauth-go/internal/repository"
	"github.com/openclaw/deviceauth-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	cancel()
	log.Info().Msg("database connected")

	var (
		grantRepo   repository.GrantRepository
		rateLimiter service.RateLimiter
	)
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		rateLimiter = service.NewRedisRateLimiter(redisClient.Client)
		if cfg.GrantStore == config.GrantStoreRedis {
			grantRepo = repository.NewRedisGrantRepository(redisClient.Client)
		}
	} else {
		rateLimiter = service.NewMemoryRateLimiter()
	}
	if grantRepo == nil {
		grantRepo = repository.NewMemoryGrantRepository()
	}
	log.Info().Str("store", string(cfg.GrantStore)).Msg("grant store ready")

	accountRepo := repository.NewAccountRepository(db.DB)
	profileRepo := repository.NewProfileRepository(db.DB, cfg.EncryptionKey)

	grantService := service.NewGrantService(grantRepo, profileRepo, service.GrantServiceConfig{
		TTL:             cfg.GrantTTL(),
		PollInterval:    cfg.PollInterval(),
		VerificationURL: cfg.VerificationBaseURL,
	})

	authMiddleware := middleware.NewAuthMiddleware(accountRepo)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	beginLimit := middleware.NewRateLimitMiddleware(
		rateLimiter, cfg.BeginRateLimitPerMin, config.RateLimitWindow, "device_begin", middleware.ClientIPKey,
	)
	approveLimit := middleware.NewRateLimitMiddleware(
		rateLimiter, cfg.ApproveRateLimitPerMin, config.RateLimitWindow, "device_approve", middleware.AccountKey,
	)

	deviceHandler := handler.NewDeviceHandler(grantService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", handler.Health(grantRepo))

	r.Route("/v1/device", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Mount("/", deviceHandler.Routes(handler.DeviceMiddleware{
			Auth:         authMiddleware.Handler,
			BeginLimit:   beginLimit.Handler,
			ApproveLimit: approveLimit.Handler,
		}))
	})

	sweepJob := jobs.NewSweepJob(grantRepo, cfg.SweepInterval())
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
