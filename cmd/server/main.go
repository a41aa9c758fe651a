package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/oauth-bridge-go/internal/config"
	"github.com/openclaw/oauth-bridge-go/internal/database"
	"github.com/openclaw/oauth-bridge-go/internal/handler"
	"github.com/openclaw/oauth-bridge-go/internal/jobs"
	"github.com/openclaw/oauth-bridge-go/internal/middleware"
	"github.com/openclaw/oauth-bridge-go/internal/provider"
	"github.com/openclaw/oauth-bridge-go/internal/redis"
	"github.com/openclaw/oauth-bridge-go/internal/repository"
	"github.com/openclaw/oauth-bridge-go/internal/secrets"
	"github.com/openclaw/oauth-bridge-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(cfg.IsProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	masterKey, err := cfg.EncryptionKeyBytes()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption key")
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
	cancel()
	log.Info().Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	tokenCodec, err := secrets.NewAESCodec(masterKey, "tokens")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token codec")
	}
	secretCodec, err := secrets.NewAESCodec(masterKey, "client-secrets")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create secret codec")
	}

	providerRepo := repository.NewProviderConfigRepository(db.DB)
	accountRepo := repository.NewOAuthAccountRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)

	var stateRepo repository.OAuthStateRepository
	switch cfg.StateBackend {
	case config.StateBackendRedis:
		stateRepo = repository.NewRedisOAuthStateRepository(redisClient.Client, cfg.StateRetention())
	default:
		stateRepo = repository.NewOAuthStateRepository(db.DB)
	}
	log.Info().Str("backend", cfg.StateBackend).Msg("oauth state store selected")

	providerSource := service.NewProviderSource(providerRepo, secretCodec)
	if cfg.ProvidersFile != "" {
		seeds, err := service.LoadProviderSeeds(cfg.ProvidersFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load providers file")
		}
		if err := providerSource.Seed(context.Background(), seeds); err != nil {
			log.Fatal().Err(err).Msg("failed to seed providers")
		}
	}

	registry := provider.DefaultRegistry(provider.NewHTTPClient(cfg.ProviderHTTPTimeout()))
	stateStore := service.NewStateStore(stateRepo, cfg.StateTTL(), time.Now)
	vault := service.NewTokenVault(accountRepo, tokenCodec, cfg.TokenRefreshMargin(), time.Now)
	oauthService := service.NewOAuthService(
		db, registry, providerSource, stateStore, vault,
		accountRepo, userRepo, service.NewUserProvisioner(userRepo), service.KeepOneMethodPolicy{},
	)

	rateLimiter := service.NewRateLimiter(redisClient.Client, cfg.RateLimitFailOpen)
	oauthRateLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, cfg.CallbackRateLimitPerMin, config.CallbackRateLimitWindow, "oauth",
	)
	identityMiddleware := middleware.NewIdentityMiddleware(cfg.UserHeader)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction)

	oauthHandler := handler.NewOAuthHandler(oauthService, identityMiddleware)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		}

		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unreachable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})

	r.Route("/oauth", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(oauthRateLimit.Handler)
		r.Mount("/", oauthHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(stateRepo, cfg.StateRetention(), config.StateSweepInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Strs("providers", registry.Names()).Msg("starting server")
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
