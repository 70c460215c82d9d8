package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/cashy-bfa-go/internal/config"
	"github.com/boddenberg/cashy-bfa-go/internal/domain"
	"github.com/boddenberg/cashy-bfa-go/internal/handler"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/cache"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/crypto"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/memory"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/plaid"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashy-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/cashy-bfa-go/internal/port"
	"github.com/boddenberg/cashy-bfa-go/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "cashy-bfa")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("plaid_env", cfg.PlaidEnv),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("provider_call_timeout", cfg.ProviderCallTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("link_token_ttl", cfg.LinkTokenTTL),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "cashy-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
		CallTimeout:    cfg.ProviderCallTimeout,
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Provider ---
	baseURL := cfg.PlaidBaseURL
	if baseURL == "" {
		baseURL = plaid.Environments[cfg.PlaidEnv]
	}
	if baseURL == "" {
		logger.Fatal("unknown PLAID_ENV and no PLAID_BASE_URL", zap.String("plaid_env", cfg.PlaidEnv))
	}
	provider := plaid.NewClient(httpClient, baseURL, plaid.Options{
		ClientID:     cfg.PlaidClientID,
		Secret:       cfg.PlaidSecret,
		ClientName:   cfg.PlaidClientName,
		Products:     cfg.PlaidProducts,
		CountryCodes: cfg.PlaidCountryCodes,
		Language:     cfg.PlaidLanguage,
	}, resilience.NewCircuitBreaker("plaid"), resilienceCfg, logger)

	// --- Store ---
	store, closeStore := newStore(cfg, httpClient, resilienceCfg, logger)
	defer closeStore()

	// --- Cache ---
	linkTokens, closeCache := newLinkTokenCache(cfg, logger)
	defer closeCache()

	// --- Credential sealing ---
	var encryptor port.Encryptor = crypto.Plaintext{}
	if cfg.CredentialKey != "" {
		enc, err := crypto.NewEncryptor(cfg.CredentialKey)
		if err != nil {
			logger.Fatal("invalid credential key", zap.Error(err))
		}
		encryptor = enc
	} else {
		logger.Warn("CREDENTIAL_KEY not set, access credentials stored in plaintext")
	}

	// --- Services ---
	dashSvc := service.NewDashboardService(
		store,
		provider,
		encryptor,
		linkTokens,
		resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics,
		logger,
	)
	linkSvc := service.NewLinkService(store, provider, encryptor, linkTokens, dashSvc, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(dashSvc, linkSvc, store, metrics, logger, handler.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newStore(cfg *config.Config, httpClient *http.Client, rcfg resilience.Config, logger *zap.Logger) (port.InstitutionStore, func()) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		logger.Info("using postgres institution store")
		return postgres.NewInstitutionStore(pool), pool.Close

	case config.BackendSupabase:
		logger.Info("using Supabase institution store", zap.String("supabase_url", cfg.SupabaseURL))
		client := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			rcfg,
			logger,
		)
		return client, func() {}

	default:
		logger.Warn("using in-memory institution store, links are lost on restart")
		return memory.NewInstitutionStore(), func() {}
	}
}

func newLinkTokenCache(cfg *config.Config, logger *zap.Logger) (port.Cache[domain.LinkToken], func()) {
	if cfg.CacheBackend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, link token cache will miss until it recovers",
				zap.String("addr", cfg.RedisAddr),
				zap.Error(err),
			)
		}
		logger.Info("using redis link token cache", zap.String("addr", cfg.RedisAddr))
		return cache.NewRedis[domain.LinkToken](rdb, "cashy:link_token", cfg.LinkTokenTTL, logger), func() { _ = rdb.Close() }
	}

	c := cache.New[domain.LinkToken](cfg.LinkTokenTTL)
	return c, c.Close
}
