package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/ferrostad/snaplist/internal"
	"github.com/ferrostad/snaplist/internal/ai"
	"github.com/ferrostad/snaplist/internal/ai/anthropic"
	aimock "github.com/ferrostad/snaplist/internal/ai/mock"
	"github.com/ferrostad/snaplist/internal/auth"
	"github.com/ferrostad/snaplist/internal/billing"
	"github.com/ferrostad/snaplist/internal/handler"
	"github.com/ferrostad/snaplist/internal/metrics"
	"github.com/ferrostad/snaplist/internal/middleware"
	"github.com/ferrostad/snaplist/internal/ratelimit"
	"github.com/ferrostad/snaplist/internal/repository"
	"github.com/ferrostad/snaplist/internal/service"
	"github.com/ferrostad/snaplist/internal/storage"
)

func run() error {
	ctx := context.Background()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Migrations run over database/sql; the application itself uses pgx
	// natively through the pool below.
	migrateDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := internal.RunMigrations(migrateDB); err != nil {
		migrateDB.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	migrateDB.Close()

	pool, err := repository.NewPool(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database pool failed: %w", err)
	}
	defer pool.Close()
	logger.Info("Database ready")

	// Repositories
	quotaRepo := repository.NewQuotaRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)
	packRepo := repository.NewPackRepo(pool)
	purchaseRepo := repository.NewPurchaseRepo(pool)
	counterRepo := repository.NewCounterRepo(pool)
	listingRepo := repository.NewListingRepo(pool)

	// Storage
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Vision provider
	provider, err := newProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("AI provider initialization failed: %w", err)
	}

	// Billing (optional)
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled; checkout endpoints will fail cleanly")
	}

	// Services
	quotaService := service.NewQuotaService(quotaRepo, logger)
	purchaseService := service.NewPurchaseService(purchaseRepo, packRepo, profileRepo, billingService, logger)
	listingService := service.NewListingService(listingRepo, quotaService, logger)
	thumbs := service.NewImagingProcessor()

	// Rate gateway and its background sweeper
	gateway := ratelimit.NewGateway(counterRepo, logger)
	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go ratelimit.NewSweeper(counterRepo, logger).Run(sweeperCtx)

	// Auth
	verifier, err := newVerifier(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth verifier initialization failed: %w", err)
	}
	authMw := middleware.NewAuthMiddleware(verifier, profileRepo, logger)

	// Handlers
	validate := validator.New()
	analyzeHandler := handler.NewAnalyzeHandler(gateway, quotaService, provider, store, thumbs, logger)
	quotaHandler := handler.NewQuotaHandler(quotaService, logger)
	listingHandler := handler.NewListingHandler(listingService, validate, logger)
	packHandler := handler.NewPackHandler(packRepo, logger)
	billingHandler := handler.NewBillingHandler(purchaseService,
		cfg.BaseURL+"/purchase/success", cfg.BaseURL+"/purchase/cancelled", logger)
	webhookHandler := handler.NewWebhookHandler(billingService, purchaseService, profileRepo, logger)

	// ==========================================================================
	// Routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Local storage serves uploads directly in development.
	if cfg.StorageProvider == storage.ProviderLocal {
		files := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", files))
	}

	withUser := middleware.Stack(authMw.WithUser)
	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)

	// Analyze works for both anonymous and authenticated callers; the
	// admission policy differs inside the handler.
	mux.Handle("POST /api/analyze", withUser(http.HandlerFunc(analyzeHandler.Analyze)))

	mux.Handle("GET /api/quota", requireUser(http.HandlerFunc(quotaHandler.Get)))

	mux.Handle("POST /api/listings", requireUser(http.HandlerFunc(listingHandler.Create)))
	mux.Handle("GET /api/listings", requireUser(http.HandlerFunc(listingHandler.List)))
	mux.Handle("GET /api/listings/{id}", requireUser(http.HandlerFunc(listingHandler.Get)))
	mux.Handle("PUT /api/listings/{id}", requireUser(http.HandlerFunc(listingHandler.Update)))
	mux.Handle("DELETE /api/listings/{id}", requireUser(http.HandlerFunc(listingHandler.Delete)))

	mux.HandleFunc("GET /api/packs", packHandler.List)
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(billingHandler.CreateCheckout)))

	// Public: authenticated by the Stripe signature, not a bearer token.
	mux.HandleFunc("POST /webhooks/stripe", webhookHandler.HandleStripeWebhook)

	// ==========================================================================
	// Outer middleware and server
	// ==========================================================================

	corsMw := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
	})

	isSecure := cfg.Env != "development"
	root := middleware.Stack(
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		corsMw.Handler,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
	)(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

func newProvider(cfg *internal.Config, logger *slog.Logger) (ai.Provider, error) {
	if cfg.AIProvider == "anthropic" {
		return anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	}
	logger.Warn("using mock AI provider")
	return aimock.New(), nil
}

// newVerifier returns the JWKS verifier, or a verifier that rejects every
// token when auth is not configured. The API then serves anonymous traffic
// only.
func newVerifier(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (auth.Verifier, error) {
	if cfg.AuthJWKSURL == "" {
		logger.Warn("AUTH_JWKS_URL not set; all requests are treated as anonymous")
		return &auth.StaticVerifier{}, nil
	}
	return auth.NewJWKSVerifier(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthAudience)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
