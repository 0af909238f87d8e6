package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/engage-orders/internal/domain/order"
	"github.com/xenking/engage-orders/internal/domain/payment"
	"github.com/xenking/engage-orders/internal/handler"
	"github.com/xenking/engage-orders/internal/provider"
	"github.com/xenking/engage-orders/internal/provider/coinbase"
	"github.com/xenking/engage-orders/internal/provider/dodo"
	"github.com/xenking/engage-orders/internal/redisstore"
	"github.com/xenking/engage-orders/internal/repository"
	"github.com/xenking/engage-orders/pkg/health"
	"github.com/xenking/engage-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the payment
// sweeper, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	ctx = zctx.Base(ctx, lg)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := health.New()
	probes.Register(health.Readiness, "postgres", health.Ping("postgres", pool.Ping), health.Options{Timeout: 5 * time.Second})
	probes.Register(health.Liveness, "goroutines", health.Goroutines(10000), health.Options{})
	probes.Register(health.Liveness, "gc", health.GCPause(time.Second), health.Options{})

	// Redis is optional: without it webhook replays rely on idempotent
	// status application alone.
	var deliveries payment.DeliveryStore
	if cfg.RedisURL != "" {
		rdb, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		deliveries = redisstore.New(rdb)
		probes.Register(health.Readiness, "redis", health.Ping("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}), health.Options{Timeout: 2 * time.Second})
	} else {
		lg.Warn("Redis is not configured, webhook deliveries will not be deduplicated")
	}

	probes.Run(ctx, 10*time.Second)
	defer probes.Stop()

	// Repositories.
	store := repository.NewStore(pool)
	catalogRepo := repository.NewCatalogRepository(store)
	couponRepo := repository.NewCouponRepository(store)
	orderRepo := repository.NewOrderRepository(store)
	apikeyRepo := repository.NewAPIKeyRepository(store)

	// Domain services.
	orders := order.NewService(catalogRepo, couponRepo, orderRepo, store,
		order.WithMeterProvider(m.MeterProvider()),
	)

	httpClient := provider.NewHTTPClient(cfg.Payments.Timeout, m.TracerProvider())
	providers := payment.NewRegistry(
		dodo.New(dodo.Config{
			APIKey:        cfg.Dodo.APIKey,
			BaseURL:       cfg.Dodo.BaseURL,
			WebhookSecret: cfg.Dodo.WebhookSecret,
			CallbackURL:   webhookURL(cfg.Payments.PublicBaseURL, dodo.Name),
			ReturnURL:     cfg.Payments.FrontendURL + "/order-success",
			CancelURL:     cfg.Payments.FrontendURL + "/order-cancelled",
		}, httpClient),
		coinbase.New(coinbase.Config{
			APIKey:        cfg.Coinbase.APIKey,
			BaseURL:       cfg.Coinbase.BaseURL,
			WebhookSecret: cfg.Coinbase.WebhookSecret,
			RedirectURL:   cfg.Payments.FrontendURL + "/order-success",
			CancelURL:     cfg.Payments.FrontendURL + "/order-cancelled",
		}, httpClient),
	)

	reconciler, err := payment.NewReconciler(orders, providers, deliveries, payment.Config{
		ProviderTimeout: cfg.Payments.Timeout,
		DeliveryTTL:     cfg.Payments.DeliveryTTL,
		SweepAge:        cfg.Payments.SweepAge,
		SweepBatch:      cfg.Payments.SweepBatch,
	}, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create reconciler")
	}

	if cfg.Payments.SweepInterval > 0 {
		sweeper, err := startSweeper(ctx, cfg.Payments.SweepInterval, reconciler.Sweep)
		if err != nil {
			return errors.Wrap(err, "start sweeper")
		}
		defer func() {
			if err := sweeper.Shutdown(); err != nil {
				lg.Warn("Sweeper shutdown", zap.Error(err))
			}
		}()
	}

	// HTTP handlers.
	authn := handler.NewAuthenticator(apikeyRepo, []byte(cfg.Auth.APIKeyPepper), []byte(cfg.Auth.JWTSecret))
	h := handler.NewHandler(orders, reconciler, providers, authn)

	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests())
	router.Get("/livez", probes.LiveEndpoint)
	router.Get("/readyz", probes.ReadyEndpoint)
	h.Mount(router)

	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	go limiter.RunPruner(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Payments.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isWebhook,
			}, limiter),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("engage-api", m.TracerProvider(), m.MeterProvider()),
		),
	}

	probes.MarkReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		probes.MarkReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func webhookURL(base, providerName string) string {
	return base + "/api/payments/" + providerName + "/webhook"
}

// isWebhook reports provider callbacks, which are never rate limited.
func isWebhook(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/payments/") && strings.HasSuffix(r.URL.Path, "/webhook")
}
