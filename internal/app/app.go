package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/refund"
	"github.com/xenking/pos-pricing/internal/domain/session"
	"github.com/xenking/pos-pricing/internal/handler"
	"github.com/xenking/pos-pricing/internal/repository"
	"github.com/xenking/pos-pricing/internal/storage/redis"
	"github.com/xenking/pos-pricing/pkg/health"
	"github.com/xenking/pos-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(health.WithLogger(lg.Named("health")))
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Cart sessions live in Redis when configured so that any replica can
	// serve a register; otherwise they stay in process memory.
	var (
		store   session.Store = session.NewMemoryStore()
		limiter *httpmiddleware.SlidingWindow
	)
	if cfg.RedisURL != "" {
		rdb, err := newRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		store = redis.NewSessionStore(rdb, cfg.SessionTTL)
		limiter = httpmiddleware.NewSlidingWindow(rdb, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		})
	} else {
		lg.Warn("Redis URL not set, keeping carts in memory")
	}

	// Repositories.
	sales := repository.NewSaleRepository(pool)
	ledger := repository.NewRefundLedger(pool)

	// Domain services.
	sessionSvc, err := session.NewService(session.Deps{
		Store:      store,
		Promotions: repository.NewPromotionRepository(pool),
		Discounts:  repository.NewDiscountRepository(pool),
		Products:   repository.NewProductRepository(pool),
		Inventory:  repository.NewInventoryRepository(pool),
		Sales:      sales,
	},
		session.WithAllocator(allocator(cfg.Pricing)),
		session.WithLogger(lg.Named("session")),
		session.WithTracerProvider(m.TracerProvider()),
		session.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create session service")
	}
	refundSvc, err := refund.NewService(ledger,
		refund.WithWindow(cfg.Refund.Window),
		refund.WithLogger(lg.Named("refund")),
		refund.WithTracerProvider(m.TracerProvider()),
		refund.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create refund service")
	}

	go refundSvc.RunSweeper(ctx, cfg.Refund.SweepInterval)
	healthSvc.AddLivenessCheck("refund-sweeper", time.Second,
		health.StalenessCheck(refundSvc.LastSweep, 3*cfg.Refund.SweepInterval, cfg.Refund.SweepInterval+time.Minute),
	)
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.New(sessionSvc, refundSvc).Register(router)

	middlewares := []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "If-Match", httpmiddleware.RequestIDHeader, httpmiddleware.RegisterHeader},
			ExposeHeaders:    []string{"ETag", "Location", httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("pos-api", m.TracerProvider(), m.MeterProvider()),
	}
	if limiter != nil {
		middlewares = append(middlewares, httpmiddleware.RateLimit(limiter))
	}
	middlewares = append(middlewares, httpmiddleware.LogRequests())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           httpmiddleware.Wrap(router, middlewares...),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func newRedis(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := goredis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "instrument redis")
	}
	return rdb, nil
}

func allocator(cfg PricingConfig) pricing.Allocator {
	if !cfg.BuyUnitDiscount {
		return pricing.Allocator{}
	}
	return pricing.Allocator{BuyUnitDiscount: &pricing.BuyUnitDiscount{
		Rate: decimal.NewFromFloat(cfg.BuyUnitRate),
		Cap:  decimal.NewFromFloat(cfg.BuyUnitCap),
	}}
}
