package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/xenking/delivery-api/internal/domain/catalog"
	"github.com/xenking/delivery-api/internal/domain/checkout"
	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
	"github.com/xenking/delivery-api/internal/events"
	"github.com/xenking/delivery-api/internal/handler"
	"github.com/xenking/delivery-api/internal/storage/postgres"
	"github.com/xenking/delivery-api/internal/storage/rediscache"
	"github.com/xenking/delivery-api/pkg/health"
	"github.com/xenking/delivery-api/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name:    "goroutines",
		Kind:    health.Liveness,
		Timeout: time.Second,
		Func:    health.GoroutineCountCheck(10000),
	})

	// Repositories.
	catalogRepo := postgres.NewCatalogRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	tx := postgres.NewTransactor(pool)

	var restaurants catalog.Provider = catalogRepo
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		restaurants = rediscache.NewCatalog(catalogRepo, rdb, cfg.Redis.TTL)
		healthSvc.Register(health.Check{
			Name:     "redis",
			Kind:     health.Readiness,
			Timeout:  time.Second,
			Func:     health.PingCheck(health.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })),
			Optional: true,
		})
		lg.Info("Restaurant cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	var publisher order.EventPublisher = events.Nop{}
	if cfg.AMQP.URL != "" {
		pub, err := events.Dial(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return errors.Wrap(err, "dial amqp")
		}
		defer func() { _ = pub.Close() }()

		publisher = pub
		healthSvc.Register(health.Check{
			Name:     "amqp",
			Kind:     health.Readiness,
			Timeout:  time.Second,
			Func:     health.PingCheck(health.PingFunc(pub.Check)),
			Optional: true,
		})
		lg.Info("Order events enabled", zap.String("exchange", cfg.AMQP.Exchange))
	}

	// Domain services.
	validator := coupon.NewValidator(couponRepo, orderRepo)
	ledger := coupon.NewLedger(validator, couponRepo, tx)
	coupons := coupon.NewService(couponRepo, catalogRepo, tx)

	orders, err := order.NewService(restaurants, catalogRepo, orderRepo, publisher, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	checkoutSvc, err := checkout.New(orders, validator, ledger, tx, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP.
	authn := handler.NewAuthenticator([]byte(cfg.JWTSecret))
	h := handler.NewHandler(orders, checkoutSvc, coupons, validator)

	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router, authn)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
				TTL:   cfg.RateLimit.TTL,
			}),
			httpmiddleware.Instrument("delivery-api", m),
		),
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
