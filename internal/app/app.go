package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/order"
	"github.com/xenking/hawker-checkout/internal/domain/payment"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
	"github.com/xenking/hawker-checkout/internal/events"
	"github.com/xenking/hawker-checkout/internal/handler"
	"github.com/xenking/hawker-checkout/internal/nets"
	"github.com/xenking/hawker-checkout/internal/storage/postgres"
	"github.com/xenking/hawker-checkout/internal/storage/redis"
	"github.com/xenking/hawker-checkout/pkg/health"
	"github.com/xenking/hawker-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL migrations + pool.
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.Add(health.Check{Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second, Func: health.PingCheck("postgres", pool)})
	healthSvc.Add(health.Check{Name: "redis", Kind: health.Readiness, Timeout: 2 * time.Second, Func: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}})
	healthSvc.Add(health.Check{Name: "goroutines", Kind: health.Liveness, Func: health.GoroutineCountCheck(10000)})
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	store := postgres.NewStore(pool)
	cartRepo := postgres.NewCartRepository(pool)
	voucherRepo := postgres.NewVoucherRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Order events.
	var publisher payment.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, m.TracerProvider())
		defer func() {
			if err := producer.Close(); err != nil {
				lg.Warn("Close event producer", zap.Error(err))
			}
		}()
		publisher = producer
	} else {
		lg.Warn("No Kafka brokers configured, paid events are not published")
	}

	// Domain services.
	gateway := nets.New(nets.Config{
		BaseURL:      cfg.NETS.BaseURL,
		RequestPath:  cfg.NETS.RequestPath,
		QueryPath:    cfg.NETS.QueryPath,
		APIKey:       cfg.NETS.APIKey,
		ProjectID:    cfg.NETS.ProjectID,
		NotifyMobile: cfg.NETS.NotifyMobile,
		Timeout:      cfg.NETS.Timeout,
	}, nets.WithTelemetry(m.TracerProvider(), m.MeterProvider()))

	cartService := cart.NewService(cartRepo, store)
	escrow := voucher.NewEscrow(voucherRepo, store, cartRepo)
	orderService := order.NewService(orderRepo)
	factory := order.NewFactory(
		order.FactoryConfig{ServiceFeeCents: cfg.Checkout.ServiceFeeCents},
		store, escrow, order.NewCodeGenerator(),
	)
	paymentService := payment.NewService(
		payment.ServiceConfig{Window: cfg.Checkout.PaymentWindow},
		orderService,
		gateway,
		redis.NewSessionStore(rdb),
		payment.NewConfirmer(store, publisher),
	)

	// HTTP handlers.
	metrics, err := handler.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}
	h := handler.NewHandler(handler.Services{
		Checkout: factory,
		Orders:   orderService,
		Payments: paymentService,
		Carts:    cartService,
		Vouchers: escrow,
	}, metrics)
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))

	api := http.NewServeMux()
	h.Register(api)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", httpmiddleware.Wrap(api,
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Limiter: redis.NewRateLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window),
		}),
		securityHandler.Authenticate,
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Status queries wait on the gateway.
		WriteTimeout:   cfg.NETS.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Headers:     []string{"Content-Type", handler.APIKeyHeader, handler.UserIDHeader, httpmiddleware.RequestIDHeader},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("hawker-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}
	healthSvc.SetReady(true)

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
