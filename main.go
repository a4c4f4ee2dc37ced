package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appOrder "github.com/Zhima-Mochi/minishop-saga/internal/application/order"
	"github.com/Zhima-Mochi/minishop-saga/internal/config"
	domainIdentity "github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	domainInventory "github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/identity"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/redisledger"
	"github.com/Zhima-Mochi/minishop-saga/internal/pkg/logging"
	"github.com/Zhima-Mochi/minishop-saga/internal/pkg/retry"
	httppresentation "github.com/Zhima-Mochi/minishop-saga/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-saga/internal/presentation/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type catalogEntry struct {
	product domainInventory.Product
	stock   int
}

var demoCatalog = []catalogEntry{
	{domainInventory.Product{ID: "laptop", Name: "Laptop", UnitPrice: decimal.RequireFromString("999.99")}, 10},
	{domainInventory.Product{ID: "mouse", Name: "Wireless Mouse", UnitPrice: decimal.RequireFromString("29.99")}, 50},
	{domainInventory.Product{ID: "keyboard", Name: "Mechanical Keyboard", UnitPrice: decimal.RequireFromString("89.99")}, 25},
	{domainInventory.Product{ID: "monitor", Name: "27\" Monitor", UnitPrice: decimal.RequireFromString("299.99")}, 15},
	{domainInventory.Product{ID: "headphones", Name: "Headphones", UnitPrice: decimal.RequireFromString("149.99")}, 30},
}

var demoUsers = []domainIdentity.User{
	{ID: "user_1", Name: "Demo User", Email: "demo@example.com"},
	{ID: "user_2", Name: "Test User", Email: "test@example.com"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("config_load_failed", zap.Error(err))
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.New("", "", registry).Instruments()
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), zaplogger.Wrap(baseLogger), counters, histograms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger, err := newLedger(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("ledger_init_failed", zap.Error(err))
	}
	defer closeLedger()

	orders, closeOrders, err := newOrderRepository(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("order_store_init_failed", zap.Error(err))
	}
	defer closeOrders()

	policy := retry.Policy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     retry.DefaultPolicy().MaxInterval,
	}

	var verifier domainIdentity.Verifier = identity.NewDirectory(demoUsers...)
	if cfg.IdentityBaseURL != "" {
		verifier = identity.NewClient(cfg.IdentityBaseURL, &http.Client{}, policy, tel)
	}
	var gateway domainPayment.Gateway = payment.NewSimulator(cfg.PaymentDeclineRate, time.Now().UnixNano())
	if cfg.PaymentBaseURL != "" {
		gateway = payment.NewClient(cfg.PaymentBaseURL, &http.Client{}, policy, tel)
	}

	// In-process event bus; Kafka and the audit worker hang off it.
	bus := outbox.NewBus(tel.Logger(), cfg.EventBuffer)
	workerpresentation.NewAuditWorker(tel).Start(bus)
	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		writer := kafka.NewWriter(brokers, cfg.KafkaTopic)
		defer func() { _ = writer.Close() }()
		kafka.NewForwarder(writer, tel).Register(bus)
		systemLogger.Info("kafka_forwarding_enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	}
	bus.Start(ctx)

	orchestrator := appOrder.NewOrchestrator(appOrder.Deps{
		Orders:    orders,
		Ledger:    ledger,
		Identity:  verifier,
		Payments:  gateway,
		Publisher: bus,
		IDs:       id.NewUUIDGenerator(),
	}, appOrder.Config{
		Currency:        cfg.Currency,
		DefaultProvider: cfg.PaymentProvider,
		IdentityTimeout: cfg.IdentityTimeout,
		PaymentTimeout:  cfg.PaymentTimeout,
	}, tel)

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	handler := httppresentation.NewHandler(httppresentation.NewUseCases(orchestrator), metricsHandler, tel)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error",
				zap.Error(err),
			)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Error("event_bus_drain_error", zap.Error(err))
	}
}

// newLedger returns the Redis ledger when REDIS_ADDR is set, otherwise the
// in-memory one. Both are seeded with the demo catalog; existing Redis stock
// counters are left as they are.
func newLedger(ctx context.Context, cfg config.Config) (domainInventory.Ledger, func(), error) {
	if cfg.RedisAddr == "" {
		ledger := memory.NewInventoryLedger()
		for _, e := range demoCatalog {
			if err := ledger.Seed(e.product, e.stock); err != nil {
				return nil, nil, err
			}
		}
		return ledger, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	ledger := redisledger.New(client)
	for _, e := range demoCatalog {
		if err := ledger.Seed(ctx, e.product, e.stock); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	return ledger, func() { _ = client.Close() }, nil
}

func newOrderRepository(ctx context.Context, cfg config.Config) (domainOrder.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		return memory.NewOrderRepository(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewOrderRepository(pool), pool.Close, nil
}
