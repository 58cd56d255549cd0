package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/receivable"
	"github.com/odyssey-erp/odyssey-pos/internal/salenumber"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stock"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "api")

	dbpool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	runner := db.NewTxRunner(dbpool, cfg.TxMaxAttempts)
	runner.SetBackoff(cfg.TxRetryBackoff)
	runner.OnRetry(func(attempt int, err error) {
		logger.Warn("retrying transaction", slog.Int("attempt", attempt), slog.Any("error", err))
	})

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	readCache := cache.NewVersioned(redisClient, cfg.CacheTTL)

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotency := shared.NewIdempotencyStore(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	stockService := stock.NewService(stock.NewRepository(dbpool, runner), auditLogger, readCache, metrics, logger)
	creditService := credit.NewService(credit.NewRepository(dbpool))
	receivableService := receivable.NewService(
		receivable.NewRepository(dbpool, runner),
		creditService,
		auditLogger,
		jobClient,
		readCache,
		metrics,
		logger,
	)
	salesService := sales.NewService(
		sales.NewRepository(dbpool, runner),
		salenumber.NewGenerator(cfg.Location()),
		sales.ServiceConfig{
			ReceivableTerm: cfg.ReceivableTerm(),
			LowStockAlerts: cfg.LowStockAlerts,
		},
		sales.Ports{
			Audit:       auditLogger,
			Idempotency: idempotency,
			Events:      jobClient,
			Cache:       readCache,
			Metrics:     metrics,
			Logger:      logger,
		},
	)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SalesHandler:      sales.NewHandler(logger, salesService),
		StockHandler:      stock.NewHandler(logger, stockService),
		ReceivableHandler: receivable.NewHandler(logger, receivableService),
		CreditHandler:     credit.NewHandler(creditService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Database:          dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
