package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"referral-ledger/clock"
	"referral-ledger/config"
	"referral-ledger/handlers"
	"referral-ledger/logging"
	"referral-ledger/middleware"
	"referral-ledger/monitoring"
	"referral-ledger/services"
	"referral-ledger/store"
	"referral-ledger/utils"
	"referral-ledger/workers"

	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Production())
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	settings := services.NewSettingsService(st, logger)
	if cfg.Settings.SeedDefaults {
		if err := settings.SeedDefaults(ctx); err != nil {
			return err
		}
	}

	deps := services.Deps{
		Store:    st,
		Settings: settings,
		Clock:    clock.RealClock{},
		Log:      logger,
		Metrics:  metrics,
	}

	var (
		proofs   *utils.R2ProofStore
		verifier services.ProofVerifier
		uploader handlers.ProofUploader
	)
	if cfg.R2Enabled() {
		proofs, err = utils.NewR2ProofStore(ctx, utils.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		})
		if err != nil {
			return err
		}
		verifier, uploader = proofs, proofs
		logger.Info("R2 proof storage enabled", zap.String("bucket", cfg.R2.Bucket))
	}

	accounts := services.NewAccountService(deps)
	returns := services.NewReturnProcessor(deps, cfg.Scheduler.Workers)
	scheduler := services.NewReturnScheduler(returns, cfg.Scheduler.Interval, logger, metrics)

	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("return scheduler shutdown", zap.Error(err))
			}
		}()
	}

	if cfg.Sync.URL != "" {
		workers.NewAccountSyncWorker(accounts, cfg.Sync.URL, cfg.Sync.Token, cfg.Sync.Interval, logger).Start(ctx)
	}

	app := handlers.NewApp()
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.RequestLogger(logger))
	app.Use(middleware.HTTPMetrics(metrics))

	handlers.SetupSystemRoutes(app, reg)
	app.Use(middleware.GatewayAuthMiddleware(cfg.Gateway.Token, logger))
	handlers.SetupLedgerRoutes(app, handlers.NewLedgerHandler(handlers.LedgerHandlerConfig{
		Accounts:    accounts,
		Investments: services.NewInvestmentService(deps),
		Withdrawals: services.NewWithdrawalService(deps),
		Deposits:    services.NewDepositService(deps, verifier),
		Earnings:    services.NewEarningService(deps),
		Returns:     scheduler,
		Proofs:      uploader,
		Log:         logger,
	}), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("scheduler", cfg.Scheduler.Enabled),
			zap.Bool("account_sync", cfg.Sync.URL != ""),
		)
		errCh <- app.Listen(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return app.ShutdownWithTimeout(15 * time.Second)
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}
	return store.NewGormStore(db), nil
}
