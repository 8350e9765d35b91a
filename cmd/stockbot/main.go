package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockbot/internal/broker"
	"stockbot/internal/config"
	cronrunner "stockbot/internal/cron"
	"stockbot/internal/db"
	"stockbot/internal/handler"
	"stockbot/internal/leaderboard"
	"stockbot/internal/logger"
	"stockbot/internal/notify"
	gormrepository "stockbot/internal/repository/gorm"
	"stockbot/internal/service"
)

func main() {
	cfgPath := os.Getenv("SB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	var venue broker.Broker
	switch cfg.Broker.Provider {
	case "alpaca":
		venue = broker.NewAlpacaBroker(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL)
	default:
		venue = broker.NewPaperBroker(decimal.NewFromFloat(cfg.Rebalance.InitialCapital), nil)
		logger.Warn("using paper broker, no real orders will be placed")
	}

	rankingHTTP := &http.Client{Timeout: cfg.Leaderboard.Timeout}
	ranking := leaderboard.NewClient(rankingHTTP, cfg.Leaderboard.APIURL, cfg.Leaderboard.APIToken)

	cashSvc := &service.CashLedgerService{Repo: store, Logger: logger}
	ownershipSvc := &service.OwnershipLedgerService{Repo: store, Logger: logger}
	tradeSvc := &service.TradeLedgerService{Repo: store, Logger: logger}
	runSvc := &service.RunTrackerService{Repo: store, Logger: logger}
	reconcilerSvc := &service.ReconcilerService{Repo: store, Ownership: ownershipSvc, Logger: logger}
	checkerSvc := &service.StatusCheckerService{
		Trades:    tradeSvc,
		Cash:      cashSvc,
		Ownership: ownershipSvc,
		Runs:      runSvc,
		Broker:    venue,
		Logger:    logger,
	}
	rebalancerSvc := &service.RebalancerService{
		Broker:     venue,
		Ranking:    ranking,
		Trades:     tradeSvc,
		Cash:       cashSvc,
		Ownership:  ownershipSvc,
		Reconciler: reconcilerSvc,
		Logger:     logger,
	}

	runner := &service.Runner{
		Portfolios:      portfolioSpecs(cfg, logger),
		Rebalancer:      rebalancerSvc,
		Runs:            runSvc,
		Checker:         checkerSvc,
		Cash:            cashSvc,
		Notifier:        initNotifier(cfg, logger),
		Logger:          logger,
		HistoryLookback: time.Duration(cfg.Rebalance.LookbackDays) * 24 * time.Hour,
		DryRun:          cfg.Rebalance.DryRun,
	}
	if runner.DryRun {
		logger.Warn("dry run mode, no orders will be submitted")
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	rebalanceHandler := &handler.RebalanceHandler{
		Runner: runner,
		Runs:   runSvc,
		Secret: cfg.Server.WebhookSecret,
		Logger: logger,
	}
	rebalanceHandler.Register(engine)
	ledgerHandler := &handler.LedgerHandler{Repo: store}
	ledgerHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add(cfg.Cron.Rebalance, runner.RunAll); err != nil {
			logger.Warn("cron register rebalance failed", zap.Error(err))
		}
		pollSpec := "@every " + cfg.Rebalance.PollInterval.String()
		if _, err := cronRunner.Add(pollSpec, func(ctx context.Context) {
			for _, spec := range runner.Portfolios {
				if _, err := checkerSvc.CheckSubmittedTrades(ctx, spec.Name); err != nil {
					logger.Warn("trade status poll failed",
						zap.String("portfolio", spec.Name),
						zap.Error(err))
				}
			}
		}); err != nil {
			logger.Warn("cron register status poll failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func portfolioSpecs(cfg config.Config, logger *zap.Logger) []service.PortfolioSpec {
	specs := make([]service.PortfolioSpec, 0, len(cfg.Portfolios))
	for _, p := range cfg.Portfolios {
		loc := time.UTC
		if p.Timezone != "" {
			parsed, err := time.LoadLocation(p.Timezone)
			if err != nil {
				logger.Warn("invalid portfolio timezone, using UTC",
					zap.String("portfolio", p.Name),
					zap.String("timezone", p.Timezone))
			} else {
				loc = parsed
			}
		}
		initial := decimal.NewFromFloat(p.InitialCapital)
		if initial.LessThanOrEqual(decimal.Zero) {
			initial = decimal.NewFromFloat(cfg.Rebalance.InitialCapital)
		}
		specs = append(specs, service.PortfolioSpec{
			Name:           p.Name,
			IndexID:        p.IndexID,
			StockCount:     p.StockCount,
			Slack:          p.Slack,
			InitialCapital: initial,
			Timezone:       loc,
		})
	}
	return specs
}

func initNotifier(cfg config.Config, logger *zap.Logger) service.Notifier {
	switch strings.ToLower(cfg.Notify.Provider) {
	case "smtp":
		return notify.NewSMTPNotifier(cfg.Notify.SMTP, cfg.Notify.From, cfg.Notify.To, logger)
	case "sendgrid":
		return notify.NewSendGridNotifier(cfg.Notify.SendGrid, cfg.Notify.From, cfg.Notify.To, logger)
	}
	return nil
}
