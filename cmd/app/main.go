package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pix-membership-platform/internal/config"
	pg "pix-membership-platform/internal/infra/db/postgres"
	"pix-membership-platform/internal/infra/logging"
	"pix-membership-platform/internal/infra/metrics"
	"pix-membership-platform/internal/infra/notify"
	pay "pix-membership-platform/internal/infra/payment"
	red "pix-membership-platform/internal/infra/redis"
	"pix-membership-platform/internal/infra/sched"
	"pix-membership-platform/internal/infra/web"
	"pix-membership-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	paymentRepo := pg.NewPaymentRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	couponRepo := pg.NewCouponRepo(pool)
	affiliateRepo := pg.NewAffiliateRepo(pool)

	// ---- Adapters ----
	gateway := pay.NewPixGatewayClient(cfg.Pix.BaseURL, cfg.Pix.APIKey)
	sink := notify.NewWebhookSink(cfg.Notification.AutomationURL, logger)

	// ---- Use cases ----
	settlementUC := usecase.NewSettlementUseCase(
		paymentRepo, userRepo, planRepo, affiliateRepo,
		gateway, sink, tm, pay.ParseLegacyPlanList, logger,
	)
	checkoutUC := usecase.NewCheckoutUseCase(
		paymentRepo, userRepo, planRepo, couponRepo, affiliateRepo,
		gateway, cfg.Pix.ChargeTTL, logger,
	)
	commissionUC := usecase.NewCommissionUseCase(paymentRepo, affiliateRepo, sink, tm, logger)
	reconcileUC := usecase.NewReconcileUseCase(
		paymentRepo, gateway, settlementUC,
		cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchSize, logger,
	)
	cleanupUC := usecase.NewCleanupUseCase(
		paymentRepo, userRepo,
		cfg.Cleanup.PaymentRetention, cfg.Cleanup.AnonymousRetention, logger,
	)

	// ---- Workers ----
	reconciler := sched.NewPaymentReconciler(reconcileUC, locker, cfg.Reconciler.Interval, logger)
	go reconciler.Start(ctx)
	cleaner := sched.NewCleanupWorker(cleanupUC, locker, cfg.Cleanup.Interval, logger)
	go cleaner.Start(ctx)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL, userRepo)
	server := web.NewServer(cfg, checkoutUC, settlementUC, commissionUC,
		reconcileUC, cleanupUC, auth, rateLimiter, logger)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
		logger.Info().Msg("shutdown requested")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}
