package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pix-membership-platform/internal/config"
	"pix-membership-platform/internal/infra/redis"
	"pix-membership-platform/internal/usecase"
)

type Server struct {
	checkout   usecase.CheckoutUseCase
	settlement usecase.SettlementUseCase
	commission usecase.CommissionUseCase
	reconcile  usecase.ReconcileUseCase
	cleanup    usecase.CleanupUseCase

	auth        *AuthManager
	rateLimiter *redis.RateLimiter
	rateLimit   int
	rateWindow  time.Duration

	webhookSecret string
	cronSecret    string
	callbackURL   string
	dev           bool

	httpSrv *http.Server
	log     *zerolog.Logger
}

func NewServer(
	cfg *config.Config,
	checkout usecase.CheckoutUseCase,
	settlement usecase.SettlementUseCase,
	commission usecase.CommissionUseCase,
	reconcile usecase.ReconcileUseCase,
	cleanup usecase.CleanupUseCase,
	auth *AuthManager,
	rateLimiter *redis.RateLimiter,
	logger *zerolog.Logger,
) *Server {
	srvLog := logger.With().Str("component", "WebServer").Logger()
	s := &Server{
		checkout:      checkout,
		settlement:    settlement,
		commission:    commission,
		reconcile:     reconcile,
		cleanup:       cleanup,
		auth:          auth,
		rateLimiter:   rateLimiter,
		rateLimit:     cfg.Checkout.RateLimit,
		rateWindow:    cfg.Checkout.RateWindow,
		webhookSecret: cfg.Pix.WebhookSecret,
		cronSecret:    cfg.Server.CronSecret,
		callbackURL:   cfg.Pix.CallbackURL,
		dev:           cfg.Runtime.Dev,
		log:           &srvLog,
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/pix", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", s.handleCheckout)

		r.Group(func(r chi.Router) {
			r.Use(CronAuth(s.cronSecret))
			r.Post("/cron/reconcile", s.handleCronReconcile)
			r.Post("/cron/cleanup", s.handleCronCleanup)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAdmin(s.log))
			r.Post("/admin/commissions/{paymentID}/cancel", s.handleCommissionCancel)
			r.Post("/admin/commissions/{paymentID}/release", s.handleCommissionRelease)
			r.Post("/affiliates/{refCode}/withdrawals", s.handleWithdrawal)
		})
	})

	return Chain(r, TraceID(), Recover(s.log), RequestLog(s.log), Timeout(30*time.Second))
}

// Start blocks until the listener fails or ctx is cancelled, then shuts the
// server down draining in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
