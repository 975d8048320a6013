package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/infra/redis"
	"pix-membership-platform/internal/usecase"
)

const reconcileLockKey = "lock:payment_reconciler"

// PaymentReconciler periodically runs a reconciliation pass over stale
// pending payments. The distributed lock keeps the pass single-flight when
// several instances run; the HTTP cron trigger shares the same use case, so
// either entry point can drive it.
type PaymentReconciler struct {
	uc       usecase.ReconcileUseCase
	locker   redis.Locker
	interval time.Duration
	log      *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.ReconcileUseCase, locker redis.Locker, interval time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	wLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, locker: locker, interval: interval, log: &wLog}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, reconcileLockKey, w.interval)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		return
	}
	if err != nil {
		w.log.Warn().Err(err).Msg("reconcile lock error")
		return
	}
	defer func() {
		if err := w.locker.Unlock(context.Background(), reconcileLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("reconcile unlock failed")
		}
	}()

	if _, err := w.uc.Run(ctx); err != nil {
		w.log.Error().Err(err).Msg("reconciliation pass failed")
	}
}
