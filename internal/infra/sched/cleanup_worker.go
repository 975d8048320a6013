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

const cleanupLockKey = "lock:cleanup_worker"

// CleanupWorker enforces the retention policy on a slow cadence. Deleting is
// cheap and idempotent; a missed tick just means the next one has more rows.
type CleanupWorker struct {
	uc       usecase.CleanupUseCase
	locker   redis.Locker
	interval time.Duration
	log      *zerolog.Logger
}

func NewCleanupWorker(uc usecase.CleanupUseCase, locker redis.Locker, interval time.Duration, logger *zerolog.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	wLog := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{uc: uc, locker: locker, interval: interval, log: &wLog}
}

func (w *CleanupWorker) Start(ctx context.Context) {
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

func (w *CleanupWorker) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, cleanupLockKey, w.interval)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		return
	}
	if err != nil {
		w.log.Warn().Err(err).Msg("cleanup lock error")
		return
	}
	defer func() {
		if err := w.locker.Unlock(context.Background(), cleanupLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("cleanup unlock failed")
		}
	}()

	if _, err := w.uc.PurgeStalePayments(ctx); err != nil {
		w.log.Error().Err(err).Msg("payment purge failed")
	}
	if _, err := w.uc.PurgeAnonymousUsers(ctx); err != nil {
		w.log.Error().Err(err).Msg("anonymous user purge failed")
	}
}
