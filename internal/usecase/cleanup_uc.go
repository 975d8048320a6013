package usecase

import (
	"context"
	"time"

	"pix-membership-platform/internal/domain/ports/repository"
	"pix-membership-platform/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ CleanupUseCase = (*cleanupUC)(nil)

// CleanupUseCase enforces the retention policy: failed and abandoned-pending
// payment records past their window, and anonymous accounts that never
// bought anything. Completed payments and registered users are never swept.
type CleanupUseCase interface {
	PurgeStalePayments(ctx context.Context) (int64, error)
	PurgeAnonymousUsers(ctx context.Context) (int64, error)
}

type cleanupUC struct {
	payments           repository.PaymentRepository
	users              repository.UserRepository
	paymentRetention   time.Duration
	anonymousRetention time.Duration
	log                *zerolog.Logger
}

func NewCleanupUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	paymentRetention, anonymousRetention time.Duration,
	logger *zerolog.Logger,
) *cleanupUC {
	ucLog := logger.With().Str("component", "CleanupUC").Logger()
	return &cleanupUC{
		payments:           payments,
		users:              users,
		paymentRetention:   paymentRetention,
		anonymousRetention: anonymousRetention,
		log:                &ucLog,
	}
}

func (c *cleanupUC) PurgeStalePayments(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.paymentRetention)
	n, err := c.payments.DeleteTerminalOlderThan(ctx, repository.NoTX, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddCleanupDeleted("payment", n)
		c.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("stale payment records purged")
	}
	return n, nil
}

func (c *cleanupUC) PurgeAnonymousUsers(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.anonymousRetention)
	n, err := c.users.DeleteStaleAnonymous(ctx, repository.NoTX, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddCleanupDeleted("anonymous_user", n)
		c.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("stale anonymous users purged")
	}
	return n, nil
}
