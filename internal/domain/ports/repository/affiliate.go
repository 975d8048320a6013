package repository

import (
	"context"

	"pix-membership-platform/internal/domain/model"
)

type AffiliateRepository interface {
	Save(ctx context.Context, tx Tx, a *model.Affiliate) error
	FindByRefCode(ctx context.Context, tx Tx, refCode string) (*model.Affiliate, error)
	// FindByRefCodeForUpdate locks the affiliate row so that a commission
	// credit and a concurrent cancellation can never both compute against
	// the same stale pending balance.
	FindByRefCodeForUpdate(ctx context.Context, tx Tx, refCode string) (*model.Affiliate, error)

	// AdjustBalances applies signed deltas to the ledger columns. Callers
	// validate non-negativity under the row lock before invoking it.
	AdjustBalances(ctx context.Context, tx Tx, refCode string, pendingDelta, availableDelta, paidDelta, earnedDelta int64) error

	SaveWithdrawal(ctx context.Context, tx Tx, w *model.WithdrawalRequest) error
}
