package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/model"
	"pix-membership-platform/internal/domain/ports/repository"
)

var _ repository.AffiliateRepository = (*affiliateRepo)(nil)

type affiliateRepo struct{ pool *pgxpool.Pool }

func NewAffiliateRepo(pool *pgxpool.Pool) *affiliateRepo {
	return &affiliateRepo{pool: pool}
}

const affiliateColumns = `ref_code, user_id, commission_percent, pending_balance_cents, available_balance_cents, paid_balance_cents, total_earned_cents, created_at`

func scanAffiliate(row pgx.Row) (*model.Affiliate, error) {
	a := &model.Affiliate{}
	if err := row.Scan(&a.RefCode, &a.UserID, &a.CommissionPercent, &a.PendingBalanceCents, &a.AvailableBalanceCents, &a.PaidBalanceCents, &a.TotalEarnedCents, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAffiliateNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

func (r *affiliateRepo) Save(ctx context.Context, tx repository.Tx, a *model.Affiliate) error {
	const q = `
INSERT INTO affiliates (` + affiliateColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (ref_code) DO UPDATE SET
  user_id=$2, commission_percent=$3;`
	_, err := execSQL(ctx, r.pool, tx, q, a.RefCode, a.UserID, a.CommissionPercent, a.PendingBalanceCents, a.AvailableBalanceCents, a.PaidBalanceCents, a.TotalEarnedCents, a.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *affiliateRepo) FindByRefCode(ctx context.Context, tx repository.Tx, refCode string) (*model.Affiliate, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+affiliateColumns+` FROM affiliates WHERE ref_code=$1;`, refCode)
	if err != nil {
		return nil, err
	}
	return scanAffiliate(row)
}

func (r *affiliateRepo) FindByRefCodeForUpdate(ctx context.Context, tx repository.Tx, refCode string) (*model.Affiliate, error) {
	q := `SELECT ` + affiliateColumns + ` FROM affiliates WHERE ref_code=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", refCode)
	if err != nil {
		return nil, err
	}
	return scanAffiliate(row)
}

// AdjustBalances applies signed deltas; the CHECK constraints on the
// balance columns are the last line of defense against negative ledgers.
func (r *affiliateRepo) AdjustBalances(ctx context.Context, tx repository.Tx, refCode string, pendingDelta, availableDelta, paidDelta, earnedDelta int64) error {
	const q = `
UPDATE affiliates
   SET pending_balance_cents   = pending_balance_cents + $2,
       available_balance_cents = available_balance_cents + $3,
       paid_balance_cents      = paid_balance_cents + $4,
       total_earned_cents      = total_earned_cents + $5
 WHERE ref_code = $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, refCode, pendingDelta, availableDelta, paidDelta, earnedDelta)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAffiliateNotFound
	}
	return nil
}

func (r *affiliateRepo) SaveWithdrawal(ctx context.Context, tx repository.Tx, w *model.WithdrawalRequest) error {
	const q = `
INSERT INTO withdrawal_requests (id, affiliate_ref_code, amount_cents, pix_key, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, w.ID, w.AffiliateRefCode, w.AmountCents, w.PixKey, w.Status, w.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
