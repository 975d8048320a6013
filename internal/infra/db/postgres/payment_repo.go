package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/model"
	"pix-membership-platform/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, user_email, user_name, user_phone, plan_ids, base_price_cents, discount_cents, total_cents, coupon_code, status, failure_reason, gateway_transaction_id, gateway_end_to_end_id, affiliate_id, commission_cents, commission_status, created_at, processed_at`

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	p := &model.PaymentRecord{}
	if err := row.Scan(
		&p.ID, &p.UserID, &p.UserEmail, &p.UserName, &p.UserPhone, &p.PlanIDs,
		&p.BasePriceCents, &p.DiscountCents, &p.TotalCents, &p.CouponCode,
		&p.Status, &p.FailureReason, &p.GatewayTransactionID, &p.GatewayEndToEndID,
		&p.AffiliateID, &p.CommissionCents, &p.CommissionStatus, &p.CreatedAt, &p.ProcessedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	// ON CONFLICT on the gateway reference makes webhook-side record
	// reconstruction race-safe: two deliveries converge on one row.
	const q = `
INSERT INTO payments (` + paymentColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
) ON CONFLICT (gateway_transaction_id) DO NOTHING;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.UserEmail, p.UserName, p.UserPhone, p.PlanIDs,
		p.BasePriceCents, p.DiscountCents, p.TotalCents, p.CouponCode,
		p.Status, p.FailureReason, p.GatewayTransactionID, p.GatewayEndToEndID,
		p.AffiliateID, p.CommissionCents, p.CommissionStatus, p.CreatedAt, p.ProcessedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByGatewayTransactionID(ctx context.Context, tx repository.Tx, gatewayTxID string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_transaction_id=$1 LIMIT 1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", gatewayTxID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// CompleteIfPending atomically flips pending->completed; the WHERE clause is
// the idempotency guard racing webhook and reconciler writers.
func (r *paymentRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id string, endToEndID *string, processedAt time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET status = 'completed',
       gateway_end_to_end_id = COALESCE($2, gateway_end_to_end_id),
       processed_at = $3
 WHERE id = $1
   AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, endToEndID, processedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) FailIfPending(ctx context.Context, tx repository.Tx, id string, reason string, processedAt time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET status = 'failed',
       failure_reason = $2,
       processed_at = $3
 WHERE id = $1
   AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, reason, processedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) SetCommissionStatus(ctx context.Context, tx repository.Tx, id string, status model.CommissionStatus, processedAt *time.Time) error {
	const q = `UPDATE payments SET commission_status=$2, processed_at=COALESCE($3, processed_at) WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status, processedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) DeleteTerminalOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	const q = `DELETE FROM payments WHERE status IN ('failed','pending') AND created_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, olderThan)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}
