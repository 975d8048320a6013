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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, name, phone, is_admin, is_anonymous, registered_at, last_active_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.IsAdmin, &u.IsAnonymous, &u.RegisteredAt, &u.LastActiveAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return u, nil
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  email=$2, name=$3, phone=$4, is_admin=$5, is_anonymous=$6, last_active_at=$8;`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Email, u.Name, u.Phone, u.IsAdmin, u.IsAnonymous, u.RegisteredAt, u.LastActiveAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1) LIMIT 1;`, email)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

const subscriptionColumns = `user_id, product_id, status, plan_id, started_at, expires_at, last_transaction_id`

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	s := &model.UserSubscription{}
	if err := row.Scan(&s.UserID, &s.ProductID, &s.Status, &s.PlanID, &s.StartedAt, &s.ExpiresAt, &s.LastTransactionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *userRepo) FindSubscription(ctx context.Context, tx repository.Tx, userID, productID string) (*model.UserSubscription, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id=$1 AND product_id=$2;`, userID, productID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *userRepo) FindSubscriptionForUpdate(ctx context.Context, tx repository.Tx, userID, productID string) (*model.UserSubscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 AND product_id=$2`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", userID, productID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *userRepo) UpsertSubscription(ctx context.Context, tx repository.Tx, sub *model.UserSubscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id, product_id) DO UPDATE SET
  status=$3, plan_id=$4, started_at=$5, expires_at=$6, last_transaction_id=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, sub.UserID, sub.ProductID, sub.Status, sub.PlanID, sub.StartedAt, sub.ExpiresAt, sub.LastTransactionID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) ListSubscriptions(ctx context.Context, tx repository.Tx, userID string) ([]*model.UserSubscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id=$1 ORDER BY product_id;`, userID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.UserSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *userRepo) DeleteStaleAnonymous(ctx context.Context, tx repository.Tx, inactiveSince time.Time) (int64, error) {
	const q = `
DELETE FROM users u
 WHERE u.is_anonymous
   AND u.last_active_at < $1
   AND NOT EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id);`
	cmd, err := execSQL(ctx, r.pool, tx, q, inactiveSince)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}
