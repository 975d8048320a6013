package repository

import (
	"context"
	"time"

	"pix-membership-platform/internal/domain/model"
)

// UserRepository is the User Directory: profile plus the per-product
// subscriptions map.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	// FindByEmail is the compatibility fallback used when a webhook payload
	// carries no user id.
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)

	FindSubscription(ctx context.Context, tx Tx, userID, productID string) (*model.UserSubscription, error)
	// FindSubscriptionForUpdate locks the subscription row for the duration
	// of the transaction; returns ErrNotFound when the user has never held
	// the product.
	FindSubscriptionForUpdate(ctx context.Context, tx Tx, userID, productID string) (*model.UserSubscription, error)
	UpsertSubscription(ctx context.Context, tx Tx, sub *model.UserSubscription) error
	ListSubscriptions(ctx context.Context, tx Tx, userID string) ([]*model.UserSubscription, error)

	// DeleteStaleAnonymous removes anonymous accounts inactive since the
	// cutoff that hold no subscriptions. Returns the number deleted.
	DeleteStaleAnonymous(ctx context.Context, tx Tx, inactiveSince time.Time) (int64, error)
}
