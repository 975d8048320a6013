package repository

import (
	"context"

	"pix-membership-platform/internal/domain/model"
)

// PlanRepository reads the product/plan catalog. The payment pipeline never
// writes to it.
type PlanRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	List(ctx context.Context, tx Tx) ([]*model.Plan, error)
}

type CouponRepository interface {
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	IncrementUsage(ctx context.Context, tx Tx, code string) error
}
