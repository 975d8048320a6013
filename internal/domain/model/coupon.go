package model

import (
	"time"

	"pix-membership-platform/internal/domain"
)

type CouponKind string

const (
	CouponKindPercent CouponKind = "percent"
	CouponKindFixed   CouponKind = "fixed"
)

// Coupon is a catalog discount applied at checkout time.
type Coupon struct {
	Code       string
	Kind       CouponKind
	Percent    int   // when Kind == percent, 0..100
	ValueCents int64 // when Kind == fixed
	MaxUses    int   // 0 = unlimited
	UsedCount  int
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Validate checks the coupon is still redeemable at now.
func (c *Coupon) Validate(now time.Time) error {
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return domain.ErrCouponExpired
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return domain.ErrCouponExhausted
	}
	return nil
}

// DiscountCents computes the discount against a base price, capped at the
// base price so totals never go negative.
func (c *Coupon) DiscountCents(baseCents int64) int64 {
	var d int64
	switch c.Kind {
	case CouponKindPercent:
		d = baseCents * int64(c.Percent) / 100
	case CouponKindFixed:
		d = c.ValueCents
	}
	if d > baseCents {
		d = baseCents
	}
	if d < 0 {
		d = 0
	}
	return d
}
