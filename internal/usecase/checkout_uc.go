package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/model"
	"pix-membership-platform/internal/domain/ports/adapter"
	"pix-membership-platform/internal/domain/ports/repository"
	"pix-membership-platform/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutInput is a priced basket: one or more catalog plans, an optional
// coupon, an optional affiliate attribution. The payer snapshot is taken
// from the user record, or from the inline fields when the buyer has no
// account yet.
type CheckoutInput struct {
	UserID     string
	GuestEmail string
	GuestName  string
	GuestPhone string

	PlanIDs         []string
	CouponCode      string
	AffiliateRef    string
	CallbackURL     string
	DescriptionNote string
}

// CheckoutResult is what the buyer needs to pay: the record id to poll and
// the PIX code in both forms.
type CheckoutResult struct {
	PaymentID         string
	GatewayTxID       string
	TotalCents        int64
	DiscountCents     int64
	QRCodeText        string
	QRCodeImageBase64 string
	ExpiresAt         time.Time
}

type CheckoutUseCase interface {
	// CreateCharge prices the basket, creates the gateway charge and
	// persists the pending payment record that the webhook or the poller
	// will later settle.
	CreateCharge(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
}

type checkoutUC struct {
	payments   repository.PaymentRepository
	users      repository.UserRepository
	plans      repository.PlanRepository
	coupons    repository.CouponRepository
	affiliates repository.AffiliateRepository
	gateway    adapter.PixGateway
	chargeTTL  time.Duration
	log        *zerolog.Logger
}

func NewCheckoutUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	plans repository.PlanRepository,
	coupons repository.CouponRepository,
	affiliates repository.AffiliateRepository,
	gateway adapter.PixGateway,
	chargeTTL time.Duration,
	logger *zerolog.Logger,
) *checkoutUC {
	ucLog := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{
		payments:   payments,
		users:      users,
		plans:      plans,
		coupons:    coupons,
		affiliates: affiliates,
		gateway:    gateway,
		chargeTTL:  chargeTTL,
		log:        &ucLog,
	}
}

func (c *checkoutUC) CreateCharge(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if len(in.PlanIDs) == 0 {
		return nil, fmt.Errorf("%w: empty basket", domain.ErrInvalidArgument)
	}

	user, err := c.resolveBuyer(ctx, in)
	if err != nil {
		return nil, err
	}

	plans := make([]*model.Plan, 0, len(in.PlanIDs))
	seenProducts := make(map[string]string, len(in.PlanIDs))
	var baseCents int64
	for _, planID := range in.PlanIDs {
		plan, err := c.plans.FindByID(ctx, repository.NoTX, planID)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", planID, err)
		}
		if prev, dup := seenProducts[plan.ProductID]; dup {
			return nil, fmt.Errorf("%w: plans %s and %s target the same product", domain.ErrDuplicateProductPlan, prev, planID)
		}
		seenProducts[plan.ProductID] = planID
		plans = append(plans, plan)
		baseCents += plan.PriceCents
	}

	now := time.Now()
	var discountCents int64
	couponCode := strings.TrimSpace(in.CouponCode)
	if couponCode != "" {
		coupon, err := c.coupons.FindByCode(ctx, repository.NoTX, couponCode)
		if err != nil {
			return nil, fmt.Errorf("coupon %s: %w", couponCode, err)
		}
		if err := coupon.Validate(now); err != nil {
			return nil, err
		}
		discountCents = coupon.DiscountCents(baseCents)
	}
	totalCents := baseCents - discountCents

	rec := &model.PaymentRecord{
		ID:               model.NewPaymentID(now),
		UserID:           user.ID,
		UserEmail:        user.Email,
		UserName:         user.Name,
		UserPhone:        user.Phone,
		PlanIDs:          in.PlanIDs,
		BasePriceCents:   baseCents,
		DiscountCents:    discountCents,
		TotalCents:       totalCents,
		CouponCode:       couponCode,
		Status:           model.PaymentStatusPending,
		CommissionStatus: model.CommissionStatusNone,
		CreatedAt:        now,
	}

	if ref := strings.TrimSpace(in.AffiliateRef); ref != "" {
		aff, err := c.affiliates.FindByRefCode(ctx, repository.NoTX, ref)
		switch {
		case errors.Is(err, domain.ErrAffiliateNotFound):
			// Bad ref codes are common in shared links; the sale proceeds
			// without attribution.
			c.log.Warn().Str("ref_code", ref).Msg("unknown affiliate ref on checkout")
		case err != nil:
			return nil, err
		default:
			rec.AffiliateID = &aff.RefCode
			rec.CommissionCents = model.ComputeCommissionCents(totalCents, aff.CommissionPercent)
		}
	}

	charge, err := c.gateway.CreateCharge(ctx, adapter.CreateChargeRequest{
		AmountCents: totalCents,
		Payer:       adapter.Payer{Name: user.Name, Email: user.Email, Phone: user.Phone},
		CallbackURL: in.CallbackURL,
		ExpiresAt:   now.Add(c.chargeTTL),
		Description: in.DescriptionNote,
		Metadata:    adapter.ChargeMetadata{UserID: user.ID, PlanIDs: in.PlanIDs},
	})
	if err != nil {
		return nil, err
	}
	rec.GatewayTransactionID = &charge.GatewayTransactionID

	if err := c.payments.Save(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	if couponCode != "" {
		if err := c.coupons.IncrementUsage(ctx, repository.NoTX, couponCode); err != nil {
			c.log.Warn().Err(err).Str("coupon", couponCode).Msg("coupon usage increment failed")
		}
	}

	metrics.IncPayment(string(model.PaymentStatusPending))
	c.log.Info().Str("payment_id", rec.ID).Str("user_id", user.ID).
		Str("gateway_tx_id", charge.GatewayTransactionID).
		Int64("total_cents", totalCents).Msg("charge created")

	return &CheckoutResult{
		PaymentID:         rec.ID,
		GatewayTxID:       charge.GatewayTransactionID,
		TotalCents:        totalCents,
		DiscountCents:     discountCents,
		QRCodeText:        charge.QRCodeText,
		QRCodeImageBase64: charge.QRCodeImageBase64,
		ExpiresAt:         charge.ExpiresAt,
	}, nil
}

// resolveBuyer loads the account, or mints an anonymous one so a guest
// purchase still has a user row for the settlement to attach entitlements to.
func (c *checkoutUC) resolveBuyer(ctx context.Context, in CheckoutInput) (*model.User, error) {
	if in.UserID != "" {
		return c.users.FindByID(ctx, repository.NoTX, in.UserID)
	}
	email := strings.TrimSpace(strings.ToLower(in.GuestEmail))
	if email == "" {
		return nil, fmt.Errorf("%w: user id or email required", domain.ErrInvalidArgument)
	}
	if user, err := c.users.FindByEmail(ctx, repository.NoTX, email); err == nil {
		return user, nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	user := model.NewAnonymousUser()
	user.Email = email
	user.Name = in.GuestName
	user.Phone = in.GuestPhone
	if err := c.users.Save(ctx, repository.NoTX, user); err != nil {
		return nil, err
	}
	return user, nil
}
