package model

import (
	"time"

	"pix-membership-platform/internal/domain"

	"github.com/google/uuid"
)

// Affiliate holds the commission ledger for one referral partner. Balances
// are in centavos and must never go negative; any mutation that would drive
// pending_balance below zero is refused rather than applied.
type Affiliate struct {
	RefCode           string // primary key, immutable after creation
	UserID            *string
	CommissionPercent int // 0..100

	PendingBalanceCents   int64
	AvailableBalanceCents int64
	PaidBalanceCents      int64
	TotalEarnedCents      int64

	CreatedAt time.Time
}

func NewAffiliate(refCode string, commissionPercent int, userID *string) (*Affiliate, error) {
	if refCode == "" || commissionPercent < 0 || commissionPercent > 100 {
		return nil, domain.ErrInvalidArgument
	}
	return &Affiliate{
		RefCode:           refCode,
		CommissionPercent: commissionPercent,
		UserID:            userID,
		CreatedAt:         time.Now(),
	}, nil
}

// CanReverse reports whether a pending commission of the given size can be
// reversed without driving the pending balance negative.
func (a *Affiliate) CanReverse(commissionCents int64) bool {
	return a.PendingBalanceCents >= commissionCents
}

type WithdrawalStatus string

const (
	WithdrawalStatusRequested WithdrawalStatus = "requested"
	WithdrawalStatusPaid      WithdrawalStatus = "paid"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
)

// WithdrawalRequest moves funds out of an affiliate's available balance.
type WithdrawalRequest struct {
	ID               string
	AffiliateRefCode string
	AmountCents      int64
	PixKey           string
	Status           WithdrawalStatus
	CreatedAt        time.Time
}

func NewWithdrawalRequest(refCode string, amountCents int64, pixKey string) *WithdrawalRequest {
	return &WithdrawalRequest{
		ID:               uuid.NewString(),
		AffiliateRefCode: refCode,
		AmountCents:      amountCents,
		PixKey:           pixKey,
		Status:           WithdrawalStatusRequested,
		CreatedAt:        time.Now(),
	}
}
