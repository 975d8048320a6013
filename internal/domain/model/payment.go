package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // charge created; awaiting gateway confirmation
	PaymentStatusCompleted PaymentStatus = "completed" // gateway confirmed; entitlements granted
	PaymentStatusFailed    PaymentStatus = "failed"    // cancelled/refunded/expired on the gateway side
)

type CommissionStatus string

const (
	CommissionStatusNone      CommissionStatus = "none"
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusReleased  CommissionStatus = "released"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// PaymentRecord is the persisted trail of one checkout attempt. All monetary
// amounts are in centavos. Status is monotonic: once completed or failed it
// never returns to pending; that transition is always done with a
// compare-and-set inside the same transaction that grants entitlements.
type PaymentRecord struct {
	ID        string // ULID, generated at charge creation
	UserID    string
	UserEmail string // denormalized snapshot at purchase time
	UserName  string
	UserPhone string

	PlanIDs []string // plans purchased together, one product each

	BasePriceCents int64
	DiscountCents  int64
	TotalCents     int64
	CouponCode     string

	Status        PaymentStatus
	FailureReason string // set only when Status == failed

	GatewayTransactionID *string // provider transaction reference
	GatewayEndToEndID    *string // settlement reference (PIX end-to-end id)

	AffiliateID      *string // referring affiliate ref_code, nil when unattributed
	CommissionCents  int64   // commission_percent x TotalCents, fixed at creation
	CommissionStatus CommissionStatus

	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewPaymentID returns a lexicographically sortable payment record id.
func NewPaymentID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

func (p *PaymentRecord) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// CommissionAttributed reports whether this payment carries an affiliate
// attribution worth crediting.
func (p *PaymentRecord) CommissionAttributed() bool {
	return p.AffiliateID != nil && *p.AffiliateID != "" && p.CommissionCents > 0
}

// ComputeCommissionCents rounds half away from zero in centavos.
func ComputeCommissionCents(totalCents int64, percent int) int64 {
	if percent <= 0 || totalCents <= 0 {
		return 0
	}
	return (totalCents*int64(percent) + 50) / 100
}
