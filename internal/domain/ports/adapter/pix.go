package adapter

import (
	"context"
	"errors"
	"time"
)

// ErrTransactionNotFound is returned by FetchTransaction when the gateway
// answers 404. During reconciliation this is terminal: the charge is presumed
// expired or invalid on the gateway side and is never retried.
var ErrTransactionNotFound = errors.New("transaction not found on gateway")

// Payer is the identity snapshot sent to the gateway at charge creation.
type Payer struct {
	Name  string
	Email string
	Phone string
}

// ChargeMetadata is attached to the charge and echoed back on transaction
// lookup, so a webhook can be resolved even when the local record is missing.
type ChargeMetadata struct {
	UserID  string
	PlanIDs []string
}

type CreateChargeRequest struct {
	AmountCents int64
	Payer       Payer
	CallbackURL string
	ExpiresAt   time.Time
	Description string
	Metadata    ChargeMetadata
}

// Charge is the gateway's answer to a charge creation: the transaction
// reference plus the scannable PIX code in both text and image form.
type Charge struct {
	GatewayTransactionID string
	QRCodeText           string
	QRCodeImageBase64    string
	ExpiresAt            time.Time
}

// Transaction is the authoritative gateway view of a charge.
type Transaction struct {
	ID          string
	Status      string // raw gateway status, see Normalize
	EndToEndID  string
	AmountCents int64
	Metadata    ChargeMetadata
	Description string
}

// PixGateway wraps the external PIX payment provider.
type PixGateway interface {
	CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error)
	FetchTransaction(ctx context.Context, gatewayTxID string) (*Transaction, error)
}

// Outcome is the internal taxonomy gateway statuses normalize into.
type Outcome int

const (
	OutcomePending Outcome = iota // still awaiting payment, no-op
	OutcomePaid                   // confirmed, grant entitlements
	OutcomeFailed                 // terminal, record the raw status as reason
)

// Normalize maps a raw gateway status string to the internal taxonomy:
// "paid" is completed, "pending"/"created" are still open, everything else
// (cancelled, refunded, expired, unrecognized) is a terminal failure.
func Normalize(raw string) Outcome {
	switch raw {
	case "paid":
		return OutcomePaid
	case "pending", "created":
		return OutcomePending
	default:
		return OutcomeFailed
	}
}
