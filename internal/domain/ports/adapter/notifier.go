package adapter

import "context"

// NotificationEvent is the payload pushed to the automation system after a
// settlement or a commission reversal. Delivery is best-effort: failures are
// logged and never unwind a committed entitlement or ledger change.
type NotificationEvent struct {
	Event           string   `json:"event"` // "payment.completed" | "commission.cancelled"
	PaymentID       string   `json:"payment_id"`
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email,omitempty"`
	UserName        string   `json:"user_name,omitempty"`
	PlanIDs         []string `json:"plan_ids,omitempty"`
	TotalCents      int64    `json:"total_cents,omitempty"`
	AffiliateID     string   `json:"affiliate_id,omitempty"`
	CommissionCents int64    `json:"commission_cents,omitempty"`
	BalanceReverted *bool    `json:"balance_reverted,omitempty"`
}

// NotificationSink posts events to the configured automation URL. An
// unconfigured sink is a no-op, not an error.
type NotificationSink interface {
	Publish(ctx context.Context, ev NotificationEvent) error
}
