package repository

import (
	"context"
	"time"

	"pix-membership-platform/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PaymentRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentRecord, error)
	FindByGatewayTransactionID(ctx context.Context, tx Tx, gatewayTxID string) (*model.PaymentRecord, error)

	// CompleteIfPending transitions pending->completed, recording the
	// end-to-end id and processed time. Returns false when the record was
	// already terminal; this is the idempotency guard and must run inside
	// the same transaction as the entitlement writes.
	CompleteIfPending(ctx context.Context, tx Tx, id string, endToEndID *string, processedAt time.Time) (bool, error)

	// FailIfPending transitions pending->failed with a reason. Returns false
	// when the record was already terminal.
	FailIfPending(ctx context.Context, tx Tx, id string, reason string, processedAt time.Time) (bool, error)

	SetCommissionStatus(ctx context.Context, tx Tx, id string, status model.CommissionStatus, processedAt *time.Time) error

	// ListPendingOlderThan feeds the reconciliation poller.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error)

	// DeleteTerminalOlderThan purges failed and still-pending records past
	// the retention window. Completed records are never deleted.
	DeleteTerminalOlderThan(ctx context.Context, tx Tx, olderThan time.Time) (int64, error)
}
