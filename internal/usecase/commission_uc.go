package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/model"
	"pix-membership-platform/internal/domain/ports/adapter"
	"pix-membership-platform/internal/domain/ports/repository"
	"pix-membership-platform/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ CommissionUseCase = (*commissionUC)(nil)

// CommissionUseCase is the back-office side of the affiliate ledger. Credits
// happen inside settlement; everything here moves money between the pending,
// available and paid columns after the fact, always under the affiliate row
// lock so concurrent operations never compute against a stale balance.
type CommissionUseCase interface {
	// Cancel reverses a pending commission, typically after a refund. When
	// the affiliate's pending balance no longer covers the amount the whole
	// operation is refused and nothing changes; the ledger is never driven
	// negative to honor a cancellation.
	Cancel(ctx context.Context, paymentID string) (*CommissionCancelResult, error)

	// Release moves a pending commission to the affiliate's available
	// balance, making it withdrawable.
	Release(ctx context.Context, paymentID string) error

	// RequestWithdrawal records a payout request against the available
	// balance and moves the amount to paid.
	RequestWithdrawal(ctx context.Context, refCode string, amountCents int64, pixKey string) (*model.WithdrawalRequest, error)
}

type CommissionCancelResult struct {
	PaymentID       string
	UserID          string
	UserEmail       string
	AffiliateID     string
	CommissionCents int64
	BalanceReverted bool
}

type commissionUC struct {
	payments   repository.PaymentRepository
	affiliates repository.AffiliateRepository
	sink       adapter.NotificationSink
	tm         repository.TransactionManager
	log        *zerolog.Logger
}

func NewCommissionUseCase(
	payments repository.PaymentRepository,
	affiliates repository.AffiliateRepository,
	sink adapter.NotificationSink,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *commissionUC {
	ucLog := logger.With().Str("component", "CommissionUC").Logger()
	return &commissionUC{
		payments:   payments,
		affiliates: affiliates,
		sink:       sink,
		tm:         tm,
		log:        &ucLog,
	}
}

func (c *commissionUC) Cancel(ctx context.Context, paymentID string) (*CommissionCancelResult, error) {
	var result *CommissionCancelResult
	err := c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		rec, err := c.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !rec.CommissionAttributed() {
			return fmt.Errorf("%w: payment %s carries no commission", domain.ErrInvalidArgument, paymentID)
		}
		if rec.CommissionStatus != model.CommissionStatusPending {
			return fmt.Errorf("%w: commission is %s", domain.ErrCommissionNotPending, rec.CommissionStatus)
		}

		aff, err := c.affiliates.FindByRefCodeForUpdate(ctx, tx, *rec.AffiliateID)
		if err != nil {
			return err
		}

		if !aff.CanReverse(rec.CommissionCents) {
			// Pending balance already drained (released or withdrawn).
			// Refuse the whole cancellation rather than corrupt the ledger;
			// the inconsistency needs an operator, not a negative balance.
			c.log.Warn().Str("payment_id", paymentID).Str("affiliate_id", aff.RefCode).
				Int64("commission_cents", rec.CommissionCents).
				Int64("pending_cents", aff.PendingBalanceCents).
				Msg("commission cancel refused, pending balance too low")
			return fmt.Errorf("%w: pending balance %d below commission %d",
				domain.ErrInsufficientBalance, aff.PendingBalanceCents, rec.CommissionCents)
		}
		if err := c.affiliates.AdjustBalances(ctx, tx, aff.RefCode, -rec.CommissionCents, 0, 0, -rec.CommissionCents); err != nil {
			return err
		}
		now := time.Now()
		if err := c.payments.SetCommissionStatus(ctx, tx, paymentID, model.CommissionStatusCancelled, &now); err != nil {
			return err
		}
		result = &CommissionCancelResult{
			PaymentID:       paymentID,
			UserID:          rec.UserID,
			UserEmail:       rec.UserEmail,
			AffiliateID:     aff.RefCode,
			CommissionCents: rec.CommissionCents,
			BalanceReverted: true,
		}
		return nil
	})
	if err != nil {
		metrics.IncCommissionEvent("cancel", "error")
		return nil, err
	}

	metrics.IncCommissionEvent("cancel", "ok")
	reverted := result.BalanceReverted
	c.notify(adapter.NotificationEvent{
		Event:           "commission.cancelled",
		PaymentID:       result.PaymentID,
		UserID:          result.UserID,
		UserEmail:       result.UserEmail,
		AffiliateID:     result.AffiliateID,
		CommissionCents: result.CommissionCents,
		BalanceReverted: &reverted,
	})
	return result, nil
}

func (c *commissionUC) Release(ctx context.Context, paymentID string) error {
	err := c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		rec, err := c.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !rec.CommissionAttributed() {
			return fmt.Errorf("%w: payment %s carries no commission", domain.ErrInvalidArgument, paymentID)
		}
		if rec.CommissionStatus != model.CommissionStatusPending {
			return fmt.Errorf("%w: commission is %s", domain.ErrCommissionNotPending, rec.CommissionStatus)
		}

		aff, err := c.affiliates.FindByRefCodeForUpdate(ctx, tx, *rec.AffiliateID)
		if err != nil {
			return err
		}
		if aff.PendingBalanceCents < rec.CommissionCents {
			return fmt.Errorf("%w: pending balance %d below commission %d",
				domain.ErrInsufficientBalance, aff.PendingBalanceCents, rec.CommissionCents)
		}
		if err := c.affiliates.AdjustBalances(ctx, tx, aff.RefCode, -rec.CommissionCents, rec.CommissionCents, 0, 0); err != nil {
			return err
		}
		now := time.Now()
		return c.payments.SetCommissionStatus(ctx, tx, paymentID, model.CommissionStatusReleased, &now)
	})
	if err != nil {
		metrics.IncCommissionEvent("release", "error")
		return err
	}
	metrics.IncCommissionEvent("release", "ok")
	c.log.Info().Str("payment_id", paymentID).Msg("commission released")
	return nil
}

func (c *commissionUC) RequestWithdrawal(ctx context.Context, refCode string, amountCents int64, pixKey string) (*model.WithdrawalRequest, error) {
	if pixKey == "" {
		return nil, fmt.Errorf("%w: pix key required", domain.ErrInvalidArgument)
	}
	var req *model.WithdrawalRequest
	err := c.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		aff, err := c.affiliates.FindByRefCodeForUpdate(ctx, tx, refCode)
		if err != nil {
			return err
		}
		if aff.AvailableBalanceCents <= 0 {
			return fmt.Errorf("%w: no available balance", domain.ErrInsufficientBalance)
		}
		if amountCents <= 0 {
			amountCents = aff.AvailableBalanceCents
		}
		if amountCents > aff.AvailableBalanceCents {
			return fmt.Errorf("%w: requested %d, available %d",
				domain.ErrInsufficientBalance, amountCents, aff.AvailableBalanceCents)
		}
		if err := c.affiliates.AdjustBalances(ctx, tx, refCode, 0, -amountCents, amountCents, 0); err != nil {
			return err
		}
		req = model.NewWithdrawalRequest(refCode, amountCents, pixKey)
		return c.affiliates.SaveWithdrawal(ctx, tx, req)
	})
	if err != nil {
		metrics.IncCommissionEvent("withdrawal", "error")
		return nil, err
	}
	metrics.IncCommissionEvent("withdrawal", "ok")
	c.log.Info().Str("affiliate_id", refCode).Int64("amount_cents", amountCents).
		Msg("withdrawal requested")
	return req, nil
}

func (c *commissionUC) notify(ev adapter.NotificationEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.sink.Publish(ctx, ev); err != nil {
			c.log.Warn().Err(err).Str("event", ev.Event).Msg("notification publish failed")
		}
	}()
}
