package usecase

import (
	"context"
	"errors"
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

// Compile-time check
var _ SettlementUseCase = (*settlementUC)(nil)

// SettlementUseCase is the single entitlement-application path shared by the
// webhook handler and the reconciliation poller. Both callers race on the
// same payment record; the pending->completed compare-and-set inside the
// settlement transaction is the only mechanism preventing double-crediting,
// so it must never be bypassed or duplicated elsewhere.
type SettlementUseCase interface {
	// HandleConfirmedTransaction resolves a gateway transaction reference to
	// a local payment record (creating one from gateway metadata or the
	// legacy description encoding when the direct lookup misses) and settles
	// it. Returns ErrAlreadyProcessed when another writer won the race.
	HandleConfirmedTransaction(ctx context.Context, gatewayTxID string, endToEndID *string) error

	// SettleCompleted grants entitlements for a payment the gateway reports
	// as paid: flips the record to completed, extends subscriptions, credits
	// the affiliate commission, all in one transaction, then notifies.
	SettleCompleted(ctx context.Context, rec *model.PaymentRecord, endToEndID *string) error

	// MarkFailed records a terminal gateway failure. A record that already
	// reached a terminal state is left untouched.
	MarkFailed(ctx context.Context, paymentID, reason string) error
}

// LegacyPlanDecoder extracts plan ids from a charge description written by
// older integrations; injected so the compatibility grammar stays out of the
// main control flow.
type LegacyPlanDecoder func(description string) ([]string, error)

type settlementUC struct {
	payments   repository.PaymentRepository
	users      repository.UserRepository
	plans      repository.PlanRepository
	affiliates repository.AffiliateRepository
	gateway    adapter.PixGateway
	sink       adapter.NotificationSink
	tm         repository.TransactionManager
	legacy     LegacyPlanDecoder
	log        *zerolog.Logger
}

func NewSettlementUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	plans repository.PlanRepository,
	affiliates repository.AffiliateRepository,
	gateway adapter.PixGateway,
	sink adapter.NotificationSink,
	tm repository.TransactionManager,
	legacy LegacyPlanDecoder,
	logger *zerolog.Logger,
) *settlementUC {
	ucLog := logger.With().Str("component", "SettlementUC").Logger()
	return &settlementUC{
		payments:   payments,
		users:      users,
		plans:      plans,
		affiliates: affiliates,
		gateway:    gateway,
		sink:       sink,
		tm:         tm,
		legacy:     legacy,
		log:        &ucLog,
	}
}

func (s *settlementUC) HandleConfirmedTransaction(ctx context.Context, gatewayTxID string, endToEndID *string) error {
	rec, err := s.payments.FindByGatewayTransactionID(ctx, repository.NoTX, gatewayTxID)
	if errors.Is(err, domain.ErrNotFound) {
		rec, err = s.reconstructRecord(ctx, gatewayTxID)
	}
	if err != nil {
		return err
	}
	return s.SettleCompleted(ctx, rec, endToEndID)
}

// reconstructRecord rebuilds a payment record from the gateway's view of the
// transaction when the direct lookup misses (older integrations, or a crash
// between charge creation and record persistence). Structured metadata is
// preferred; the bracket-delimited description list is the last resort.
func (s *settlementUC) reconstructRecord(ctx context.Context, gatewayTxID string) (*model.PaymentRecord, error) {
	tx, err := s.gateway.FetchTransaction(ctx, gatewayTxID)
	if errors.Is(err, adapter.ErrTransactionNotFound) {
		// Unknown locally and on the gateway: a retry can never resolve it,
		// so the caller must acknowledge instead of bouncing the webhook.
		s.log.Error().Str("gateway_tx_id", gatewayTxID).Msg("transaction unknown locally and on gateway")
		return nil, fmt.Errorf("%w: transaction %s unknown locally and on gateway", domain.ErrNotFound, gatewayTxID)
	}
	if err != nil {
		return nil, err
	}

	planIDs := tx.Metadata.PlanIDs
	if len(planIDs) == 0 && s.legacy != nil {
		if ids, perr := s.legacy(tx.Description); perr == nil {
			planIDs = ids
		}
	}
	if len(planIDs) == 0 {
		s.log.Error().Str("gateway_tx_id", gatewayTxID).Msg("cannot resolve plan ids for gateway transaction")
		return nil, fmt.Errorf("%w: no plan ids resolvable for transaction %s", domain.ErrInvalidArgument, gatewayTxID)
	}

	now := time.Now()
	gwID := gatewayTxID
	rec := &model.PaymentRecord{
		ID:                   model.NewPaymentID(now),
		UserID:               tx.Metadata.UserID,
		PlanIDs:              planIDs,
		BasePriceCents:       tx.AmountCents,
		TotalCents:           tx.AmountCents,
		Status:               model.PaymentStatusPending,
		GatewayTransactionID: &gwID,
		CommissionStatus:     model.CommissionStatusNone,
		CreatedAt:            now,
	}
	if err := s.payments.Save(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	// Re-read so concurrent reconstructions converge on the row that won the
	// gateway-id conflict.
	return s.payments.FindByGatewayTransactionID(ctx, repository.NoTX, gatewayTxID)
}

func (s *settlementUC) SettleCompleted(ctx context.Context, rec *model.PaymentRecord, endToEndID *string) error {
	if rec == nil {
		return domain.ErrInvalidArgument
	}
	// Fast-path duplicate check; the authoritative guard is the CAS inside
	// the transaction below.
	if rec.IsTerminal() {
		return domain.ErrAlreadyProcessed
	}

	user, err := s.resolveUser(ctx, rec)
	if err != nil {
		return err
	}

	plans := make([]*model.Plan, 0, len(rec.PlanIDs))
	for _, planID := range rec.PlanIDs {
		plan, err := s.plans.FindByID(ctx, repository.NoTX, planID)
		if err != nil {
			s.log.Error().Str("payment_id", rec.ID).Str("plan_id", planID).Err(err).
				Msg("completed payment references unknown plan")
			return fmt.Errorf("plan %s: %w", planID, err)
		}
		plans = append(plans, plan)
	}

	now := time.Now()
	commissionCredited := false
	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := s.payments.CompleteIfPending(ctx, tx, rec.ID, endToEndID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyProcessed
		}

		for _, plan := range plans {
			existing, err := s.users.FindSubscriptionForUpdate(ctx, tx, user.ID, plan.ProductID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			next := model.ComputeRenewal(existing, plan, now, rec.ID)
			next.UserID = user.ID
			if err := s.users.UpsertSubscription(ctx, tx, &next); err != nil {
				return err
			}
		}

		if rec.CommissionAttributed() {
			aff, err := s.affiliates.FindByRefCodeForUpdate(ctx, tx, *rec.AffiliateID)
			if errors.Is(err, domain.ErrAffiliateNotFound) {
				// Attribution points at a ghost; the sale still settles.
				s.log.Error().Str("payment_id", rec.ID).Str("affiliate_id", *rec.AffiliateID).
					Msg("attributed affiliate not found, commission skipped")
				return nil
			}
			if err != nil {
				return err
			}
			if err := s.affiliates.AdjustBalances(ctx, tx, aff.RefCode, rec.CommissionCents, 0, 0, rec.CommissionCents); err != nil {
				return err
			}
			if err := s.payments.SetCommissionStatus(ctx, tx, rec.ID, model.CommissionStatusPending, nil); err != nil {
				return err
			}
			commissionCredited = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.IncPayment(string(model.PaymentStatusCompleted))
	metrics.AddPaymentRevenue("brl", rec.TotalCents)
	if commissionCredited {
		metrics.IncCommissionEvent("credit", "ok")
	}
	s.log.Info().Str("payment_id", rec.ID).Str("user_id", user.ID).
		Strs("plan_ids", rec.PlanIDs).Int64("total_cents", rec.TotalCents).
		Msg("payment settled")

	s.notify(adapter.NotificationEvent{
		Event:           "payment.completed",
		PaymentID:       rec.ID,
		UserID:          user.ID,
		UserEmail:       user.Email,
		UserName:        user.Name,
		PlanIDs:         rec.PlanIDs,
		TotalCents:      rec.TotalCents,
		AffiliateID:     refCodeOrEmpty(rec.AffiliateID),
		CommissionCents: rec.CommissionCents,
	})
	return nil
}

func (s *settlementUC) MarkFailed(ctx context.Context, paymentID, reason string) error {
	now := time.Now()
	var flipped bool
	err := s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := s.payments.FailIfPending(ctx, tx, paymentID, reason, now)
		if err != nil {
			return err
		}
		flipped = ok
		return nil
	})
	if err != nil {
		return err
	}
	if !flipped {
		return domain.ErrAlreadyProcessed
	}
	metrics.IncPayment(string(model.PaymentStatusFailed))
	s.log.Info().Str("payment_id", paymentID).Str("reason", reason).Msg("payment marked failed")
	return nil
}

// resolveUser prefers the user id snapshot and falls back to the email for
// webhook payloads predating id metadata. A payment for a vanished user is a
// data inconsistency, not a retryable condition: the caller acknowledges the
// webhook and the record stays pending for operator attention.
func (s *settlementUC) resolveUser(ctx context.Context, rec *model.PaymentRecord) (*model.User, error) {
	if rec.UserID != "" {
		user, err := s.users.FindByID(ctx, repository.NoTX, rec.UserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
	}
	if rec.UserEmail != "" {
		user, err := s.users.FindByEmail(ctx, repository.NoTX, rec.UserEmail)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
	}
	s.log.Error().Str("payment_id", rec.ID).Str("user_id", rec.UserID).
		Str("user_email", rec.UserEmail).
		Msg("no user found for completed payment")
	return nil, domain.ErrUserNotFound
}

// notify is fire-and-forget: the settlement has committed and a sink outage
// must not unwind it.
func (s *settlementUC) notify(ev adapter.NotificationEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.sink.Publish(ctx, ev); err != nil {
			s.log.Warn().Err(err).Str("event", ev.Event).Str("payment_id", ev.PaymentID).
				Msg("notification publish failed")
		}
	}()
}

func refCodeOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
