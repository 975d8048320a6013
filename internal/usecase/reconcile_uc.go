package usecase

import (
	"context"
	"errors"
	"time"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/ports/adapter"
	"pix-membership-platform/internal/domain/ports/repository"
	"pix-membership-platform/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase sweeps pending payment records whose webhook never
// arrived (or was lost) and asks the gateway for the authoritative status.
// It settles, fails or defers each record through the exact same path the
// webhook handler uses.
type ReconcileUseCase interface {
	Run(ctx context.Context) (ReconcileStats, error)
}

type ReconcileStats struct {
	Scanned   int
	Completed int
	Failed    int
	Deferred  int
	Skipped   int
}

type reconcileUC struct {
	payments   repository.PaymentRepository
	gateway    adapter.PixGateway
	settlement SettlementUseCase
	staleAfter time.Duration
	batchSize  int
	log        *zerolog.Logger
}

func NewReconcileUseCase(
	payments repository.PaymentRepository,
	gateway adapter.PixGateway,
	settlement SettlementUseCase,
	staleAfter time.Duration,
	batchSize int,
	logger *zerolog.Logger,
) *reconcileUC {
	ucLog := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		payments:   payments,
		gateway:    gateway,
		settlement: settlement,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        &ucLog,
	}
}

func (r *reconcileUC) Run(ctx context.Context) (ReconcileStats, error) {
	metrics.IncReconcilerRun()
	var stats ReconcileStats

	cutoff := time.Now().Add(-r.staleAfter)
	records, err := r.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, r.batchSize)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(records)

	for _, rec := range records {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if rec.GatewayTransactionID == nil || *rec.GatewayTransactionID == "" {
			// A record without a gateway reference can never be verified;
			// it ages out through the cleanup job instead.
			stats.Skipped++
			metrics.IncReconciledPayment("skipped")
			r.log.Warn().Str("payment_id", rec.ID).Msg("pending payment without gateway reference")
			continue
		}

		tx, err := r.gateway.FetchTransaction(ctx, *rec.GatewayTransactionID)
		if errors.Is(err, adapter.ErrTransactionNotFound) {
			// Gone on the gateway side: terminal, never retried.
			if ferr := r.settlement.MarkFailed(ctx, rec.ID, "not found on gateway"); ferr != nil && !errors.Is(ferr, domain.ErrAlreadyProcessed) {
				r.log.Error().Err(ferr).Str("payment_id", rec.ID).Msg("failed to mark vanished payment")
				continue
			}
			stats.Failed++
			metrics.IncReconciledPayment("failed")
			continue
		}
		if err != nil {
			// Transient gateway trouble: leave the record pending for the
			// next pass.
			stats.Deferred++
			metrics.IncReconciledPayment("deferred")
			r.log.Warn().Err(err).Str("payment_id", rec.ID).Msg("gateway lookup deferred")
			continue
		}

		switch adapter.Normalize(tx.Status) {
		case adapter.OutcomePaid:
			endToEnd := optional(tx.EndToEndID)
			err := r.settlement.SettleCompleted(ctx, rec, endToEnd)
			switch {
			case errors.Is(err, domain.ErrAlreadyProcessed):
				stats.Skipped++
				metrics.IncReconciledPayment("skipped")
			case errors.Is(err, domain.ErrUserNotFound):
				// Logged severely inside the settlement; stays pending for
				// operator attention.
				stats.Deferred++
				metrics.IncReconciledPayment("deferred")
			case err != nil:
				stats.Deferred++
				metrics.IncReconciledPayment("deferred")
				r.log.Error().Err(err).Str("payment_id", rec.ID).Msg("settlement failed during reconciliation")
			default:
				stats.Completed++
				metrics.IncReconciledPayment("completed")
			}
		case adapter.OutcomePending:
			stats.Skipped++
			metrics.IncReconciledPayment("skipped")
		default:
			if ferr := r.settlement.MarkFailed(ctx, rec.ID, tx.Status); ferr != nil && !errors.Is(ferr, domain.ErrAlreadyProcessed) {
				r.log.Error().Err(ferr).Str("payment_id", rec.ID).Msg("failed to mark failed payment")
				continue
			}
			stats.Failed++
			metrics.IncReconciledPayment("failed")
		}
	}

	r.log.Info().Int("scanned", stats.Scanned).Int("completed", stats.Completed).
		Int("failed", stats.Failed).Int("deferred", stats.Deferred).
		Int("skipped", stats.Skipped).Msg("reconciliation pass finished")
	return stats, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
