package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-membership-platform/internal/domain/model"
	"pix-membership-platform/internal/domain/ports/adapter"
	"pix-membership-platform/internal/domain/ports/repository"
)

func newReconcileFixture(t *testing.T, plans ...*model.Plan) (*settlementFixture, ReconcileUseCase) {
	t.Helper()
	f := newSettlementFixture(t, plans...)
	uc := NewReconcileUseCase(f.payments, f.gateway, f.uc, 5*time.Minute, 50, testLogger())
	return f, uc
}

func TestReconcileRun(t *testing.T) {
	ctx := context.Background()
	plan, _ := model.NewPlan("tools_monthly", "tools", "Tools Monthly", 30, 4990)

	t.Run("paid transaction settles", func(t *testing.T) {
		f, uc := newReconcileFixture(t, plan)
		seedUser(t, f.users, "u1", "u1@example.com")
		rec := seedPendingPayment(t, f.payments, "u1", "gw-1", []string{plan.ID}, 4990)
		f.gateway.transactions["gw-1"] = &adapter.Transaction{
			ID: "gw-1", Status: "paid", EndToEndID: "E2E9",
		}

		stats, err := uc.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if stats.Completed != 1 {
			t.Errorf("completed = %d, want 1", stats.Completed)
		}
		got, _ := f.payments.FindByID(ctx, repository.NoTX, rec.ID)
		if got.Status != model.PaymentStatusCompleted {
			t.Errorf("status = %s, want completed", got.Status)
		}
		if got.GatewayEndToEndID == nil || *got.GatewayEndToEndID != "E2E9" {
			t.Errorf("end-to-end id not recorded")
		}
	})

	t.Run("gateway 404 is terminal", func(t *testing.T) {
		f, uc := newReconcileFixture(t, plan)
		seedUser(t, f.users, "u1", "u1@example.com")
		rec := seedPendingPayment(t, f.payments, "u1", "gw-2", []string{plan.ID}, 4990)
		// nothing registered on the fake gateway => ErrTransactionNotFound

		stats, err := uc.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if stats.Failed != 1 {
			t.Errorf("failed = %d, want 1", stats.Failed)
		}
		got, _ := f.payments.FindByID(ctx, repository.NoTX, rec.ID)
		if got.Status != model.PaymentStatusFailed || got.FailureReason != "not found on gateway" {
			t.Errorf("got status=%s reason=%q", got.Status, got.FailureReason)
		}
	})

	t.Run("transient gateway error defers", func(t *testing.T) {
		f, uc := newReconcileFixture(t, plan)
		seedUser(t, f.users, "u1", "u1@example.com")
		rec := seedPendingPayment(t, f.payments, "u1", "gw-3", []string{plan.ID}, 4990)
		f.gateway.fetchErr = errors.New("503 from gateway")

		stats, err := uc.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if stats.Deferred != 1 {
			t.Errorf("deferred = %d, want 1", stats.Deferred)
		}
		got, _ := f.payments.FindByID(ctx, repository.NoTX, rec.ID)
		if got.Status != model.PaymentStatusPending {
			t.Errorf("status = %s, want pending preserved", got.Status)
		}
	})

	t.Run("still pending on gateway is skipped", func(t *testing.T) {
		f, uc := newReconcileFixture(t, plan)
		seedUser(t, f.users, "u1", "u1@example.com")
		seedPendingPayment(t, f.payments, "u1", "gw-4", []string{plan.ID}, 4990)
		f.gateway.transactions["gw-4"] = &adapter.Transaction{ID: "gw-4", Status: "created"}

		stats, err := uc.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if stats.Skipped != 1 || stats.Completed != 0 || stats.Failed != 0 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("cancelled status fails with raw reason", func(t *testing.T) {
		f, uc := newReconcileFixture(t, plan)
		seedUser(t, f.users, "u1", "u1@example.com")
		rec := seedPendingPayment(t, f.payments, "u1", "gw-5", []string{plan.ID}, 4990)
		f.gateway.transactions["gw-5"] = &adapter.Transaction{ID: "gw-5", Status: "cancelled"}

		if _, err := uc.Run(ctx); err != nil {
			t.Fatalf("run: %v", err)
		}
		got, _ := f.payments.FindByID(ctx, repository.NoTX, rec.ID)
		if got.FailureReason != "cancelled" {
			t.Errorf("reason = %q, want raw gateway status", got.FailureReason)
		}
	})

	t.Run("record without gateway reference skipped", func(t *testing.T) {
		f, uc := newReconcileFixture(t, plan)
		seedUser(t, f.users, "u1", "u1@example.com")
		rec := &model.PaymentRecord{
			ID: model.NewPaymentID(time.Now()), UserID: "u1",
			PlanIDs: []string{plan.ID}, TotalCents: 4990,
			Status:    model.PaymentStatusPending,
			CreatedAt: time.Now().Add(-time.Hour),
		}
		if err := f.payments.Save(ctx, repository.NoTX, rec); err != nil {
			t.Fatal(err)
		}

		stats, err := uc.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if stats.Skipped != 1 {
			t.Errorf("skipped = %d, want 1", stats.Skipped)
		}
	})

	t.Run("fresh pending records are not scanned", func(t *testing.T) {
		f, uc := newReconcileFixture(t, plan)
		seedUser(t, f.users, "u1", "u1@example.com")
		gwID := "gw-6"
		rec := &model.PaymentRecord{
			ID: model.NewPaymentID(time.Now()), UserID: "u1",
			PlanIDs: []string{plan.ID}, TotalCents: 4990,
			Status: model.PaymentStatusPending, GatewayTransactionID: &gwID,
			CreatedAt: time.Now(), // inside the stale window
		}
		if err := f.payments.Save(ctx, repository.NoTX, rec); err != nil {
			t.Fatal(err)
		}

		stats, err := uc.Run(ctx)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if stats.Scanned != 0 {
			t.Errorf("scanned = %d, want 0", stats.Scanned)
		}
	})
}
