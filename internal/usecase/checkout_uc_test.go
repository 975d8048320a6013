package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/model"
	"pix-membership-platform/internal/domain/ports/repository"
)

type checkoutFixture struct {
	payments   *memPaymentRepo
	users      *memUserRepo
	plans      *memPlanRepo
	coupons    *memCouponRepo
	affiliates *memAffiliateRepo
	gateway    *fakeGateway
	uc         CheckoutUseCase
}

func newCheckoutFixture(t *testing.T, plans ...*model.Plan) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		payments:   newMemPaymentRepo(),
		users:      newMemUserRepo(),
		plans:      newMemPlanRepo(plans...),
		coupons:    newMemCouponRepo(),
		affiliates: newMemAffiliateRepo(),
		gateway:    newFakeGateway(),
	}
	f.uc = NewCheckoutUseCase(
		f.payments, f.users, f.plans, f.coupons, f.affiliates,
		f.gateway, time.Hour, testLogger(),
	)
	return f
}

func TestCreateCharge(t *testing.T) {
	ctx := context.Background()
	tools, _ := model.NewPlan("tools_monthly", "tools", "Tools Monthly", 30, 4990)
	toolsYear, _ := model.NewPlan("tools_yearly", "tools", "Tools Yearly", 365, 49900)
	courses, _ := model.NewPlan("courses_monthly", "courses", "Courses Monthly", 30, 9990)

	t.Run("single plan basket", func(t *testing.T) {
		f := newCheckoutFixture(t, tools, courses)
		seedUser(t, f.users, "u1", "u1@example.com")

		res, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID:  "u1",
			PlanIDs: []string{"tools_monthly"},
		})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		if res.TotalCents != 4990 {
			t.Errorf("total = %d, want 4990", res.TotalCents)
		}
		if res.QRCodeText == "" || res.GatewayTxID == "" {
			t.Errorf("missing PIX code or gateway reference: %+v", res)
		}

		rec, err := f.payments.FindByID(ctx, repository.NoTX, res.PaymentID)
		if err != nil {
			t.Fatalf("record not persisted: %v", err)
		}
		if rec.Status != model.PaymentStatusPending {
			t.Errorf("status = %s, want pending", rec.Status)
		}
		if rec.GatewayTransactionID == nil || *rec.GatewayTransactionID != res.GatewayTxID {
			t.Errorf("gateway reference not stored on the record")
		}
	})

	t.Run("multi product basket sums prices", func(t *testing.T) {
		f := newCheckoutFixture(t, tools, courses)
		seedUser(t, f.users, "u1", "u1@example.com")

		res, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID:  "u1",
			PlanIDs: []string{"tools_monthly", "courses_monthly"},
		})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		if res.TotalCents != 14980 {
			t.Errorf("total = %d, want 14980", res.TotalCents)
		}
	})

	t.Run("two plans for one product rejected", func(t *testing.T) {
		f := newCheckoutFixture(t, tools, toolsYear)
		seedUser(t, f.users, "u1", "u1@example.com")

		_, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID:  "u1",
			PlanIDs: []string{"tools_monthly", "tools_yearly"},
		})
		if !errors.Is(err, domain.ErrDuplicateProductPlan) {
			t.Fatalf("err = %v, want ErrDuplicateProductPlan", err)
		}
		if len(f.gateway.created) != 0 {
			t.Errorf("charge created despite rejected basket")
		}
	})

	t.Run("percent coupon discounts the total", func(t *testing.T) {
		f := newCheckoutFixture(t, tools)
		seedUser(t, f.users, "u1", "u1@example.com")
		f.coupons.coupons["PROMO10"] = &model.Coupon{
			Code: "PROMO10", Kind: model.CouponKindPercent, Percent: 10,
		}

		res, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID: "u1", PlanIDs: []string{"tools_monthly"}, CouponCode: "PROMO10",
		})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		if res.DiscountCents != 499 || res.TotalCents != 4491 {
			t.Errorf("discount=%d total=%d, want 499/4491", res.DiscountCents, res.TotalCents)
		}
		if f.coupons.usage["PROMO10"] != 1 {
			t.Errorf("coupon usage not incremented")
		}
	})

	t.Run("expired coupon rejected", func(t *testing.T) {
		f := newCheckoutFixture(t, tools)
		seedUser(t, f.users, "u1", "u1@example.com")
		past := time.Now().Add(-time.Hour)
		f.coupons.coupons["OLD"] = &model.Coupon{
			Code: "OLD", Kind: model.CouponKindPercent, Percent: 10, ExpiresAt: &past,
		}

		_, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID: "u1", PlanIDs: []string{"tools_monthly"}, CouponCode: "OLD",
		})
		if !errors.Is(err, domain.ErrCouponExpired) {
			t.Fatalf("err = %v, want ErrCouponExpired", err)
		}
	})

	t.Run("affiliate ref precomputes commission", func(t *testing.T) {
		f := newCheckoutFixture(t, tools)
		seedUser(t, f.users, "u1", "u1@example.com")
		aff, _ := model.NewAffiliate("partner1", 20, nil)
		if err := f.affiliates.Save(ctx, repository.NoTX, aff); err != nil {
			t.Fatal(err)
		}

		res, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID: "u1", PlanIDs: []string{"tools_monthly"}, AffiliateRef: "partner1",
		})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		rec, _ := f.payments.FindByID(ctx, repository.NoTX, res.PaymentID)
		if rec.AffiliateID == nil || *rec.AffiliateID != "partner1" {
			t.Errorf("attribution missing")
		}
		if rec.CommissionCents != 998 {
			t.Errorf("commission = %d, want 998", rec.CommissionCents)
		}
		aff2, _ := f.affiliates.FindByRefCode(ctx, repository.NoTX, "partner1")
		if aff2.PendingBalanceCents != 0 {
			t.Errorf("commission credited before settlement")
		}
	})

	t.Run("unknown affiliate ref ignored", func(t *testing.T) {
		f := newCheckoutFixture(t, tools)
		seedUser(t, f.users, "u1", "u1@example.com")

		res, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID: "u1", PlanIDs: []string{"tools_monthly"}, AffiliateRef: "nope",
		})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		rec, _ := f.payments.FindByID(ctx, repository.NoTX, res.PaymentID)
		if rec.AffiliateID != nil {
			t.Errorf("bogus attribution stored")
		}
	})

	t.Run("guest checkout mints an anonymous user", func(t *testing.T) {
		f := newCheckoutFixture(t, tools)

		res, err := f.uc.CreateCharge(ctx, CheckoutInput{
			GuestEmail: "Guest@Example.com",
			GuestName:  "Guest",
			PlanIDs:    []string{"tools_monthly"},
		})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		rec, _ := f.payments.FindByID(ctx, repository.NoTX, res.PaymentID)
		u, err := f.users.FindByID(ctx, repository.NoTX, rec.UserID)
		if err != nil {
			t.Fatalf("anonymous user missing: %v", err)
		}
		if !u.IsAnonymous || u.Email != "guest@example.com" {
			t.Errorf("user = %+v", u)
		}
	})

	t.Run("unknown plan rejected before charging", func(t *testing.T) {
		f := newCheckoutFixture(t, tools)
		seedUser(t, f.users, "u1", "u1@example.com")

		_, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID: "u1", PlanIDs: []string{"no_such_plan"},
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if len(f.gateway.created) != 0 {
			t.Errorf("charge created for unknown plan")
		}
	})

	t.Run("gateway failure surfaces and persists nothing", func(t *testing.T) {
		f := newCheckoutFixture(t, tools)
		seedUser(t, f.users, "u1", "u1@example.com")
		f.gateway.createErr = errors.New("gateway down")

		_, err := f.uc.CreateCharge(ctx, CheckoutInput{
			UserID: "u1", PlanIDs: []string{"tools_monthly"},
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if len(f.payments.store) != 0 {
			t.Errorf("record persisted for failed charge")
		}
	})
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("old failed payments purged, completed kept", func(t *testing.T) {
		payments := newMemPaymentRepo()
		users := newMemUserRepo()
		uc := NewCleanupUseCase(payments, users, 7*24*time.Hour, 30*24*time.Hour, testLogger())

		old := time.Now().Add(-10 * 24 * time.Hour)
		for i, status := range []model.PaymentStatus{
			model.PaymentStatusFailed, model.PaymentStatusPending, model.PaymentStatusCompleted,
		} {
			rec := &model.PaymentRecord{
				ID:        model.NewPaymentID(old.Add(time.Duration(i) * time.Second)),
				UserID:    "u1",
				Status:    status,
				CreatedAt: old,
			}
			if err := payments.Save(ctx, repository.NoTX, rec); err != nil {
				t.Fatal(err)
			}
		}

		n, err := uc.PurgeStalePayments(ctx)
		if err != nil {
			t.Fatalf("purge: %v", err)
		}
		if n != 2 {
			t.Errorf("deleted = %d, want failed+pending only", n)
		}
		if len(payments.store) != 1 {
			t.Errorf("completed record was purged")
		}
	})

	t.Run("stale anonymous users without subscriptions purged", func(t *testing.T) {
		payments := newMemPaymentRepo()
		users := newMemUserRepo()
		uc := NewCleanupUseCase(payments, users, 7*24*time.Hour, 30*24*time.Hour, testLogger())

		stale := time.Now().Add(-60 * 24 * time.Hour)
		anon := model.NewAnonymousUser()
		anon.LastActiveAt = stale
		subscribed := model.NewAnonymousUser()
		subscribed.LastActiveAt = stale
		registered := &model.User{ID: "reg", Email: "r@example.com", LastActiveAt: stale}
		for _, u := range []*model.User{anon, subscribed, registered} {
			if err := users.Save(ctx, repository.NoTX, u); err != nil {
				t.Fatal(err)
			}
		}
		planID := "tools_monthly"
		sub := &model.UserSubscription{
			UserID: subscribed.ID, ProductID: "tools",
			Status: model.SubscriptionStatusActive, PlanID: &planID,
		}
		if err := users.UpsertSubscription(ctx, repository.NoTX, sub); err != nil {
			t.Fatal(err)
		}

		n, err := uc.PurgeAnonymousUsers(ctx)
		if err != nil {
			t.Fatalf("purge: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted = %d, want only the bare anonymous user", n)
		}
		if _, err := users.FindByID(ctx, repository.NoTX, subscribed.ID); err != nil {
			t.Errorf("subscribed anonymous user was purged")
		}
		if _, err := users.FindByID(ctx, repository.NoTX, "reg"); err != nil {
			t.Errorf("registered user was purged")
		}
	})
}
