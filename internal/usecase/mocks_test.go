package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/model"
	"pix-membership-platform/internal/domain/ports/adapter"
	"pix-membership-platform/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// nopTxManager runs fn directly; the in-memory repos below ignore the tx
// handle, so atomicity is not simulated, only the call flow.
type nopTxManager struct{}

func (nopTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// memPaymentRepo is a small in-memory implementation used by unit tests.
type memPaymentRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.PaymentRecord
	saveErr error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{store: make(map[string]*model.PaymentRecord)}
}

func (m *memPaymentRepo) Save(ctx context.Context, _ repository.Tx, p *model.PaymentRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.GatewayTransactionID != nil {
		for _, existing := range m.store {
			if existing.GatewayTransactionID != nil && *existing.GatewayTransactionID == *p.GatewayTransactionID {
				// gateway id conflict, keep the first writer
				return nil
			}
		}
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByGatewayTransactionID(ctx context.Context, _ repository.Tx, gatewayTxID string) (*model.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.GatewayTransactionID != nil && *p.GatewayTransactionID == gatewayTxID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) CompleteIfPending(ctx context.Context, _ repository.Tx, id string, endToEndID *string, processedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusCompleted
	if endToEndID != nil {
		p.GatewayEndToEndID = endToEndID
	}
	p.ProcessedAt = &processedAt
	return true, nil
}

func (m *memPaymentRepo) FailIfPending(ctx context.Context, _ repository.Tx, id string, reason string, processedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusFailed
	p.FailureReason = reason
	p.ProcessedAt = &processedAt
	return true, nil
}

func (m *memPaymentRepo) SetCommissionStatus(ctx context.Context, _ repository.Tx, id string, status model.CommissionStatus, _ *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.CommissionStatus = status
	return nil
}

func (m *memPaymentRepo) ListPendingOlderThan(ctx context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentRecord
	for _, p := range m.store {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memPaymentRepo) DeleteTerminalOlderThan(ctx context.Context, _ repository.Tx, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.store {
		if p.Status != model.PaymentStatusCompleted && p.CreatedAt.Before(olderThan) {
			delete(m.store, id)
			n++
		}
	}
	return n, nil
}

type subKey struct{ userID, productID string }

type memUserRepo struct {
	mu    sync.RWMutex
	users map[string]*model.User
	subs  map[subKey]*model.UserSubscription
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users: make(map[string]*model.User),
		subs:  make(map[subKey]*model.UserSubscription),
	}
}

func (m *memUserRepo) Save(ctx context.Context, _ repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByEmail(ctx context.Context, _ repository.Tx, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) FindSubscription(ctx context.Context, _ repository.Tx, userID, productID string) (*model.UserSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[subKey{userID, productID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memUserRepo) FindSubscriptionForUpdate(ctx context.Context, tx repository.Tx, userID, productID string) (*model.UserSubscription, error) {
	return m.FindSubscription(ctx, tx, userID, productID)
}

func (m *memUserRepo) UpsertSubscription(ctx context.Context, _ repository.Tx, sub *model.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subs[subKey{sub.UserID, sub.ProductID}] = &cp
	return nil
}

func (m *memUserRepo) ListSubscriptions(ctx context.Context, _ repository.Tx, userID string) ([]*model.UserSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserSubscription
	for k, s := range m.subs {
		if k.userID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUserRepo) DeleteStaleAnonymous(ctx context.Context, _ repository.Tx, inactiveSince time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, u := range m.users {
		if !u.IsAnonymous || !u.LastActiveAt.Before(inactiveSince) {
			continue
		}
		hasSub := false
		for k := range m.subs {
			if k.userID == id {
				hasSub = true
				break
			}
		}
		if !hasSub {
			delete(m.users, id)
			n++
		}
	}
	return n, nil
}

type memPlanRepo struct {
	mu    sync.RWMutex
	plans map[string]*model.Plan
}

func newMemPlanRepo(plans ...*model.Plan) *memPlanRepo {
	r := &memPlanRepo{plans: make(map[string]*model.Plan)}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (m *memPlanRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) List(ctx context.Context, _ repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type memCouponRepo struct {
	mu      sync.RWMutex
	coupons map[string]*model.Coupon
	usage   map[string]int
}

func newMemCouponRepo(coupons ...*model.Coupon) *memCouponRepo {
	r := &memCouponRepo{coupons: make(map[string]*model.Coupon), usage: make(map[string]int)}
	for _, c := range coupons {
		r.coupons[c.Code] = c
	}
	return r
}

func (m *memCouponRepo) FindByCode(ctx context.Context, _ repository.Tx, code string) (*model.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCouponRepo) IncrementUsage(ctx context.Context, _ repository.Tx, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[code]++
	if c, ok := m.coupons[code]; ok {
		c.UsedCount++
	}
	return nil
}

type memAffiliateRepo struct {
	mu          sync.RWMutex
	affiliates  map[string]*model.Affiliate
	withdrawals []*model.WithdrawalRequest
}

func newMemAffiliateRepo(affiliates ...*model.Affiliate) *memAffiliateRepo {
	r := &memAffiliateRepo{affiliates: make(map[string]*model.Affiliate)}
	for _, a := range affiliates {
		r.affiliates[a.RefCode] = a
	}
	return r
}

func (m *memAffiliateRepo) Save(ctx context.Context, _ repository.Tx, a *model.Affiliate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.affiliates[a.RefCode] = &cp
	return nil
}

func (m *memAffiliateRepo) FindByRefCode(ctx context.Context, _ repository.Tx, refCode string) (*model.Affiliate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.affiliates[refCode]
	if !ok {
		return nil, domain.ErrAffiliateNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAffiliateRepo) FindByRefCodeForUpdate(ctx context.Context, tx repository.Tx, refCode string) (*model.Affiliate, error) {
	return m.FindByRefCode(ctx, tx, refCode)
}

func (m *memAffiliateRepo) AdjustBalances(ctx context.Context, _ repository.Tx, refCode string, pendingDelta, availableDelta, paidDelta, earnedDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.affiliates[refCode]
	if !ok {
		return domain.ErrAffiliateNotFound
	}
	a.PendingBalanceCents += pendingDelta
	a.AvailableBalanceCents += availableDelta
	a.PaidBalanceCents += paidDelta
	a.TotalEarnedCents += earnedDelta
	return nil
}

func (m *memAffiliateRepo) SaveWithdrawal(ctx context.Context, _ repository.Tx, w *model.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.withdrawals = append(m.withdrawals, &cp)
	return nil
}

// fakeGateway returns canned transactions and records created charges.
type fakeGateway struct {
	mu           sync.Mutex
	transactions map[string]*adapter.Transaction
	fetchErr     error
	createErr    error
	created      []adapter.CreateChargeRequest
	nextChargeID string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{transactions: make(map[string]*adapter.Transaction), nextChargeID: "gw-tx-1"}
}

func (f *fakeGateway) CreateCharge(ctx context.Context, req adapter.CreateChargeRequest) (*adapter.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &adapter.Charge{
		GatewayTransactionID: f.nextChargeID,
		QRCodeText:           "00020126pix-code",
		QRCodeImageBase64:    "aW1n",
		ExpiresAt:            req.ExpiresAt,
	}, nil
}

func (f *fakeGateway) FetchTransaction(ctx context.Context, gatewayTxID string) (*adapter.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	tx, ok := f.transactions[gatewayTxID]
	if !ok {
		return nil, adapter.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

// memSink records published notifications.
type memSink struct {
	mu     sync.Mutex
	events []adapter.NotificationEvent
}

func (s *memSink) Publish(ctx context.Context, ev adapter.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// waitForEvent polls the sink for a named event; publication happens on a
// separate goroutine after commit.
func waitForEvent(t *testing.T, sink *memSink, event string) adapter.NotificationEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		for _, ev := range sink.events {
			if ev.Event == event {
				sink.mu.Unlock()
				return ev
			}
		}
		sink.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s notification published", event)
	return adapter.NotificationEvent{}
}
