package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"gymdesk/internal/models"
)

// memoryKV is an in-memory KVStore for tests. Values round-trip through JSON
// the same way the Redis cache marshals them.
type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

// memorySessionStore is an in-memory SessionStore recording fetch counts.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.PaymentSession
	fetches  int
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]*models.PaymentSession)}
}

func (s *memorySessionStore) Save(ctx context.Context, session *models.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.OrderID] = &cp
	return nil
}

func (s *memorySessionStore) ByOrderID(ctx context.Context, orderID string) (*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	session, ok := s.sessions[orderID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *memorySessionStore) OpenSessions(ctx context.Context) ([]models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentSession
	for _, session := range s.sessions {
		if session.State == models.SessionCreated {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *memorySessionStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// stubGateway returns canned responses and counts calls.
type stubGateway struct {
	mu           sync.Mutex
	createCalls  int
	statusCalls  int
	statusResult models.SessionState
	statusErr    error
	expiresAt    time.Time
}

func (g *stubGateway) Name() models.PaymentGateway { return models.PaymentGatewayUPI }

func (g *stubGateway) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.SessionDetails, error) {
	g.mu.Lock()
	g.createCalls++
	g.mu.Unlock()
	expires := g.expiresAt
	if expires.IsZero() {
		expires = time.Now().Add(15 * time.Minute)
	}
	return &models.SessionDetails{
		OrderID:   in.OrderID,
		PaymentID: "pay-" + in.OrderID,
		UpiIntent: "upi://pay?tr=" + in.OrderID,
		QRImage:   "data:image/png;base64,stub",
		Amount:    in.Amount,
		Currency:  in.Currency,
		ExpiresAt: expires,
		State:     models.SessionCreated,
	}, nil
}

func (g *stubGateway) OrderStatus(ctx context.Context, orderID string) (models.SessionState, error) {
	g.mu.Lock()
	g.statusCalls++
	g.mu.Unlock()
	return g.statusResult, g.statusErr
}

func (g *stubGateway) CancelOrder(ctx context.Context, orderID string) error { return nil }

func testMember() *models.Member {
	now := time.Now()
	return &models.Member{
		ID:            7,
		Name:          "Asha Rao",
		Email:         "asha@example.com",
		Plan:          models.PlanThreeMonth,
		StartDate:     now,
		EndDate:       models.PlanThreeMonth.EndDate(now),
		PaymentMethod: models.PaymentMethodOnline,
		PaymentStatus: models.PaymentStatusPending,
	}
}

func TestCreateSessionPersistsAndCaches(t *testing.T) {
	store := newMemorySessionStore()
	gateway := &stubGateway{statusResult: models.SessionCreated}
	svc := NewPaymentService(store, newMemoryKV(), gateway)

	details, err := svc.CreateSession(context.Background(), testMember())
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if details.Amount != models.PlanThreeMonth.Price() {
		t.Errorf("session amount = %d; want %d", details.Amount, models.PlanThreeMonth.Price())
	}
	if details.Currency != "INR" {
		t.Errorf("session currency = %q; want INR", details.Currency)
	}

	stored, err := store.ByOrderID(context.Background(), details.OrderID)
	if err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if stored.State != models.SessionCreated {
		t.Errorf("stored state = %q; want created", stored.State)
	}

	// The create already primed the cache, so a details read must not hit
	// the store again.
	before := store.fetchCount()
	got, err := svc.Details(context.Background(), details.OrderID)
	if err != nil {
		t.Fatalf("Details() error: %v", err)
	}
	if got.OrderID != details.OrderID {
		t.Errorf("Details() order = %q; want %q", got.OrderID, details.OrderID)
	}
	if store.fetchCount() != before {
		t.Errorf("details read hit the store %d extra times; want cache hit", store.fetchCount()-before)
	}
}

func TestCreateSessionFiresCreatedHook(t *testing.T) {
	store := newMemorySessionStore()
	svc := NewPaymentService(store, newMemoryKV(), &stubGateway{statusResult: models.SessionCreated})

	var hooked []*models.PaymentSession
	svc.OnCreated(func(session *models.PaymentSession) {
		hooked = append(hooked, session)
	})

	details, err := svc.CreateSession(context.Background(), testMember())
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if len(hooked) != 1 {
		t.Fatalf("created hook fired %d times; want 1", len(hooked))
	}
	if hooked[0].OrderID != details.OrderID {
		t.Errorf("hook order = %q; want %q", hooked[0].OrderID, details.OrderID)
	}
	// The hook must see the persisted row so a watcher can be started
	// against it directly.
	if _, err := store.ByOrderID(context.Background(), hooked[0].OrderID); err != nil {
		t.Errorf("hook fired before the session was persisted: %v", err)
	}
}

func TestCreateRenewalSessionLinksRequest(t *testing.T) {
	store := newMemorySessionStore()
	svc := NewPaymentService(store, newMemoryKV(), &stubGateway{statusResult: models.SessionCreated})

	details, err := svc.CreateRenewalSession(context.Background(), testMember(), 77)
	if err != nil {
		t.Fatalf("CreateRenewalSession() error: %v", err)
	}

	stored, err := store.ByOrderID(context.Background(), details.OrderID)
	if err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if stored.RenewalRequestID == nil || *stored.RenewalRequestID != 77 {
		t.Errorf("stored renewal link = %v; want 77", stored.RenewalRequestID)
	}

	plain, err := svc.CreateSession(context.Background(), testMember())
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if s, _ := store.ByOrderID(context.Background(), plain.OrderID); s.RenewalRequestID != nil {
		t.Errorf("registration session carries renewal link %d; want none", *s.RenewalRequestID)
	}
}

func TestDetailsReadThrough(t *testing.T) {
	store := newMemorySessionStore()
	gateway := &stubGateway{}
	svc := NewPaymentService(store, newMemoryKV(), gateway)

	expires := time.Now().Add(10 * time.Minute)
	session := &models.PaymentSession{
		MemberID:  7,
		Gateway:   models.PaymentGatewayUPI,
		OrderID:   "member-7-abc",
		Amount:    3500,
		Currency:  "INR",
		State:     models.SessionCreated,
		ExpiresAt: expires,
	}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	// First read misses the cache and fetches from the store.
	first, err := svc.Details(context.Background(), "member-7-abc")
	if err != nil {
		t.Fatalf("Details() error: %v", err)
	}
	if first.Amount != 3500 {
		t.Errorf("details amount = %d; want 3500", first.Amount)
	}
	fetchesAfterFirst := store.fetchCount()

	// Second read is served from cache.
	second, err := svc.Details(context.Background(), "member-7-abc")
	if err != nil {
		t.Fatalf("Details() second read error: %v", err)
	}
	if second.OrderID != first.OrderID || second.Amount != first.Amount {
		t.Errorf("cached details differ: %+v vs %+v", second, first)
	}
	if store.fetchCount() != fetchesAfterFirst {
		t.Errorf("second read fetched from store; want cache hit")
	}
}

func TestDetailsUnknownOrder(t *testing.T) {
	svc := NewPaymentService(newMemorySessionStore(), newMemoryKV(), &stubGateway{})
	if _, err := svc.Details(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Details() error = %v; want ErrSessionNotFound", err)
	}
}

func TestVerifyStatusTerminalShortCircuit(t *testing.T) {
	store := newMemorySessionStore()
	gateway := &stubGateway{statusResult: models.SessionCreated}
	svc := NewPaymentService(store, newMemoryKV(), gateway)

	session := &models.PaymentSession{
		OrderID:   "done-1",
		State:     models.SessionPaid,
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	got, err := svc.VerifyStatus(context.Background(), "done-1")
	if err != nil {
		t.Fatalf("VerifyStatus() error: %v", err)
	}
	if got.State != models.SessionPaid {
		t.Errorf("state = %q; want paid", got.State)
	}
	if gateway.statusCalls != 0 {
		t.Errorf("gateway polled %d times for a terminal session; want 0", gateway.statusCalls)
	}
}

func TestVerifyStatusGatewayErrorKeepsState(t *testing.T) {
	store := newMemorySessionStore()
	gateway := &stubGateway{statusErr: errors.New("gateway down")}
	svc := NewPaymentService(store, newMemoryKV(), gateway)

	session := &models.PaymentSession{
		OrderID:   "flaky-1",
		State:     models.SessionCreated,
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	got, err := svc.VerifyStatus(context.Background(), "flaky-1")
	if err != nil {
		t.Fatalf("VerifyStatus() error: %v", err)
	}
	if got.State != models.SessionCreated {
		t.Errorf("state = %q after gateway error; want created", got.State)
	}
}

func TestVerifyStatusExpiresPastDeadline(t *testing.T) {
	store := newMemorySessionStore()
	gateway := &stubGateway{statusResult: models.SessionCreated}
	svc := NewPaymentService(store, newMemoryKV(), gateway)

	session := &models.PaymentSession{
		OrderID:   "late-1",
		State:     models.SessionCreated,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	got, err := svc.VerifyStatus(context.Background(), "late-1")
	if err != nil {
		t.Fatalf("VerifyStatus() error: %v", err)
	}
	if got.State != models.SessionExpired {
		t.Errorf("state = %q; want expired", got.State)
	}
}

func TestApplyStateRankAndHook(t *testing.T) {
	store := newMemorySessionStore()
	svc := NewPaymentService(store, newMemoryKV(), &stubGateway{})

	var paidOrders []string
	svc.OnPaid(func(s *models.PaymentSession) {
		paidOrders = append(paidOrders, s.OrderID)
	})

	session := &models.PaymentSession{
		OrderID:   "rank-1",
		State:     models.SessionExpired,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	// created cannot resurrect an expired session
	if err := svc.ApplyState(context.Background(), session, models.SessionCreated); err != nil {
		t.Fatal(err)
	}
	if session.State != models.SessionExpired {
		t.Errorf("created overwrote expired; state = %q", session.State)
	}

	// paid overrides a local expiry and fires the hook
	if err := svc.ApplyState(context.Background(), session, models.SessionPaid); err != nil {
		t.Fatal(err)
	}
	if session.State != models.SessionPaid {
		t.Errorf("state = %q; want paid", session.State)
	}
	if len(paidOrders) != 1 || paidOrders[0] != "rank-1" {
		t.Errorf("paid hook fired for %v; want [rank-1]", paidOrders)
	}

	stored, _ := store.ByOrderID(context.Background(), "rank-1")
	if stored.State != models.SessionPaid {
		t.Errorf("stored state = %q; want paid", stored.State)
	}
}

func TestExpireOverdue(t *testing.T) {
	store := newMemorySessionStore()
	svc := NewPaymentService(store, newMemoryKV(), &stubGateway{})

	sessions := []*models.PaymentSession{
		{OrderID: "open-past", State: models.SessionCreated, ExpiresAt: time.Now().Add(-time.Minute)},
		{OrderID: "open-future", State: models.SessionCreated, ExpiresAt: time.Now().Add(time.Minute)},
		{OrderID: "already-paid", State: models.SessionPaid, ExpiresAt: time.Now().Add(-time.Minute)},
	}
	for _, s := range sessions {
		if err := store.Save(context.Background(), s); err != nil {
			t.Fatal(err)
		}
	}

	expired, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("ExpireOverdue() error: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired %d sessions; want 1", expired)
	}

	past, _ := store.ByOrderID(context.Background(), "open-past")
	if past.State != models.SessionExpired {
		t.Errorf("overdue session state = %q; want expired", past.State)
	}
	future, _ := store.ByOrderID(context.Background(), "open-future")
	if future.State != models.SessionCreated {
		t.Errorf("in-window session state = %q; want created", future.State)
	}
}
