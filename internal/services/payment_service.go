package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gymdesk/internal/models"
)

// ErrSessionNotFound is returned when no session exists for an order id.
var ErrSessionNotFound = errors.New("payment session not found")

// detailsTTL bounds the cache entry lifetime; sessions live about 15 minutes
// so anything past an hour is stale by construction.
const detailsTTL = time.Hour

// SessionStore persists payment sessions. The gorm-backed store is the real
// one; tests use an in-memory map.
type SessionStore interface {
	Save(ctx context.Context, session *models.PaymentSession) error
	ByOrderID(ctx context.Context, orderID string) (*models.PaymentSession, error)
	OpenSessions(ctx context.Context) ([]models.PaymentSession, error)
}

// GormSessionStore implements SessionStore on the database.
type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) Save(ctx context.Context, session *models.PaymentSession) error {
	return s.db.WithContext(ctx).Save(session).Error
}

func (s *GormSessionStore) ByOrderID(ctx context.Context, orderID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *GormSessionStore) OpenSessions(ctx context.Context) ([]models.PaymentSession, error) {
	var sessions []models.PaymentSession
	err := s.db.WithContext(ctx).Where("state = ?", models.SessionCreated).Find(&sessions).Error
	return sessions, err
}

// PaymentService owns the payment session lifecycle: provisioning against the
// gateway, the read-through details cache, and state reconciliation under the
// terminality-rank rule.
type PaymentService struct {
	store    SessionStore
	cache    KVStore
	gateway  Gateway
	watchCfg WatcherConfig

	// onPaid runs after a session settles; the server wires it to confirm
	// the member and send the confirmation email.
	onPaid func(session *models.PaymentSession)

	// onCreated runs after a session is provisioned; the server wires it
	// to start the session's watcher.
	onCreated func(session *models.PaymentSession)
}

func NewPaymentService(store SessionStore, cache KVStore, gateway Gateway) *PaymentService {
	return &PaymentService{
		store:    store,
		cache:    cache,
		gateway:  gateway,
		watchCfg: DefaultWatcherConfig(),
	}
}

// OnPaid registers the settlement hook.
func (s *PaymentService) OnPaid(fn func(session *models.PaymentSession)) {
	s.onPaid = fn
}

// OnCreated registers the provisioning hook.
func (s *PaymentService) OnCreated(fn func(session *models.PaymentSession)) {
	s.onCreated = fn
}

func cacheKey(orderID string) string {
	return "payment:" + orderID
}

// CreateSession provisions a gateway order for the member's plan and persists
// the session. The displayable payload is cached under the order id so a
// details fetch after a reload needs no second gateway call.
func (s *PaymentService) CreateSession(ctx context.Context, member *models.Member) (*models.SessionDetails, error) {
	return s.createSession(ctx, member, nil)
}

// CreateRenewalSession provisions a session for a pending renewal request and
// links the session to it so the settling payment can be traced back.
func (s *PaymentService) CreateRenewalSession(ctx context.Context, member *models.Member, renewalID uint) (*models.SessionDetails, error) {
	return s.createSession(ctx, member, &renewalID)
}

func (s *PaymentService) createSession(ctx context.Context, member *models.Member, renewalID *uint) (*models.SessionDetails, error) {
	orderID := fmt.Sprintf("member-%d-%s", member.ID, uuid.NewString()[:8])

	in := CreateOrderInput{
		OrderID:       orderID,
		Amount:        member.Plan.Price(),
		Currency:      "INR",
		CustomerName:  member.Name,
		CustomerEmail: member.Email,
		Description:   fmt.Sprintf("%s membership", member.Plan.Name()),
	}

	details, err := s.gateway.CreateOrder(ctx, in)
	if err != nil {
		return nil, err
	}
	if details.ExpiresAt.IsZero() {
		details.ExpiresAt = time.Now().Add(15 * time.Minute)
	}
	if details.State == "" {
		details.State = models.SessionCreated
	}

	reqBytes, _ := json.Marshal(in)
	respBytes, _ := json.Marshal(details)

	session := &models.PaymentSession{
		MemberID:         member.ID,
		RenewalRequestID: renewalID,
		Gateway:          s.gateway.Name(),
		OrderID:          details.OrderID,
		PaymentID:        details.PaymentID,
		Amount:           details.Amount,
		Currency:         details.Currency,
		State:            details.State,
		ExpiresAt:        details.ExpiresAt,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save payment session: %w", err)
	}

	_ = s.cache.Set(ctx, cacheKey(details.OrderID), details, detailsTTL)

	if s.onCreated != nil {
		s.onCreated(session)
	}

	return details, nil
}

// Details returns the displayable session payload through the cache.
func (s *PaymentService) Details(ctx context.Context, orderID string) (*models.SessionDetails, error) {
	details, err := ReadThrough(ctx, s.cache, cacheKey(orderID), detailsTTL, func() (models.SessionDetails, error) {
		session, err := s.store.ByOrderID(ctx, orderID)
		if err != nil {
			return models.SessionDetails{}, err
		}
		var d models.SessionDetails
		if len(session.ResponseMetadata) > 0 {
			if err := json.Unmarshal(session.ResponseMetadata, &d); err == nil {
				d.State = session.State
				return d, nil
			}
		}
		// Metadata missing; rebuild from the row
		return models.SessionDetails{
			OrderID:   session.OrderID,
			PaymentID: session.PaymentID,
			Amount:    session.Amount,
			Currency:  session.Currency,
			ExpiresAt: session.ExpiresAt,
			State:     session.State,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// VerifyStatus reconciles a session against the gateway and returns the
// authoritative state. Gateway failures leave the stored state untouched.
func (s *PaymentService) VerifyStatus(ctx context.Context, orderID string) (*models.PaymentSession, error) {
	session, err := s.store.ByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if session.State.Terminal() {
		return session, nil
	}

	observed, err := s.gateway.OrderStatus(ctx, orderID)
	if err != nil {
		log.Printf("gateway status check failed for %s: %v", orderID, err)
		observed = session.State
	}

	// A session past its deadline expires locally even if the gateway
	// still reports it open.
	if observed == models.SessionCreated && time.Now().After(session.ExpiresAt) {
		observed = models.SessionExpired
	}

	if err := s.ApplyState(ctx, session, observed); err != nil {
		return nil, err
	}
	return session, nil
}

// ApplyState records an observed state if it outranks the current one and
// fires the settlement hook on a transition to paid.
func (s *PaymentService) ApplyState(ctx context.Context, session *models.PaymentSession, observed models.SessionState) error {
	if !observed.Supersedes(session.State) {
		return nil
	}

	session.State = observed
	if err := s.store.Save(ctx, session); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}

	// Keep the cached mirror in step with the stored state.
	if details, err := s.Details(ctx, session.OrderID); err == nil {
		details.State = observed
		_ = s.cache.Set(ctx, cacheKey(session.OrderID), details, detailsTTL)
	}

	if observed == models.SessionPaid && s.onPaid != nil {
		s.onPaid(session)
	}
	return nil
}

// ExpireOverdue marks open sessions whose deadline passed as expired and
// returns how many were closed. The worker runs this as a sweep.
func (s *PaymentService) ExpireOverdue(ctx context.Context) (int, error) {
	sessions, err := s.store.OpenSessions(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	expired := 0
	for i := range sessions {
		if now.After(sessions[i].ExpiresAt) {
			if err := s.ApplyState(ctx, &sessions[i], models.SessionExpired); err != nil {
				log.Printf("failed to expire session %s: %v", sessions[i].OrderID, err)
				continue
			}
			expired++
		}
	}
	return expired, nil
}

// Watch starts a session watcher that polls the gateway until the session is
// terminal, with the countdown forcing a local expiry at the deadline. The
// returned watcher has already been started; callers own Stop.
func (s *PaymentService) Watch(ctx context.Context, session *models.PaymentSession) *SessionWatcher {
	orderID := session.OrderID
	status := func(ctx context.Context) (models.SessionState, error) {
		reconciled, err := s.VerifyStatus(ctx, orderID)
		if err != nil {
			return "", err
		}
		return reconciled.State, nil
	}

	w := NewSessionWatcher(orderID, session.State, session.ExpiresAt, status, s.watchCfg)
	w.OnDone(func(final models.SessionState) {
		// Persist a locally-declared expiry the gateway never confirmed.
		if final == models.SessionExpired {
			if stored, err := s.store.ByOrderID(context.Background(), orderID); err == nil {
				_ = s.ApplyState(context.Background(), stored, models.SessionExpired)
			}
		}
	})
	w.Start(ctx)
	return w
}
