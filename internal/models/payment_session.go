package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentGateway identifies which provider issued a session.
type PaymentGateway string

const (
	PaymentGatewayUPI      PaymentGateway = "upi"
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
)

// SessionState is the lifecycle state of a payment session.
type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionPaid    SessionState = "paid"
	SessionFailed  SessionState = "failed"
	SessionExpired SessionState = "expired"
)

// ParseSessionState validates a state string from a gateway or API payload.
func ParseSessionState(s string) (SessionState, bool) {
	switch SessionState(s) {
	case SessionCreated, SessionPaid, SessionFailed, SessionExpired:
		return SessionState(s), true
	}
	return "", false
}

// Terminal reports whether no further transitions are permitted.
func (s SessionState) Terminal() bool {
	return s == SessionPaid || s == SessionFailed || s == SessionExpired
}

// Rank orders states by terminality. Server-confirmed outcomes outrank a
// locally-declared expiry, which outranks created. A transition is only
// applied when the new state strictly outranks the current one, so a stale
// created response can never resurrect a session.
func (s SessionState) Rank() int {
	switch s {
	case SessionCreated:
		return 0
	case SessionExpired:
		return 1
	case SessionFailed:
		return 2
	case SessionPaid:
		return 3
	}
	return -1
}

// Supersedes reports whether s may replace cur.
func (s SessionState) Supersedes(cur SessionState) bool {
	return s.Rank() > cur.Rank()
}

// PaymentSession is a gateway-issued record tracking one payment attempt.
type PaymentSession struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	MemberID         uint            `gorm:"index" json:"member_id"`
	RenewalRequestID *uint           `gorm:"index" json:"renewal_request_id,omitempty"`
	Gateway          PaymentGateway  `gorm:"type:varchar(50);not null" json:"gateway"`
	OrderID          string          `gorm:"type:varchar(100);uniqueIndex" json:"order_id"`
	PaymentID        string          `gorm:"type:varchar(100)" json:"payment_id"`
	Amount           int64           `json:"amount"`
	Currency         string          `gorm:"type:varchar(10)" json:"currency"`
	State            SessionState    `gorm:"type:varchar(20);default:'created';index" json:"state"`
	ExpiresAt        time.Time       `json:"expires_at"`
	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata,omitempty"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata,omitempty"`

	Member Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`
}

// SessionDetails is the displayable session payload handed to clients and
// mirrored in the read-through cache keyed by order id.
type SessionDetails struct {
	OrderID   string       `json:"orderId"`
	PaymentID string       `json:"paymentId"`
	UpiIntent string       `json:"upiIntent"`
	QRImage   string       `json:"qrImage"`
	Amount    int64        `json:"amount"`
	Currency  string       `json:"currency"`
	ExpiresAt time.Time    `json:"expiresAt"`
	State     SessionState `json:"state"`
}
