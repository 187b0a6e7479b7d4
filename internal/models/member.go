package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentMethod is how a member chose to pay for the current term.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodOnline PaymentMethod = "online"
)

// ParsePaymentMethod validates a payment method string from a form payload.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case PaymentMethodCash, PaymentMethodOnline:
		return PaymentMethod(s), true
	}
	return "", false
}

// PaymentStatus tracks whether payment for the current term has been settled.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
)

// SubscriptionStatus is derived from the member record, never stored.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionPending SubscriptionStatus = "pending"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Member is a gym member record
type Member struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name  string     `gorm:"type:varchar(255)" json:"name"`
	Email string     `gorm:"type:varchar(255);uniqueIndex:idx_members_email,where:deleted_at IS NULL" json:"email"`
	Phone string     `gorm:"type:varchar(20);index" json:"phone"`
	DOB   *time.Time `json:"dob"`
	Photo string     `gorm:"type:varchar(512)" json:"photo"`

	Plan          Plan          `gorm:"type:varchar(20)" json:"plan"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20)" json:"payment_method"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);default:'pending';index" json:"payment_status"`
}

// SubscriptionStatusAt derives the subscription state at the given instant.
// Expiry wins over pending payment: a lapsed end date means expired either way.
func (m Member) SubscriptionStatusAt(now time.Time) SubscriptionStatus {
	if now.After(m.EndDate) {
		return SubscriptionExpired
	}
	if m.PaymentStatus == PaymentStatusPending {
		return SubscriptionPending
	}
	return SubscriptionActive
}

// Expired reports whether the membership end date has passed.
func (m Member) Expired(now time.Time) bool {
	return now.After(m.EndDate)
}
