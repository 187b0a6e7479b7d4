package models

import (
	"time"

	"gorm.io/gorm"
)

// RenewalStatus tracks the admin decision on a renewal request.
type RenewalStatus string

const (
	RenewalPending  RenewalStatus = "pending"
	RenewalApproved RenewalStatus = "approved"
	RenewalRejected RenewalStatus = "rejected"
)

// RenewalRequest is a member-submitted request to extend a membership.
// It is resolved by an admin; approval applies the new plan dates.
type RenewalRequest struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	MemberID      uint          `gorm:"index" json:"member_id"`
	Plan          Plan          `gorm:"type:varchar(20)" json:"plan"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20)" json:"payment_method"`
	Amount        int64         `json:"amount"`
	Status        RenewalStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`

	Member Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`
}
