package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentCallback records a raw gateway notification for audit and replay.
type PaymentCallback struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Gateway   PaymentGateway  `gorm:"type:varchar(50);not null" json:"gateway"`
	OrderID   string          `gorm:"type:varchar(100);index" json:"order_id"`
	Metadata  json.RawMessage `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}
