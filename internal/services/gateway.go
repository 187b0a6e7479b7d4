package services

import (
	"context"
	"os"

	"gymdesk/internal/models"
)

// CreateOrderInput carries everything a provider needs to open a session.
type CreateOrderInput struct {
	OrderID       string
	Amount        int64
	Currency      string
	CustomerName  string
	CustomerEmail string
	Description   string
}

// Gateway abstracts a payment provider. Both the UPI provider and the
// Midtrans adapter implement it; tests use a scripted fake.
type Gateway interface {
	Name() models.PaymentGateway
	CreateOrder(ctx context.Context, in CreateOrderInput) (*models.SessionDetails, error)
	OrderStatus(ctx context.Context, orderID string) (models.SessionState, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// SelectGateway picks the configured provider, defaulting to UPI.
func SelectGateway() Gateway {
	if os.Getenv("PAYMENT_GATEWAY") == string(models.PaymentGatewayMidtrans) {
		return NewMidtransService()
	}
	return NewUPIService()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
