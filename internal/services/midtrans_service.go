package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"

	"gymdesk/internal/models"
)

// MidtransService adapts the Midtrans core API as a payment gateway,
// using GoPay QR charges so sessions carry a scannable code and a deep link.
type MidtransService struct {
	CoreClient coreapi.Client
}

func NewMidtransService() *MidtransService {
	serverKey := os.Getenv("MIDTRANS_SERVER_KEY")
	envStr := os.Getenv("MIDTRANS_IS_PRODUCTION")

	env := midtrans.Sandbox
	if envStr == "true" {
		env = midtrans.Production
	}

	var c coreapi.Client
	c.New(serverKey, env)

	midtrans.ServerKey = serverKey
	midtrans.Environment = env

	return &MidtransService{CoreClient: c}
}

func (s *MidtransService) Name() models.PaymentGateway {
	return models.PaymentGatewayMidtrans
}

// CreateOrder charges a GoPay QR transaction. The returned actions carry the
// QR image ("generate-qr-code") and the app deep link ("deeplink-redirect").
func (s *MidtransService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.SessionDetails, error) {
	req := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeGopay,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  in.OrderID,
			GrossAmt: in.Amount,
		},
		CustomerDetails: &midtrans.CustomerDetails{
			FName: in.CustomerName,
			Email: in.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    in.OrderID,
				Name:  in.Description,
				Price: in.Amount,
				Qty:   1,
			},
		},
		CustomExpiry: &coreapi.CustomExpiry{
			ExpiryDuration: 15,
			Unit:           "minute",
		},
	}

	resp, err := s.CoreClient.ChargeTransaction(req)
	if err != nil {
		return nil, fmt.Errorf("midtrans charge: %w", err)
	}

	details := &models.SessionDetails{
		OrderID:   in.OrderID,
		PaymentID: resp.TransactionID,
		Amount:    in.Amount,
		Currency:  resp.Currency,
		ExpiresAt: time.Now().Add(15 * time.Minute),
		State:     MapMidtransStatus(resp.TransactionStatus),
	}
	for _, action := range resp.Actions {
		switch action.Name {
		case "generate-qr-code":
			details.QRImage = action.URL
		case "deeplink-redirect":
			details.UpiIntent = action.URL
		}
	}

	return details, nil
}

// OrderStatus maps the transaction status onto session states.
func (s *MidtransService) OrderStatus(ctx context.Context, orderID string) (models.SessionState, error) {
	resp, err := s.CoreClient.CheckTransaction(orderID)
	if err != nil {
		return "", fmt.Errorf("midtrans check transaction: %w", err)
	}
	return MapMidtransStatus(resp.TransactionStatus), nil
}

// CancelOrder voids a pending transaction.
func (s *MidtransService) CancelOrder(ctx context.Context, orderID string) error {
	if _, err := s.CoreClient.CancelTransaction(orderID); err != nil {
		return fmt.Errorf("midtrans cancel transaction: %w", err)
	}
	return nil
}

// MapMidtransStatus folds Midtrans transaction statuses onto session states.
// Anything unrecognized stays open so a later poll can settle it.
func MapMidtransStatus(status string) models.SessionState {
	switch status {
	case "settlement", "capture":
		return models.SessionPaid
	case "deny", "failure":
		return models.SessionFailed
	case "expire", "cancel":
		return models.SessionExpired
	default: // pending, authorize
		return models.SessionCreated
	}
}
