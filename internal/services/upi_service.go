package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gymdesk/internal/models"
)

// UPIService talks to the UPI collect-order provider over HTTP JSON.
type UPIService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewUPIService() *UPIService {
	url := os.Getenv("UPI_BASE_URL")
	if url == "" {
		url = "http://upi-gateway:9000"
	}
	return &UPIService{
		baseURL: url,
		apiKey:  os.Getenv("UPI_API_KEY"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *UPIService) Name() models.PaymentGateway {
	return models.PaymentGatewayUPI
}

type upiOrderRequest struct {
	OrderID      string `json:"order_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	PayerName    string `json:"payer_name"`
	PayerEmail   string `json:"payer_email"`
	Note         string `json:"note"`
	ValidMinutes int    `json:"valid_minutes"`
}

type upiOrderResponse struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	UpiIntent string    `json:"upi_intent"`
	QRImage   string    `json:"qr_image"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *UPIService) makeRequest(ctx context.Context, method, endpoint string, payload, dest interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", s.baseURL, endpoint), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// CreateOrder opens a collect order and returns the displayable session payload.
func (s *UPIService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.SessionDetails, error) {
	req := upiOrderRequest{
		OrderID:      in.OrderID,
		Amount:       in.Amount,
		Currency:     in.Currency,
		PayerName:    in.CustomerName,
		PayerEmail:   in.CustomerEmail,
		Note:         in.Description,
		ValidMinutes: 15,
	}

	var resp upiOrderResponse
	if err := s.makeRequest(ctx, http.MethodPost, "/v1/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("upi create order: %w", err)
	}

	return &models.SessionDetails{
		OrderID:   resp.OrderID,
		PaymentID: resp.PaymentID,
		UpiIntent: resp.UpiIntent,
		QRImage:   resp.QRImage,
		Amount:    resp.Amount,
		Currency:  resp.Currency,
		ExpiresAt: resp.ExpiresAt,
		State:     mapUPIStatus(resp.Status),
	}, nil
}

// OrderStatus polls the provider for the current order state.
func (s *UPIService) OrderStatus(ctx context.Context, orderID string) (models.SessionState, error) {
	var resp upiOrderResponse
	if err := s.makeRequest(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &resp); err != nil {
		return "", fmt.Errorf("upi order status: %w", err)
	}
	return mapUPIStatus(resp.Status), nil
}

// CancelOrder voids an open order.
func (s *UPIService) CancelOrder(ctx context.Context, orderID string) error {
	if err := s.makeRequest(ctx, http.MethodPost, "/v1/orders/"+orderID+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("upi cancel order: %w", err)
	}
	return nil
}

// mapUPIStatus translates provider status strings onto session states.
func mapUPIStatus(status string) models.SessionState {
	switch status {
	case "paid", "settled", "success":
		return models.SessionPaid
	case "failed", "declined":
		return models.SessionFailed
	case "expired", "cancelled":
		return models.SessionExpired
	default:
		return models.SessionCreated
	}
}
