package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymdesk/internal/models"
	"gymdesk/internal/services"
)

// PaymentHandler serves the payment session API the payment view polls.
type PaymentHandler struct {
	db       *gorm.DB
	payments *services.PaymentService
	members  *services.MemberService
}

func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService, members *services.MemberService) *PaymentHandler {
	return &PaymentHandler{db: db, payments: payments, members: members}
}

// Create provisions a fresh payment session for an existing member. Used when
// a member returns to pay after an earlier session lapsed.
func (h *PaymentHandler) Create(c echo.Context) error {
	var req struct {
		MemberID uint `json:"memberId"`
	}
	if err := c.Bind(&req); err != nil || req.MemberID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "A member id is required")
	}

	ctx := c.Request().Context()
	member, err := h.members.ByID(ctx, req.MemberID)
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Member not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch member")
	}
	if member.PaymentStatus == models.PaymentStatusConfirmed {
		return echo.NewHTTPError(http.StatusBadRequest, "Payment is already confirmed")
	}

	details, err := h.payments.CreateSession(ctx, member)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create payment session")
	}
	return respond(c, http.StatusCreated, "", details)
}

// Details returns the displayable session payload for the payment view. The
// cache absorbs reloads so a fresh page load never re-charges the gateway.
func (h *PaymentHandler) Details(c echo.Context) error {
	details, err := h.payments.Details(c.Request().Context(), c.Param("orderId"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Payment session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch payment details")
	}
	return respond(c, http.StatusOK, "", statusView(details.State, details.ExpiresAt, details))
}

// Status reconciles the session against the gateway and reports the
// authoritative state plus the remaining seconds on the deadline.
func (h *PaymentHandler) Status(c echo.Context) error {
	session, err := h.payments.VerifyStatus(c.Request().Context(), c.Param("orderId"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Payment session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to check payment status")
	}
	return respond(c, http.StatusOK, "", statusView(session.State, session.ExpiresAt, nil))
}

// MidtransCallback ingests asynchronous gateway notifications. The raw payload
// is recorded before any state change so a mis-mapped status can be replayed.
func (h *PaymentHandler) MidtransCallback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable callback payload")
	}

	var payload struct {
		OrderID           string `json:"order_id"`
		TransactionID     string `json:"transaction_id"`
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid callback payload")
	}

	ctx := c.Request().Context()
	callback := &models.PaymentCallback{
		Gateway:  models.PaymentGatewayMidtrans,
		OrderID:  payload.OrderID,
		Metadata: body,
	}
	if err := h.db.WithContext(ctx).Create(callback).Error; err != nil {
		log.Printf("failed to record midtrans callback for %s: %v", payload.OrderID, err)
	}

	// Callbacks for orders we never created are recorded but not applied.
	session, err := h.payments.VerifyStatus(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return respond(c, http.StatusOK, "", nil)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process callback")
	}
	if payload.TransactionID != "" && session.PaymentID == "" {
		session.PaymentID = payload.TransactionID
	}
	if err := h.payments.ApplyState(ctx, session, services.MapMidtransStatus(payload.TransactionStatus)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process callback")
	}

	return respond(c, http.StatusOK, "", nil)
}

// Cancel marks an open session failed from the client side, used when the
// member abandons the payment view.
func (h *PaymentHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	session, err := h.payments.VerifyStatus(ctx, c.Param("orderId"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Payment session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to cancel payment")
	}
	if session.State.Terminal() {
		return respond(c, http.StatusOK, "", statusView(session.State, session.ExpiresAt, nil))
	}

	if err := h.payments.ApplyState(ctx, session, models.SessionFailed); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to cancel payment")
	}
	return respond(c, http.StatusOK, "Payment cancelled", statusView(session.State, session.ExpiresAt, nil))
}

func statusView(state models.SessionState, expiresAt time.Time, details *models.SessionDetails) map[string]interface{} {
	remaining := services.RemainingSeconds(expiresAt, time.Now())
	if state.Terminal() {
		remaining = 0
	}
	view := map[string]interface{}{
		"state":              state,
		"terminal":           state.Terminal(),
		"expiresAt":          expiresAt,
		"remainingSeconds":   remaining,
		"remainingFormatted": services.FormatRemaining(remaining),
	}
	if details != nil {
		view["order"] = details
	}
	return view
}
