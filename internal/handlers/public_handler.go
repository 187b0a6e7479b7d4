package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"gymdesk/internal/middleware"
	"gymdesk/internal/models"
)

// memberStore is the slice of member persistence the public flow needs.
type memberStore interface {
	Create(ctx context.Context, m *models.Member) error
	ByID(ctx context.Context, id uint) (*models.Member, error)
	EmailInUse(ctx context.Context, email string) (bool, error)
	PhoneInUse(ctx context.Context, phone string) (bool, error)
	CreateRenewal(ctx context.Context, r *models.RenewalRequest) error
}

// sessionCreator provisions a payment session for a member's current plan,
// optionally tied to a pending renewal request.
type sessionCreator interface {
	CreateSession(ctx context.Context, member *models.Member) (*models.SessionDetails, error)
	CreateRenewalSession(ctx context.Context, member *models.Member, renewalID uint) (*models.SessionDetails, error)
}

// renewalTokens verifies the member-identifying token in renewal links.
type renewalTokens interface {
	VerifyRenewalToken(token string) (uint, error)
}

// welcomeMailer sends the post-registration email; best effort.
type welcomeMailer interface {
	SendWelcome(m *models.Member) error
}

// PublicHandler serves the unauthenticated registration and renewal flow.
type PublicHandler struct {
	members   memberStore
	payments  sessionCreator
	tokens    renewalTokens
	mailer    welcomeMailer
	validate  *validator.Validate
	uploadDir string
}

func NewPublicHandler(members memberStore, payments sessionCreator, tokens renewalTokens, mailer welcomeMailer, uploadDir string) *PublicHandler {
	return &PublicHandler{
		members:   members,
		payments:  payments,
		tokens:    tokens,
		mailer:    mailer,
		validate:  validator.New(),
		uploadDir: uploadDir,
	}
}

// Register handles the public registration form (multipart, with photo).
//
// The cash path completes immediately; the online path provisions exactly one
// payment session and hands the client off to the payment view. A session
// provisioning failure after a successful registration is reported as partial
// success: the member record stays and the client is routed to the thank-you
// view for later reconciliation by staff.
func (h *PublicHandler) Register(c echo.Context) error {
	req := RegisterRequest{
		Name:          c.FormValue("name"),
		Email:         c.FormValue("email"),
		Phone:         c.FormValue("phone"),
		DOB:           c.FormValue("dob"),
		Plan:          c.FormValue("plan"),
		PaymentMethod: c.FormValue("paymentMethod"),
	}

	fieldErrs := map[string]string{}
	if err := h.validate.Struct(req); err != nil {
		fieldErrs = validationErrors(err)
	}

	photo, photoErr := c.FormFile("photo")
	if photoErr != nil {
		fieldErrs["photo"] = "Please upload a photo"
	} else if _, err := checkPhoto(photo, registerPhotoMaxBytes); err != nil {
		fieldErrs["photo"] = err.Error()
	}

	if len(fieldErrs) > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, middleware.APIError{
			Status:  "error",
			Message: "Please fix the errors in the form",
			Errors:  fieldErrs,
		})
	}

	plan, _ := models.ParsePlan(req.Plan)
	method, _ := models.ParsePaymentMethod(req.PaymentMethod)

	ctx := c.Request().Context()
	if inUse, err := h.members.EmailInUse(ctx, req.Email); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to check existing members")
	} else if inUse {
		return echo.NewHTTPError(http.StatusBadRequest, "Email already exists")
	}
	if inUse, err := h.members.PhoneInUse(ctx, req.Phone); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to check existing members")
	} else if inUse {
		return echo.NewHTTPError(http.StatusBadRequest, "This phone number is already registered")
	}

	photoPath, err := savePhoto(h.uploadDir, photo, registerPhotoMaxBytes)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store photo")
	}

	dob, err := time.Parse("2006-01-02", req.DOB)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Please enter a valid date (YYYY-MM-DD)")
	}
	now := time.Now()
	member := &models.Member{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		DOB:           &dob,
		Photo:         photoPath,
		Plan:          plan,
		StartDate:     now,
		EndDate:       plan.EndDate(now),
		PaymentMethod: method,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := h.members.Create(ctx, member); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Registration failed. Please try again.")
	}

	if h.mailer != nil {
		if err := h.mailer.SendWelcome(member); err != nil {
			log.Printf("welcome email failed for member %d: %v", member.ID, err)
		}
	}

	if method == models.PaymentMethodCash {
		return respond(c, http.StatusCreated, "Registration successful! Please pay at the counter.", map[string]interface{}{
			"member":   member,
			"redirect": "/thank-you",
		})
	}

	session, err := h.payments.CreateSession(ctx, member)
	if err != nil {
		// Member exists but payment setup failed; staff reconcile manually.
		log.Printf("payment session creation failed for member %d: %v", member.ID, err)
		return respond(c, http.StatusCreated,
			"Registration succeeded but payment setup failed. Please contact the gym to complete payment.",
			map[string]interface{}{
				"member":   member,
				"redirect": "/thank-you",
			})
	}

	return respond(c, http.StatusCreated, "Registration successful! Complete your payment.", map[string]interface{}{
		"member":   member,
		"payment":  session,
		"redirect": "/payment/" + session.OrderID,
	})
}

// VerifyRenewalToken resolves a renewal link to the member it identifies.
func (h *PublicHandler) VerifyRenewalToken(c echo.Context) error {
	memberID, err := h.tokens.VerifyRenewalToken(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired renewal link")
	}

	member, err := h.members.ByID(c.Request().Context(), memberID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Member not found")
	}

	now := time.Now()
	daysRemaining := int(member.EndDate.Sub(now).Hours() / 24)
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	return respond(c, http.StatusOK, "", map[string]interface{}{
		"userId":             member.ID,
		"name":               member.Name,
		"email":              member.Email,
		"phone":              member.Phone,
		"photo":              member.Photo,
		"plan":               member.Plan,
		"startDate":          member.StartDate,
		"endDate":            member.EndDate,
		"daysRemaining":      daysRemaining,
		"subscriptionStatus": member.SubscriptionStatusAt(now),
		"paymentStatus":      member.PaymentStatus,
	})
}

// Renew submits a renewal request against a tokenized link. Online renewals
// also provision a payment session; cash renewals wait for admin approval.
func (h *PublicHandler) Renew(c echo.Context) error {
	memberID, err := h.tokens.VerifyRenewalToken(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired renewal link")
	}

	var req RenewalSubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, middleware.APIError{
			Status:  "error",
			Message: "Please fix the errors in the form",
			Errors:  validationErrors(err),
		})
	}

	plan, _ := models.ParsePlan(req.Plan)
	method, _ := models.ParsePaymentMethod(req.PaymentMethod)

	ctx := c.Request().Context()
	member, err := h.members.ByID(ctx, memberID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Member not found")
	}

	renewal := &models.RenewalRequest{
		MemberID:      member.ID,
		Plan:          plan,
		PaymentMethod: method,
		Amount:        plan.Price(),
		Status:        models.RenewalPending,
	}
	if err := h.members.CreateRenewal(ctx, renewal); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to submit renewal request")
	}

	if method == models.PaymentMethodCash {
		return respond(c, http.StatusCreated,
			"Renewal request submitted. Please wait for admin approval.",
			map[string]interface{}{
				"renewal":  renewal,
				"redirect": "/renewal-pending",
			})
	}

	// Project the requested plan onto the session amount without touching
	// the stored member until the request is approved.
	candidate := *member
	candidate.Plan = plan
	session, err := h.payments.CreateRenewalSession(ctx, &candidate, renewal.ID)
	if err != nil {
		log.Printf("payment session creation failed for renewal %d: %v", renewal.ID, err)
		return respond(c, http.StatusCreated,
			"Renewal recorded but payment setup failed. Please contact the gym to complete payment.",
			map[string]interface{}{
				"renewal":  renewal,
				"redirect": "/renewal-pending",
			})
	}

	return respond(c, http.StatusCreated, "Renewal request submitted. Complete your payment.", map[string]interface{}{
		"renewal":  renewal,
		"payment":  session,
		"redirect": "/payment/" + session.OrderID,
	})
}

