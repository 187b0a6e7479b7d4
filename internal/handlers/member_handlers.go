package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymdesk/internal/middleware"
	"gymdesk/internal/models"
	"gymdesk/internal/services"
)

// MemberHandler is the admin-facing member management surface.
type MemberHandler struct {
	db        *gorm.DB
	members   *services.MemberService
	tokens    *services.TokenService
	email     *services.EmailService
	validate  *validator.Validate
	uploadDir string
}

func NewMemberHandler(db *gorm.DB, members *services.MemberService, tokens *services.TokenService, email *services.EmailService, uploadDir string) *MemberHandler {
	return &MemberHandler{
		db:        db,
		members:   members,
		tokens:    tokens,
		email:     email,
		validate:  validator.New(),
		uploadDir: uploadDir,
	}
}

// List returns members for the dashboard, scoped by the tab filter.
//
// Filters: all, pending (unconfirmed payment), expired (end date passed),
// online (online payment method), or a plan value to bucket by plan.
func (h *MemberHandler) List(c echo.Context) error {
	filter := c.QueryParam("filter")
	query := h.db.WithContext(c.Request().Context()).Model(&models.Member{})

	switch filter {
	case "", "all":
	case "pending":
		query = query.Where("payment_status = ?", models.PaymentStatusPending)
	case "expired":
		query = query.Where("end_date < ?", time.Now())
	case "online":
		query = query.Where("payment_method = ?", models.PaymentMethodOnline)
	default:
		plan, err := models.ParsePlan(filter)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Unknown member filter")
		}
		query = query.Where("plan = ?", plan)
	}

	if search := c.QueryParam("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name ILIKE ? OR email ILIKE ? OR phone LIKE ?", like, like, like)
	}

	var members []models.Member
	if err := query.Order("created_at DESC").Find(&members).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch members")
	}

	now := time.Now()
	out := make([]map[string]interface{}, 0, len(members))
	for _, m := range members {
		out = append(out, memberView(m, now))
	}
	return respond(c, http.StatusOK, "", out)
}

// Get returns a single member with derived subscription state.
func (h *MemberHandler) Get(c echo.Context) error {
	member, err := h.memberFromParam(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", memberView(*member, time.Now()))
}

// ApprovePayment confirms a pending cash payment for a member.
func (h *MemberHandler) ApprovePayment(c echo.Context) error {
	member, err := h.memberFromParam(c)
	if err != nil {
		return err
	}

	if member.PaymentStatus == models.PaymentStatusConfirmed {
		return respond(c, http.StatusOK, "Payment already confirmed", memberView(*member, time.Now()))
	}

	if err := h.members.ConfirmPayment(c.Request().Context(), member.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to approve payment")
	}
	member.PaymentStatus = models.PaymentStatusConfirmed

	if h.email != nil {
		if err := h.email.SendPaymentConfirmed(member, ""); err != nil {
			log.Printf("payment confirmation email failed for member %d: %v", member.ID, err)
		}
	}

	return respond(c, http.StatusOK, "Payment approved", memberView(*member, time.Now()))
}

type memberUpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=3"`
	Email *string `json:"email" validate:"omitempty,email"`
	Phone *string `json:"phone" validate:"omitempty,len=10,number"`
	Plan  *string `json:"plan" validate:"omitempty,oneof=1month 2month 3month 6month yearly"`
}

// Update edits member details. A plan change recomputes the end date from the
// current start date.
func (h *MemberHandler) Update(c echo.Context) error {
	member, err := h.memberFromParam(c)
	if err != nil {
		return err
	}

	var req memberUpdateRequest
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

	if req.Name != nil {
		member.Name = *req.Name
	}
	if req.Email != nil {
		member.Email = *req.Email
	}
	if req.Phone != nil {
		member.Phone = *req.Phone
	}
	if req.Plan != nil {
		plan, _ := models.ParsePlan(*req.Plan)
		member.Plan = plan
		member.EndDate = plan.EndDate(member.StartDate)
	}

	if err := h.db.WithContext(c.Request().Context()).Save(member).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update member")
	}

	return respond(c, http.StatusOK, "Member updated", memberView(*member, time.Now()))
}

// UpdatePhoto replaces a member's photo. Admin edits get a larger size
// ceiling than the public registration form.
func (h *MemberHandler) UpdatePhoto(c echo.Context) error {
	member, err := h.memberFromParam(c)
	if err != nil {
		return err
	}

	photo, err := c.FormFile("photo")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Please upload a photo")
	}

	path, err := savePhoto(h.uploadDir, photo, adminPhotoMaxBytes)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	member.Photo = path
	if err := h.db.WithContext(c.Request().Context()).Model(member).Update("photo", path).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update photo")
	}

	return respond(c, http.StatusOK, "Photo updated", memberView(*member, time.Now()))
}

// Delete soft-deletes a member record.
func (h *MemberHandler) Delete(c echo.Context) error {
	member, err := h.memberFromParam(c)
	if err != nil {
		return err
	}

	if err := h.db.WithContext(c.Request().Context()).Delete(member).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete member")
	}
	return respond(c, http.StatusOK, "Member deleted", nil)
}

// NotifyExpired emails an expired member a tokenized renewal link.
func (h *MemberHandler) NotifyExpired(c echo.Context) error {
	member, err := h.memberFromParam(c)
	if err != nil {
		return err
	}

	if !member.Expired(time.Now()) {
		return echo.NewHTTPError(http.StatusBadRequest, "Membership has not expired yet")
	}

	token, err := h.tokens.IssueRenewalToken(member.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create renewal link")
	}
	if err := h.email.SendExpiryNotice(member, token); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to send renewal email")
	}

	return respond(c, http.StatusOK, "Renewal notification sent", nil)
}

// ListRenewals returns renewal requests, newest first, optionally by status.
func (h *MemberHandler) ListRenewals(c echo.Context) error {
	query := h.db.WithContext(c.Request().Context()).Model(&models.RenewalRequest{}).Preload("Member")
	switch status := c.QueryParam("status"); status {
	case "", "all":
	case string(models.RenewalPending), string(models.RenewalApproved), string(models.RenewalRejected):
		query = query.Where("status = ?", status)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown renewal status")
	}

	var renewals []models.RenewalRequest
	if err := query.Order("created_at DESC").Find(&renewals).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch renewal requests")
	}
	return respond(c, http.StatusOK, "", renewals)
}

// ApproveRenewal applies a pending renewal to the member's record.
func (h *MemberHandler) ApproveRenewal(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid renewal id")
	}

	if err := h.members.ApproveRenewal(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Renewal request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to approve renewal")
	}
	return respond(c, http.StatusOK, "Renewal approved", nil)
}

// RejectRenewal closes a pending renewal without applying it.
func (h *MemberHandler) RejectRenewal(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid renewal id")
	}

	if err := h.members.RejectRenewal(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Renewal request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to reject renewal")
	}
	return respond(c, http.StatusOK, "Renewal rejected", nil)
}

func (h *MemberHandler) memberFromParam(c echo.Context) (*models.Member, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid member id")
	}

	member, err := h.members.ByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "Member not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch member")
	}
	return member, nil
}

func memberView(m models.Member, now time.Time) map[string]interface{} {
	days := int(m.EndDate.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return map[string]interface{}{
		"id":                 m.ID,
		"name":               m.Name,
		"email":              m.Email,
		"phone":              m.Phone,
		"dob":                m.DOB,
		"photo":              m.Photo,
		"plan":               m.Plan,
		"planName":           m.Plan.Name(),
		"startDate":          m.StartDate,
		"endDate":            m.EndDate,
		"daysRemaining":      days,
		"paymentMethod":      m.PaymentMethod,
		"paymentStatus":      m.PaymentStatus,
		"subscriptionStatus": m.SubscriptionStatusAt(now),
		"createdAt":          m.CreatedAt,
	}
}
