package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"gymdesk/internal/middleware"
	"gymdesk/internal/models"
	"gymdesk/internal/services"
)

// AuthHandler owns admin authentication: login, token verification, and the
// password reset flow.
type AuthHandler struct {
	db       *gorm.DB
	tokens   *services.TokenService
	email    *services.EmailService
	validate *validator.Validate
}

func NewAuthHandler(db *gorm.DB, tokens *services.TokenService, email *services.EmailService) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens, email: email, validate: validator.New()}
}

// Login exchanges admin credentials for a bearer token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
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

	var admin models.Admin
	err := h.db.WithContext(c.Request().Context()).Where("email = ?", req.Email).First(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Login failed. Please try again.")
	}
	if !admin.CheckPassword(req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	token, err := h.tokens.IssueAdminToken(admin.ID, admin.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Login failed. Please try again.")
	}

	return respond(c, http.StatusOK, "Login successful", map[string]interface{}{
		"token": token,
		"admin": map[string]interface{}{
			"id":    admin.ID,
			"email": admin.Email,
		},
	})
}

// Verify confirms the presented bearer token is still valid. The auth
// middleware has already rejected bad tokens by the time this runs.
func (h *AuthHandler) Verify(c echo.Context) error {
	return respond(c, http.StatusOK, "", map[string]interface{}{
		"id":    c.Get("adminID"),
		"email": c.Get("adminEmail"),
	})
}

// ForgotPassword mails a reset link. The response is identical whether or not
// the email matches an account.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "A valid email is required")
	}

	var admin models.Admin
	err := h.db.WithContext(c.Request().Context()).Where("email = ?", req.Email).First(&admin).Error
	if err == nil {
		token, issueErr := h.tokens.IssueResetToken(admin.Email)
		if issueErr == nil {
			if mailErr := h.email.SendPasswordReset(admin.Email, token); mailErr != nil {
				log.Printf("password reset email failed for %s: %v", admin.Email, mailErr)
			}
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process request")
	}

	return respond(c, http.StatusOK, "If that email has an account, a reset link has been sent.", nil)
}

// ResetPassword sets a new password against a valid reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	email, err := h.tokens.VerifyResetToken(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired reset link")
	}

	var req struct {
		Password string `json:"password" validate:"required,min=8"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Password must be at least 8 characters")
	}

	var admin models.Admin
	if err := h.db.WithContext(c.Request().Context()).Where("email = ?", email).First(&admin).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Account not found")
	}
	if err := admin.SetPassword(req.Password); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to reset password")
	}
	if err := h.db.WithContext(c.Request().Context()).Save(&admin).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to reset password")
	}

	return respond(c, http.StatusOK, "Password updated. Please log in.", nil)
}
