package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"gymdesk/internal/services"
)

// RequireAuth returns a middleware that verifies admin bearer tokens and puts
// the admin identity on the request context.
func RequireAuth(tokens *services.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
			}

			adminID, email, err := tokens.VerifyAdminToken(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set("adminID", adminID)
			c.Set("adminEmail", email)

			return next(c)
		}
	}
}
