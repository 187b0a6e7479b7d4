package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIError is the JSON error envelope every handler failure renders as.
type APIError struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// CustomErrorHandler creates a centralized JSON error handler for Echo.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := ""
	var fieldErrors map[string]string

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code

		switch m := he.Message.(type) {
		case string:
			message = m
		case APIError:
			message = m.Message
			fieldErrors = m.Errors
		case *APIError:
			message = m.Message
			fieldErrors = m.Errors
		}
	}

	if message == "" {
		switch code {
		case http.StatusNotFound:
			message = "The requested resource doesn't exist."
		case http.StatusForbidden:
			message = "You don't have permission to access this resource."
		case http.StatusUnauthorized:
			message = "Please log in to continue."
		case http.StatusBadRequest:
			message = "The request could not be processed."
		case http.StatusTooManyRequests:
			message = "Too many requests. Please slow down."
		default:
			message = "Something went wrong. Please try again later."
		}
	}

	c.Logger().Error(err)

	resp := APIError{
		Status:  "error",
		Message: message,
		Errors:  fieldErrors,
	}
	if jsonErr := c.JSON(code, resp); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
