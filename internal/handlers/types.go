package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// APIResponse is the success envelope the SPA consumes.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, APIResponse{Status: "success", Message: message, Data: data})
}

// RegisterRequest carries the public registration form fields.
type RegisterRequest struct {
	Name          string `form:"name" validate:"required,min=3"`
	Email         string `form:"email" validate:"required,email"`
	Phone         string `form:"phone" validate:"required,len=10,number"`
	DOB           string `form:"dob" validate:"required,datetime=2006-01-02"`
	Plan          string `form:"plan" validate:"required,oneof=1month 2month 3month 6month yearly"`
	PaymentMethod string `form:"paymentMethod" validate:"required,oneof=cash online"`
}

// RenewalSubmitRequest carries a renewal submission against a tokenized link.
type RenewalSubmitRequest struct {
	Plan          string `json:"plan" validate:"required,oneof=1month 2month 3month 6month yearly"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=cash online"`
}

// LoginRequest carries admin credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// validationErrors flattens validator output into a field -> message map so
// every failing field is surfaced at once rather than failing fast.
func validationErrors(err error) map[string]string {
	out := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["form"] = "Invalid form data"
		return out
	}
	for _, fe := range verrs {
		out[fieldName(fe)] = fieldMessage(fe)
	}
	return out
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Name":
		return "name"
	case "Email":
		return "email"
	case "Phone":
		return "phone"
	case "DOB":
		return "dob"
	case "Plan":
		return "plan"
	case "PaymentMethod":
		return "paymentMethod"
	case "Password":
		return "password"
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Please enter a valid email address"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "len", "number":
		return "Please enter a valid 10-digit phone number"
	case "datetime":
		return "Please enter a valid date (YYYY-MM-DD)"
	case "oneof":
		return "Invalid selection"
	}
	return "Invalid value"
}

// photo upload limits
const (
	registerPhotoMaxBytes = 2 << 20  // 2MB on the public form
	adminPhotoMaxBytes    = 10 << 20 // 10MB on admin edits
)

var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// savePhoto validates and stores an uploaded photo under uploadDir with a
// generated name, returning the public path.
func savePhoto(uploadDir string, file *multipart.FileHeader, maxBytes int64) (string, error) {
	ext, err := checkPhoto(file, maxBytes)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(uploadDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}

	return "/uploads/" + name, nil
}

// checkPhoto validates the upload size and sniffs the content type against
// the allowed image set, returning the matching file extension.
func checkPhoto(file *multipart.FileHeader, maxBytes int64) (string, error) {
	if file.Size > maxBytes {
		return "", fmt.Errorf("photo must be smaller than %dMB", maxBytes>>20)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("could not read photo")
	}
	defer src.Close()

	head := make([]byte, 512)
	n, _ := src.Read(head)
	contentType := http.DetectContentType(head[:n])

	ext, ok := allowedPhotoTypes[contentType]
	if !ok {
		return "", fmt.Errorf("photo must be a JPEG or PNG image")
	}
	return ext, nil
}
