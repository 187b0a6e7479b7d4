package services

import (
	"fmt"
	"net/smtp"
	"os"

	"gymdesk/internal/models"
)

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
	appURL   string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASS"),
		from:     os.Getenv("EMAIL_FROM"),
		appURL:   getEnv("APP_URL", "http://localhost:8080"),
	}
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	message := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", to[0], subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, to, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// SendWelcome confirms a successful registration.
func (s *EmailService) SendWelcome(m *models.Member) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nWelcome to the gym! Your %s membership runs from %s to %s.\n",
		m.Name, m.Plan.Name(),
		m.StartDate.Format("02 Jan 2006"), m.EndDate.Format("02 Jan 2006"))
	return s.SendEmail([]string{m.Email}, "Welcome to the gym", body)
}

// SendPaymentConfirmed notifies a member that their payment settled. The
// order id is empty for cash payments approved at the counter.
func (s *EmailService) SendPaymentConfirmed(m *models.Member, orderID string) error {
	ref := ""
	if orderID != "" {
		ref = fmt.Sprintf(" (order %s)", orderID)
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nYour payment of INR %d for the %s plan is confirmed%s.\nYour membership is active until %s.\n",
		m.Name, m.Plan.Price(), m.Plan.Name(), ref, m.EndDate.Format("02 Jan 2006"))
	return s.SendEmail([]string{m.Email}, "Payment confirmed", body)
}

// SendExpiryNotice reminds a member to renew, with a tokenized renewal link.
func (s *EmailService) SendExpiryNotice(m *models.Member, renewalToken string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s membership ended on %s. Renew here:\n%s/renew-membership/%s\n",
		m.Name, m.Plan.Name(), m.EndDate.Format("02 Jan 2006"), s.appURL, renewalToken)
	return s.SendEmail([]string{m.Email}, "Your membership has expired", body)
}

// SendPasswordReset mails an admin a reset link.
func (s *EmailService) SendPasswordReset(email, resetToken string) error {
	body := fmt.Sprintf(
		"A password reset was requested for this account.\n\nReset here:\n%s/admin/reset-password/%s\n\nIf you did not request this, ignore this email.\n",
		s.appURL, resetToken)
	return s.SendEmail([]string{email}, "Password reset", body)
}
