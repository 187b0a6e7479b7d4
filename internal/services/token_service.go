package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token scopes keep the three token kinds from being interchangeable: a
// renewal link must not grant admin access.
const (
	scopeAdmin   = "admin"
	scopeRenewal = "renewal"
	scopeReset   = "reset"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService issues and verifies the bearer, renewal-link and
// password-reset tokens.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

type tokenClaims struct {
	Scope string `json:"scope"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (s *TokenService) issue(scope, subject, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Scope: scope,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parse(tokenString, wantScope string) (*tokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || claims.Scope != wantScope {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueAdminToken returns a bearer token for the dashboard API.
func (s *TokenService) IssueAdminToken(adminID uint, email string) (string, error) {
	return s.issue(scopeAdmin, strconv.FormatUint(uint64(adminID), 10), email, 5*24*time.Hour)
}

// VerifyAdminToken returns the admin id and email for a valid bearer token.
func (s *TokenService) VerifyAdminToken(tokenString string) (uint, string, error) {
	claims, err := s.parse(tokenString, scopeAdmin)
	if err != nil {
		return 0, "", err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return 0, "", ErrInvalidToken
	}
	return uint(id), claims.Email, nil
}

// IssueRenewalToken returns a member-identifying token embedded in renewal
// links mailed to expiring members.
func (s *TokenService) IssueRenewalToken(memberID uint) (string, error) {
	return s.issue(scopeRenewal, strconv.FormatUint(uint64(memberID), 10), "", 7*24*time.Hour)
}

// VerifyRenewalToken returns the member id a renewal token identifies.
func (s *TokenService) VerifyRenewalToken(tokenString string) (uint, error) {
	claims, err := s.parse(tokenString, scopeRenewal)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// IssueResetToken returns a short-lived password reset token.
func (s *TokenService) IssueResetToken(email string) (string, error) {
	return s.issue(scopeReset, email, email, time.Hour)
}

// VerifyResetToken returns the email a reset token was issued for.
func (s *TokenService) VerifyResetToken(tokenString string) (string, error) {
	claims, err := s.parse(tokenString, scopeReset)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
