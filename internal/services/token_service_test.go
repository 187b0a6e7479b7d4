package services

import (
	"errors"
	"testing"
)

func TestTokenRoundTrips(t *testing.T) {
	svc := NewTokenService("test-secret")

	adminToken, err := svc.IssueAdminToken(42, "admin@example.com")
	if err != nil {
		t.Fatalf("IssueAdminToken() error: %v", err)
	}
	id, email, err := svc.VerifyAdminToken(adminToken)
	if err != nil {
		t.Fatalf("VerifyAdminToken() error: %v", err)
	}
	if id != 42 || email != "admin@example.com" {
		t.Errorf("admin token = (%d, %q); want (42, admin@example.com)", id, email)
	}

	renewalToken, err := svc.IssueRenewalToken(7)
	if err != nil {
		t.Fatalf("IssueRenewalToken() error: %v", err)
	}
	memberID, err := svc.VerifyRenewalToken(renewalToken)
	if err != nil {
		t.Fatalf("VerifyRenewalToken() error: %v", err)
	}
	if memberID != 7 {
		t.Errorf("renewal token member = %d; want 7", memberID)
	}

	resetToken, err := svc.IssueResetToken("admin@example.com")
	if err != nil {
		t.Fatalf("IssueResetToken() error: %v", err)
	}
	resetEmail, err := svc.VerifyResetToken(resetToken)
	if err != nil {
		t.Fatalf("VerifyResetToken() error: %v", err)
	}
	if resetEmail != "admin@example.com" {
		t.Errorf("reset token email = %q", resetEmail)
	}
}

func TestTokenScopesAreNotInterchangeable(t *testing.T) {
	svc := NewTokenService("test-secret")

	renewalToken, err := svc.IssueRenewalToken(7)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.VerifyAdminToken(renewalToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("renewal token accepted as admin token: %v", err)
	}

	adminToken, err := svc.IssueAdminToken(1, "admin@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.VerifyRenewalToken(adminToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("admin token accepted as renewal token: %v", err)
	}
	if _, err := svc.VerifyResetToken(adminToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("admin token accepted as reset token: %v", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issued, err := NewTokenService("secret-a").IssueAdminToken(1, "admin@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewTokenService("secret-b").VerifyAdminToken(issued); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token verified across secrets: %v", err)
	}
}

func TestTokenGarbage(t *testing.T) {
	svc := NewTokenService("test-secret")
	for _, bad := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, _, err := svc.VerifyAdminToken(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyAdminToken(%q) = %v; want ErrInvalidToken", bad, err)
		}
	}
}
