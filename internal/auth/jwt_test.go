package auth

import (
	"testing"
	"time"

	"comms-platform/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "unit-test-secret",
		JWTIssuer:      "comms-platform",
		JWTAudience:    "ops",
		AccessTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("manager init failed: %v", err)
	}
	return m
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m := testManager(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, err := m.Issue(now, "u1", "comp-1", RoleOperator)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.UserID != "u1" || claims.CompanyID != "comp-1" || claims.Role != RoleOperator {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := testManager(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, err := m.Issue(now, "u1", "comp-1", RoleOperator)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := m.Verify(tok, now.Add(2*time.Hour)); err == nil {
		t.Fatalf("expected expiry rejection")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := testManager(t)
	other, err := NewManager(config.AuthConfig{JWTSecret: "different", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager init failed: %v", err)
	}

	now := time.Now()
	tok, err := other.Issue(now, "u1", "comp-1", RoleOperator)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestIssueRejectsIncompleteIdentity(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	if _, err := m.Issue(now, "", "comp-1", RoleOperator); err == nil {
		t.Fatalf("expected rejection without user")
	}
	if _, err := m.Issue(now, "u1", "", RoleOperator); err == nil {
		t.Fatalf("expected rejection without company")
	}
	if _, err := m.Issue(now, "u1", "comp-1", ""); err == nil {
		t.Fatalf("expected rejection without role")
	}
}
