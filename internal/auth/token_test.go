package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"taskhub/internal/lifecycle"
)

func TestIssueParseRoundTrip(t *testing.T) {
	s, err := NewSigner("secret")
	if err != nil {
		t.Fatal(err)
	}
	tok, err := s.Issue(lifecycle.Actor{UserID: "alice", TenantID: "acme", Role: lifecycle.RoleViewer}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := s.Parse(tok)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	actor := claims.Actor()
	if actor.UserID != "alice" || actor.TenantID != "acme" || actor.Role != lifecycle.RoleViewer {
		t.Errorf("actor = %+v", actor)
	}
}

func TestMissingRoleDefaultsToOwner(t *testing.T) {
	s, _ := NewSigner("secret")
	tok, err := s.Issue(lifecycle.Actor{UserID: "alice", TenantID: "acme"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s.Parse(tok)
	if err != nil {
		t.Fatal(err)
	}
	if got := claims.Actor().Role; got != lifecycle.RoleOwner {
		t.Errorf("role = %q, want owner", got)
	}
}

func TestParseRejects(t *testing.T) {
	s, _ := NewSigner("secret")
	other, _ := NewSigner("other")
	alice := lifecycle.Actor{UserID: "alice", TenantID: "acme"}

	wrongKey, _ := other.Issue(alice, time.Hour)

	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := s.Issue(alice, time.Hour)
	s.now = time.Now

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Tenant: "acme", RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	noTenant := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}})
	tenantless, _ := noTenant.SignedString([]byte("secret"))

	tests := map[string]string{
		"garbage":   "not-a-token",
		"wrong key": wrongKey,
		"expired":   expired,
		"alg none":  unsigned,
		"no tenant": tenantless,
	}
	for name, tok := range tests {
		if _, err := s.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestIssueNeedsIdentity(t *testing.T) {
	s, _ := NewSigner("secret")
	if _, err := s.Issue(lifecycle.Actor{UserID: "alice"}, time.Hour); err == nil {
		t.Error("expected error without tenant")
	}
	if _, err := NewSigner(""); err == nil {
		t.Error("expected error for empty secret")
	}
}
