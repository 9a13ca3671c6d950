package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHandoffRoundTrip(t *testing.T) {
	secret := "test-secret"

	signed, err := SignHandoff(secret, "invite-token-abc")
	if err != nil {
		t.Fatalf("SignHandoff: %v", err)
	}

	got, err := ParseHandoff(secret, signed)
	if err != nil {
		t.Fatalf("ParseHandoff: %v", err)
	}
	if got != "invite-token-abc" {
		t.Errorf("got %q, want %q", got, "invite-token-abc")
	}
}

func TestHandoffWrongSecret(t *testing.T) {
	signed, err := SignHandoff("secret-a", "invite-token-abc")
	if err != nil {
		t.Fatalf("SignHandoff: %v", err)
	}

	if _, err := ParseHandoff("secret-b", signed); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestHandoffExpired(t *testing.T) {
	secret := "test-secret"

	claims := &HandoffClaims{
		InviteToken: "invite-token-abc",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-HandoffTTL - time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseHandoff(secret, signed); err == nil {
		t.Error("expected error for expired handoff")
	}
}

func TestHandoffMalformed(t *testing.T) {
	if _, err := ParseHandoff("test-secret", "not-a-jwt"); err == nil {
		t.Error("expected error for malformed handoff")
	}
}
