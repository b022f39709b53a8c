package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseTokenCapabilities(t *testing.T) {
	token := signToken(t, Claims{
		Name:          "Alice",
		AdminAccounts: []string{"acct-1", "acct-2"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	caps, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if caps.UserID != "user-a" || caps.Name != "Alice" {
		t.Fatalf("unexpected identity: %+v", caps)
	}
	if !caps.CanAdminister("acct-1") || !caps.CanAdminister("acct-2") {
		t.Fatalf("expected admin capability")
	}
	if caps.CanAdminister("acct-3") {
		t.Fatalf("unexpected capability for acct-3")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	if _, err := ParseToken(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-a"},
	})
	if _, err := ParseToken(token, []byte("other")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRequiresSubject(t *testing.T) {
	token := signToken(t, Claims{Name: "NoSubject"})
	if _, err := ParseToken(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
