package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestSecret is the shared HMAC secret used by test servers.
const TestSecret = "office-test-secret-0123456789abcdef"

// TokenSpec describes a token to mint. Zero fields take sensible defaults:
// Secret defaults to TestSecret, Method to HS256, ExpiresAt to one hour from now,
// and ID to a random UUID. Bare drops jti and iat, leaving only the claims set
// explicitly plus exp.
type TokenSpec struct {
	UserID    string
	AccountID string
	Name      string
	Subject   string
	Issuer    string
	Audience  string
	ID        string
	ExpiresAt time.Time
	NotBefore time.Time
	NoExpiry  bool
	Bare      bool
	Secret    string
	Method    jwt.SigningMethod
}

// SignToken mints a signed identity token the way the authentication service does.
//
// Postcondition: Returns a compact JWT or fails the test.
func SignToken(t testing.TB, spec TokenSpec) string {
	t.Helper()

	claims := jwt.MapClaims{}
	if spec.UserID != "" {
		claims["userId"] = spec.UserID
	}
	if spec.AccountID != "" {
		claims["_id"] = spec.AccountID
	}
	if spec.Name != "" {
		claims["name"] = spec.Name
	}
	if spec.Subject != "" {
		claims["sub"] = spec.Subject
	}
	if spec.Issuer != "" {
		claims["iss"] = spec.Issuer
	}
	if spec.Audience != "" {
		claims["aud"] = spec.Audience
	}
	if spec.ID == "" && !spec.Bare {
		spec.ID = uuid.NewString()
	}
	if spec.ID != "" {
		claims["jti"] = spec.ID
	}
	if !spec.NoExpiry {
		if spec.ExpiresAt.IsZero() {
			spec.ExpiresAt = time.Now().Add(time.Hour)
		}
		claims["exp"] = spec.ExpiresAt.Unix()
	}
	if !spec.NotBefore.IsZero() {
		claims["nbf"] = spec.NotBefore.Unix()
	}
	if !spec.Bare {
		claims["iat"] = time.Now().Unix()
	}

	secret := spec.Secret
	if secret == "" {
		secret = TestSecret
	}
	method := spec.Method
	if method == nil {
		method = jwt.SigningMethodHS256
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}
