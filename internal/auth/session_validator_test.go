package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "lantern_admin"
)

func signTestToken(t *testing.T, secret string, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newTestValidator(t *testing.T, clockNow time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func moderatorClaims(issuedAt time.Time, ttl time.Duration) SessionClaims {
	return SessionClaims{
		Role: RoleModerator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "moderator",
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	signed := signTestToken(t, testSessionSigningSecret, moderatorClaims(clockNow.Add(-time.Minute), time.Hour))
	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.Role != RoleModerator {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
}

func TestSessionValidatorValidateTokenExpired(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	signed := signTestToken(t, testSessionSigningSecret, moderatorClaims(clockNow.Add(-2*time.Hour), time.Hour))
	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionValidatorRejectsForeignTokens(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	wrongSecret := signTestToken(t, "other-secret", moderatorClaims(clockNow, time.Hour))
	if _, err := validator.ValidateToken(wrongSecret); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	otherIssuer := moderatorClaims(clockNow, time.Hour)
	otherIssuer.Issuer = "someone-else"
	if _, err := validator.ValidateToken(signTestToken(t, testSessionSigningSecret, otherIssuer)); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token for foreign issuer, got %v", err)
	}

	noRole := moderatorClaims(clockNow, time.Hour)
	noRole.Role = "viewer"
	if _, err := validator.ValidateToken(signTestToken(t, testSessionSigningSecret, noRole)); !errors.Is(err, ErrForbiddenSessionRole) {
		t.Fatalf("expected forbidden role, got %v", err)
	}

	noExpiry := moderatorClaims(clockNow, time.Hour)
	noExpiry.ExpiresAt = nil
	if _, err := validator.ValidateToken(signTestToken(t, testSessionSigningSecret, noExpiry)); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected tokens without expiry to be rejected, got %v", err)
	}
}

func TestSessionValidatorValidateRequestUsesCookie(t *testing.T) {
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	signed := signTestToken(t, testSessionSigningSecret, moderatorClaims(time.Now().Add(-time.Minute), time.Hour))
	request := httptest.NewRequest(http.MethodGet, "/admin/stories", http.NoBody)
	request.AddCookie(&http.Cookie{
		Name:  testSessionCookieName,
		Value: signed,
	})

	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.Subject != "moderator" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}

	bare := httptest.NewRequest(http.MethodGet, "/admin/stories", http.NoBody)
	if _, err := validator.ValidateRequest(bare); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}
