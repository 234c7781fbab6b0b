package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chance-winner-hub/internal/services"
)

func TestJWTRoundTrip(t *testing.T) {
	s := services.NewJWTService("test-secret", time.Hour)

	token, err := s.GenerateToken("alice", services.RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.UserID != "alice" || !claims.IsAdmin() || claims.SessionID == "" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestJWTRejectsBadTokens(t *testing.T) {
	s := services.NewJWTService("test-secret", time.Hour)

	other, _ := services.NewJWTService("other-secret", time.Hour).GenerateToken("alice", "")
	expired, _ := services.NewJWTService("test-secret", time.Nanosecond).GenerateToken("alice", "")
	time.Sleep(time.Millisecond)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &services.Claims{UserID: "alice"}).SignedString([]byte("test-secret"))
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS384, &services.Claims{
		UserID:           "alice",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("test-secret"))

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": other,
		"expired":      expired,
		"no expiry":    noExpiry,
		"wrong alg":    wrongAlg,
	} {
		if _, err := s.ValidateToken(token); !errors.Is(err, services.ErrAuthenticationRequired) {
			t.Errorf("%s: expected ErrAuthenticationRequired, got %v", name, err)
		}
	}
}
