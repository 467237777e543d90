package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-orchestrator/internal/config"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func setupTestJWTService(_ *testing.T, expirationHours int) *JWTService {
	return NewJWTService(&config.JWTConfig{Secret: testSecret, ExpirationHours: expirationHours})
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := setupTestJWTService(t, 24)

	token, err := service.GenerateToken("ops")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestJWTService_GenerateToken_EmptySubject(t *testing.T) {
	_, err := setupTestJWTService(t, 1).GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_Rejects(t *testing.T) {
	service := setupTestJWTService(t, 1)

	expired := setupTestJWTService(t, 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.GenerateToken("ops")
	require.NoError(t, err)

	otherKey := NewJWTService(&config.JWTConfig{Secret: "another-secret-that-is-long-enough", ExpirationHours: 1})
	forged, err := otherKey.GenerateToken("ops")
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &jwt.RegisteredClaims{
		Subject: "ops",
		Issuer:  tokenIssuer,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{name: "empty", token: "", message: "empty"},
		{name: "garbage", token: "not-a-token", message: "malformed"},
		{name: "expired", token: expiredToken, message: "expired"},
		{name: "wrong key", token: forged, message: "signature"},
		{name: "wrong issuer", token: wrongIssuer, message: "failed to parse"},
		{name: "unsigned", token: none, message: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := setupTestJWTService(t, 1)
	token, err := service.GenerateToken("ci")
	require.NoError(t, err)

	claims, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.GetSubject())
}
