package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClaims string

func (c staticClaims) GetSubject() string { return string(c) }

// staticValidator accepts a fixed set of tokens.
type staticValidator map[string]string

func (v staticValidator) ValidateToken(token string) (SubjectGetter, error) {
	subject, ok := v[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return staticClaims(subject), nil
}

func protected(t *testing.T) http.Handler {
	t.Helper()
	validator := staticValidator{"good-token": "ops"}
	return AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := Subject(r)
		require.NoError(t, err)
		_, _ = w.Write([]byte(subject))
	}))
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid token", header: "Bearer good-token", status: http.StatusOK, body: "ops"},
		{name: "lowercase scheme", header: "bearer good-token", status: http.StatusOK, body: "ops"},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good-token", status: http.StatusUnauthorized},
		{name: "no token", header: "Bearer", status: http.StatusUnauthorized},
		{name: "extra parts", header: "Bearer good-token extra", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad-token", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected(t).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
				return
			}
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestSubject_Unauthenticated(t *testing.T) {
	_, err := Subject(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSubject)
}
