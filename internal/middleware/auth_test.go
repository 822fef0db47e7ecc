package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/middleware"
)

const testSecret = "test-secret"

func protected(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.AuthConfig{JWTSecret: testSecret, UserClaim: "user_id"}
	return middleware.Auth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(userID))
	}))
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	token, err := middleware.SignToken([]byte(testSecret), "user_id", "42", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/chat/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
}

func TestAuthAcceptsNumericClaimAndQueryToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 7,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/ws?token="+token, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Body.String())
}

func TestAuthRejects(t *testing.T) {
	expired, err := middleware.SignToken([]byte(testSecret), "user_id", "42", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := middleware.SignToken([]byte("other"), "user_id", "42", time.Hour)
	require.NoError(t, err)
	noUser, err := middleware.SignToken([]byte(testSecret), "sub", "42", time.Hour)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "42"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer "},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong key", header: "Bearer " + wrongKey},
		{name: "missing user claim", header: "Bearer " + noUser},
		{name: "missing expiry", header: "Bearer " + noExp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/chat/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected(t).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
}
