package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testManager(t *testing.T) *AuthManager {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthManager(Config{
		JWTSecret:     "test-secret",
		JWTExpiration: time.Hour,
		APIKeys:       []string{"device-key"},
		Users: []User{
			{Username: "ops@example.com", PasswordHash: string(hash), Role: "admin"},
			{Username: "viewer@example.com", PasswordHash: string(hash), Role: "viewer"},
		},
	})
}

func TestJWTRoundTrip(t *testing.T) {
	am := testManager(t)
	token, expires, err := am.GenerateJWT("ops@example.com", "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := am.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "ops@example.com", claims.Subject)
}

func TestValidateJWT_Rejects(t *testing.T) {
	am := testManager(t)

	other := NewAuthManager(Config{JWTSecret: "other-secret"})
	foreign, _, err := other.GenerateJWT("ops@example.com", "admin")
	require.NoError(t, err)
	_, err = am.ValidateJWT(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	am.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := am.GenerateJWT("ops@example.com", "admin")
	require.NoError(t, err)
	am.now = time.Now
	_, err = am.ValidateJWT(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = am.ValidateJWT(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateUser(t *testing.T) {
	am := testManager(t)

	u, err := am.AuthenticateUser("ops@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)

	_, err = am.AuthenticateUser("ops@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = am.AuthenticateUser("nobody@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestJWTMiddleware(t *testing.T) {
	am := testManager(t)
	adminToken, _, _ := am.GenerateJWT("ops@example.com", "admin")
	viewerToken, _, _ := am.GenerateJWT("viewer@example.com", "viewer")

	var seen *Claims
	h := am.JWTMiddleware("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+adminToken) }, http.StatusUnauthorized},
		{"wrong role", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+viewerToken) }, http.StatusForbidden},
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminToken) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: adminToken}) }, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "ops@example.com", seen.Username)
			} else {
				assert.JSONEq(t, `{"message":"`+http.StatusText(tt.status)+`"}`, rec.Body.String())
			}
		})
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	am := testManager(t)
	h := am.APIKeyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for key, status := range map[string]int{"": http.StatusUnauthorized, "bad": http.StatusUnauthorized, "device-key": http.StatusAccepted} {
		req := httptest.NewRequest(http.MethodPost, "/data", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, status, rec.Code, key)
	}
}
