// internal/auth/auth.go
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer      = "sheild-gateway"
	tokenCookie = "token"
	bcryptCost  = 12
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Config holds authentication configuration
type Config struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
	APIKeys       []string      `mapstructure:"api_keys"`
	Users         []User        `mapstructure:"users"`
}

type User struct {
	Username     string `mapstructure:"username" json:"username"`
	Name         string `mapstructure:"name" json:"name,omitempty"`
	PasswordHash string `mapstructure:"password_hash" json:"-"`
	Role         string `mapstructure:"role" json:"role"`
}

// AuthManager handles authentication and authorization
type AuthManager struct {
	config Config
	now    func() time.Time
}

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthManager(config Config) *AuthManager {
	if config.JWTExpiration <= 0 {
		config.JWTExpiration = 7 * 24 * time.Hour
	}
	return &AuthManager{config: config, now: time.Now}
}

// GenerateJWT creates a signed HS256 token for a user
func (am *AuthManager) GenerateJWT(username, role string) (string, time.Time, error) {
	now := am.now()
	expires := now.Add(am.config.JWTExpiration)
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(am.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateJWT validates the token signature, algorithm, issuer and expiry
func (am *AuthManager) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(am.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(am.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAPIKey checks if the provided API key is valid
func (am *AuthManager) ValidateAPIKey(apiKey string) bool {
	valid := false
	for _, key := range am.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			valid = true
		}
	}
	return valid
}

// AuthenticateUser checks a username and password against the configured users.
// Unknown users and wrong passwords yield the same error.
func (am *AuthManager) AuthenticateUser(username, password string) (*User, error) {
	for i := range am.config.Users {
		user := am.config.Users[i]
		if user.Username != username {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidCredentials
		}
		return &user, nil
	}
	return nil, ErrInvalidCredentials
}

// HashPassword creates a bcrypt hash from a password
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(b), err
}

type ctxKey struct{}

// WithClaims stores validated claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// ClaimsFrom returns the claims injected by JWTMiddleware.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// bearerToken reads the token from the Authorization header, then the token cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// JWTMiddleware requires a valid token. When roles are given the token's
// role must be one of them.
func (am *AuthManager) JWTMiddleware(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			claims, err := am.ValidateJWT(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if len(roles) > 0 && !contains(roles, claims.Role) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// APIKeyMiddleware guards device ingestion with the X-API-Key header.
func (am *AuthManager) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !am.ValidateAPIKey(apiKey) {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
