package api

import (
	"errors"
	"net/http"
	"strings"

	"sheild-gateway/internal/auth"

	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin exchanges configured credentials for a JWT. The email field is
// accepted as the username.
func (h *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.TrimSpace(req.Email)
	}
	if username == "" || req.Password == "" {
		badRequest(w, "Missing fields")
		return
	}

	user, err := h.Auth.AuthenticateUser(username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.logger.Info("login failed", zap.String("username", username))
		unauthorized(w, "Invalid credentials")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	token, expires, err := h.Auth.GenerateJWT(user.Username, user.Role)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{
		"token":     token,
		"expiresAt": expires,
		"user":      user,
	})
}

// HandleMe returns the caller's identity from the token.
func (h *APIHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, found := auth.ClaimsFrom(r.Context())
	if !found {
		unauthorized(w, "Unauthorized")
		return
	}
	ok(w, map[string]any{"user": map[string]string{
		"username": claims.Username,
		"role":     claims.Role,
	}})
}
