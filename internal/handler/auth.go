package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"market-escrow-api/internal/service"
	"market-escrow-api/pkg/apierror"
	"market-escrow-api/pkg/response"
)

// AuthHandler mints admin session tokens.
type AuthHandler struct {
	tokenService *service.TokenService
	loginKey     string
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(tokenService *service.TokenService, loginKey string) *AuthHandler {
	return &AuthHandler{tokenService: tokenService, loginKey: loginKey}
}

// LoginRequest is the body for admin login.
type LoginRequest struct {
	LoginKey string `json:"login_key"`
}

// Login handles POST /api/v1/admin/login: exchanges the static login key
// for a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if h.loginKey == "" || subtle.ConstantTimeCompare([]byte(req.LoginKey), []byte(h.loginKey)) != 1 {
		response.Error(w, apierror.Unauthorized("invalid login key"))
		return
	}

	token, err := h.tokenService.GenerateToken(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError("failed to create session"))
		return
	}

	response.OK(w, map[string]interface{}{
		"token":      token,
		"expires_in": int(service.TokenTTL.Seconds()),
	})
}
