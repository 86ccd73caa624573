package handler

import (
	"net/http"
	"time"

	"gptme-server/internal/domain"
	"gptme-server/internal/service"
	"gptme-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type CookieOptions struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	authService *service.AuthService
	validator   *validator.Validate
	cookie      CookieOptions
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, cookie CookieOptions, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator.New(),
		cookie:      cookie,
		logger:      logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	if _, err := h.authService.Register(r.Context(), &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Created(w, response.Response{
		Success: true,
		Message: "User registered successfully. Please login.",
	})
}

// Login returns the tokens in the body and also stores the access token in
// an HttpOnly cookie for browser clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	ttl := h.authService.AccessTokenTTL()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    loginResp.AccessToken,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	response.Success(w, loginResp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	tokenResp, err := h.authService.RefreshToken(r.Context(), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, tokenResp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	response.OK(w, "Logged out successfully")
}
