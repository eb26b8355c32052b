package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/internal/user"
)

// UserService is the account service the auth and user handlers
// depend on.
type UserService interface {
	Register(ctx context.Context, name, email, password string) (*user.User, error)
	Login(ctx context.Context, email, password string) (*user.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*user.Credentials, error)
	Get(ctx context.Context, id string) (*user.User, error)
	UpdateName(ctx context.Context, id, name string) (*user.User, error)
	Delete(ctx context.Context, id string) error
}

// AuthHandler serves login and token refresh.
type AuthHandler struct {
	users UserService
	log   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(users UserService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, log: log}
}

// Routes mounts the auth endpoints. None of them require a token.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is returned by both login and refresh. Refresh rotates
// the refresh token, so the new one is always included.
type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func newTokenResponse(creds *user.Credentials) tokenResponse {
	return tokenResponse{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    creds.AccessExpiresAt,
	}
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, r, h.log, apperr.InvalidArgument("email and password are required"))
		return
	}

	creds, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(creds))
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if req.RefreshToken == "" {
		respondError(w, r, h.log, apperr.InvalidArgument("refresh_token is required"))
		return
	}

	creds, err := h.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(creds))
}
