package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/internal/auth"
	"github.com/wer153/biosensor-api/internal/user"
)

const minPasswordLength = 8

// UserHandler serves registration and profile management.
type UserHandler struct {
	users UserService
	authn func(http.Handler) http.Handler
	log   *slog.Logger
}

// NewUserHandler creates a UserHandler. authn is the bearer-token
// middleware protecting the /users/me endpoints.
func NewUserHandler(users UserService, authn func(http.Handler) http.Handler, log *slog.Logger) *UserHandler {
	return &UserHandler{users: users, authn: authn, log: log}
}

// Routes mounts the user endpoints. Registration is open; everything
// under /users/me requires a valid access token.
func (h *UserHandler) Routes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.register)
		r.Route("/me", func(r chi.Router) {
			r.Use(h.authn)
			r.Get("/", h.me)
			r.Patch("/", h.updateName)
			r.Delete("/", h.deleteAccount)
		})
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Name string `json:"name"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *user.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (h *UserHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := validateRegistration(req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	u, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (h *UserHandler) updateName(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, r, h.log, apperr.InvalidArgument("name is required"))
		return
	}

	u, err := h.users.UpdateName(r.Context(), userID, req.Name)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (h *UserHandler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	if err := h.users.Delete(r.Context(), userID); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func validateRegistration(req registerRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperr.InvalidArgument("name is required")
	}
	if !validEmail(req.Email) {
		return apperr.InvalidArgument("invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return apperr.InvalidArgument("password must be at least 8 characters")
	}
	return nil
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t")
}
