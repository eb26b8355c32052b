package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/internal/auth"
	"github.com/wer153/biosensor-api/pkg/health"
)

const (
	requestTimeout        = 30 * time.Second
	readinessCheckTimeout = 5 * time.Second
)

// RouterConfig carries everything the router needs.
type RouterConfig struct {
	Users  UserService
	Files  FileService
	Tokens *auth.TokenService
	Checks health.Checks
	CORS   CORSConfig
	Log    *slog.Logger
}

// NewRouter builds the HTTP API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(CORS(cfg.CORS))

	authn := auth.Middleware(cfg.Tokens, func(w http.ResponseWriter, r *http.Request, message string) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:   http.StatusText(http.StatusUnauthorized),
			Code:    string(apperr.KindUnauthorized),
			Message: message,
		})
	})

	NewAuthHandler(cfg.Users, cfg.Log).Routes(r)
	NewUserHandler(cfg.Users, authn, cfg.Log).Routes(r)
	NewFileHandler(cfg.Files, authn, cfg.Log).Routes(r)

	r.Get("/health", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(cfg.Checks, readinessCheckTimeout, cfg.Log))

	return r
}
