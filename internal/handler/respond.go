package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wer153/biosensor-api/internal/apperr"
)

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError renders err through the application error taxonomy.
// Unexpected errors are logged with their cause and rendered as an
// opaque internal error so provider details never reach clients.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if kind == apperr.KindInternal {
		log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		message = "internal server error"
	}

	writeJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Code:    string(kind),
		Message: message,
	})
}

// decodeJSON decodes the request body into v and rejects malformed or
// trailing input.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidArgument("invalid request body")
	}
	if dec.More() {
		return apperr.InvalidArgument("unexpected trailing data")
	}
	return nil
}
