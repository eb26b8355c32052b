package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/wer153/biosensor-api/internal/file"
)

// s3Event is one entry of an S3 event notification batch.
type s3Event struct {
	EventSource string `json:"eventSource"`
	EventName   string `json:"eventName"`
	S3          struct {
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// webhook ingests a batch of storage event notifications. Events are
// processed independently: a bad entry is logged and skipped, never
// failing the batch. The sender retries on non-2xx, so the response is
// 200 whenever the batch itself was parseable.
func (h *FileHandler) webhook(w http.ResponseWriter, r *http.Request) {
	var events []s3Event
	if err := decodeJSON(r, &events); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	for _, ev := range events {
		key := ev.S3.Object.Key
		if key == "" {
			h.log.WarnContext(r.Context(), "storage event without object key",
				slog.String("event", ev.EventName))
			continue
		}

		outcome := classifyEvent(ev.EventName)
		if err := h.files.HandleUploadEvent(r.Context(), key, ev.S3.Object.Size, outcome); err != nil {
			h.log.ErrorContext(r.Context(), "storage event not applied",
				slog.String("event", ev.EventName),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// classifyEvent maps an S3 event name to an upload outcome. Object
// creation confirms the upload; any other event for a pending key
// means the object will not arrive.
func classifyEvent(eventName string) file.EventOutcome {
	if strings.HasPrefix(eventName, "ObjectCreated") || strings.HasPrefix(eventName, "s3:ObjectCreated") {
		return file.OutcomeSuccess
	}
	return file.OutcomeFailure
}
