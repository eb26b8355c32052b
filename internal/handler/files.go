package handler

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/internal/auth"
	"github.com/wer153/biosensor-api/internal/file"
)

// FileService is the file lifecycle service the file handlers depend on.
type FileService interface {
	RequestUpload(ctx context.Context, ownerID, filename, contentType string) (*file.UploadGrant, error)
	HandleUploadEvent(ctx context.Context, key string, size int64, outcome file.EventOutcome) error
	GetDownloadURL(ctx context.Context, requesterID, fileID string) (*file.DownloadGrant, error)
	List(ctx context.Context, ownerID string) ([]*file.Record, error)
	SoftDelete(ctx context.Context, requesterID, fileID string) error
}

// FileHandler serves the upload, list, download, and delete endpoints.
type FileHandler struct {
	files FileService
	authn func(http.Handler) http.Handler
	log   *slog.Logger
}

// NewFileHandler creates a FileHandler. authn is the bearer-token
// middleware protecting every endpoint except the storage webhook.
func NewFileHandler(files FileService, authn func(http.Handler) http.Handler, log *slog.Logger) *FileHandler {
	return &FileHandler{files: files, authn: authn, log: log}
}

// Routes mounts the file endpoints. The webhook is unauthenticated;
// the trust boundary for it is the storage provider's delivery path.
func (h *FileHandler) Routes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Post("/webhook/s3-upload", h.webhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authn)
			r.Post("/upload/presigned", h.presignUpload)
			r.Get("/", h.list)
			r.Get("/{fileID}/download", h.download)
			r.Delete("/{fileID}", h.remove)
		})
	})
}

type presignUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type presignUploadResponse struct {
	UploadURL string    `json:"upload_url"`
	S3Key     string    `json:"s3_key"`
	ExpiresAt time.Time `json:"expires_at"`
	FileID    string    `json:"file_id"`
}

type fileInfo struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	FileSize         int64     `json:"file_size"`
	Status           string    `json:"status"`
	UploadDate       time.Time `json:"upload_date"`
	UploadedBy       string    `json:"uploaded_by"`
}

type fileListResponse struct {
	Files      []fileInfo `json:"files"`
	TotalCount int        `json:"total_count"`
}

type fileDownloadResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Filename    string    `json:"filename"`
}

type fileDeleteResponse struct {
	Message       string `json:"message"`
	DeletedFileID string `json:"deleted_file_id"`
}

func newFileInfo(rec *file.Record) fileInfo {
	return fileInfo{
		ID:               rec.ID,
		Filename:         path.Base(rec.StorageKey),
		OriginalFilename: rec.DisplayName,
		ContentType:      rec.ContentType,
		FileSize:         rec.SizeBytes,
		Status:           string(rec.Status),
		UploadDate:       rec.CreatedAt,
		UploadedBy:       rec.OwnerID,
	}
}

func (h *FileHandler) presignUpload(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req presignUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if req.Filename == "" {
		respondError(w, r, h.log, apperr.InvalidArgument("filename is required"))
		return
	}
	if req.ContentType == "" {
		respondError(w, r, h.log, apperr.InvalidArgument("content_type is required"))
		return
	}

	grant, err := h.files.RequestUpload(r.Context(), userID, req.Filename, req.ContentType)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, presignUploadResponse{
		UploadURL: grant.UploadURL,
		S3Key:     grant.StorageKey,
		ExpiresAt: grant.ExpiresAt,
		FileID:    grant.FileID,
	})
}

func (h *FileHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	records, err := h.files.List(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	files := make([]fileInfo, 0, len(records))
	for _, rec := range records {
		files = append(files, newFileInfo(rec))
	}

	writeJSON(w, http.StatusOK, fileListResponse{Files: files, TotalCount: len(files)})
}

func (h *FileHandler) download(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	fileID := chi.URLParam(r, "fileID")

	grant, err := h.files.GetDownloadURL(r.Context(), userID, fileID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, fileDownloadResponse{
		DownloadURL: grant.DownloadURL,
		ExpiresAt:   grant.ExpiresAt,
		Filename:    grant.Filename,
	})
}

func (h *FileHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	fileID := chi.URLParam(r, "fileID")

	if err := h.files.SoftDelete(r.Context(), userID, fileID); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, fileDeleteResponse{
		Message:       "file deleted",
		DeletedFileID: fileID,
	})
}
