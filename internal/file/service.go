package file

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/pkg/storage"
)

// Repo is the persistence interface the service depends on.
type Repo interface {
	Create(ctx context.Context, rec *Record) error
	GetOwned(ctx context.Context, id, ownerID string) (*Record, error)
	GetByStorageKey(ctx context.Context, key string) (*Record, error)
	ListOwned(ctx context.Context, ownerID string) ([]*Record, error)
	MarkCompleted(ctx context.Context, key string, size int64) (bool, error)
	MarkFailed(ctx context.Context, key string) (bool, error)
	SoftDelete(ctx context.Context, id, ownerID string) (bool, error)
	FailStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// UploadGrant is the result of a presigned upload request.
type UploadGrant struct {
	FileID     string
	StorageKey string
	UploadURL  string
	ExpiresAt  time.Time
}

// DownloadGrant is the result of a presigned download request.
type DownloadGrant struct {
	DownloadURL string
	Filename    string
	ExpiresAt   time.Time
}

// EventOutcome classifies a storage notification.
type EventOutcome int

const (
	// OutcomeSuccess reports that the object was written.
	OutcomeSuccess EventOutcome = iota
	// OutcomeFailure reports that the upload failed permanently.
	OutcomeFailure
)

// Service orchestrates the upload lifecycle and enforces ownership and
// visibility rules for download, list, and delete.
type Service struct {
	repo    Repo
	gateway storage.Gateway
	log     *slog.Logger
}

// NewService creates a Service.
func NewService(repo Repo, gateway storage.Gateway, log *slog.Logger) *Service {
	return &Service{repo: repo, gateway: gateway, log: log}
}

// RequestUpload allocates a file id, persists a pending record, and
// returns an upload capability scoped to the record's storage key.
//
// The pending record is durable even if the client never uploads;
// abandoned records are failed later by the reconciliation sweep.
func (s *Service) RequestUpload(ctx context.Context, ownerID, filename, contentType string) (*UploadGrant, error) {
	fileID := uuid.NewString()
	key := storage.BuildKey(fileID, ownerID, filename)

	now := time.Now()
	rec := &Record{
		ID:          fileID,
		OwnerID:     ownerID,
		DisplayName: filename,
		ContentType: contentType,
		StorageKey:  key,
		SizeBytes:   0,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create file record", err)
	}

	signed, err := s.gateway.PresignUpload(ctx, key, contentType, filename)
	if err != nil {
		return nil, s.mapGatewayError(err)
	}

	s.log.InfoContext(ctx, "issued presigned upload",
		slog.String("file_id", fileID),
		slog.String("storage_key", key),
	)

	return &UploadGrant{
		FileID:     fileID,
		StorageKey: key,
		UploadURL:  signed.URL,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

// HandleUploadEvent applies one storage notification to the record
// matching key. The notifier is untrusted: events whose key matches no
// record are logged and dropped, completion claims are verified against
// the stored object, and duplicate deliveries change nothing. This is
// the only path that sets StatusCompleted and the authoritative size.
func (s *Service) HandleUploadEvent(ctx context.Context, key string, size int64, outcome EventOutcome) error {
	rec, err := s.repo.GetByStorageKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.WarnContext(ctx, "upload event for unknown storage key",
				slog.String("storage_key", key),
			)
			return nil
		}
		return apperr.Wrap(apperr.KindInternal, "failed to look up file record", err)
	}

	if rec.Status != StatusPending {
		s.log.InfoContext(ctx, "upload event for settled record ignored",
			slog.String("storage_key", key),
			slog.String("status", string(rec.Status)),
		)
		return nil
	}

	switch outcome {
	case OutcomeSuccess:
		// Do not trust the claimed completion: confirm the object is
		// really there and take its size from storage, not the event.
		actualSize, err := s.gateway.Head(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.log.WarnContext(ctx, "completion event without stored object",
					slog.String("storage_key", key),
					slog.Int64("claimed_size", size),
				)
				return nil
			}
			return s.mapGatewayError(err)
		}
		if actualSize != size {
			s.log.WarnContext(ctx, "event size does not match stored object",
				slog.String("storage_key", key),
				slog.Int64("claimed_size", size),
				slog.Int64("actual_size", actualSize),
			)
		}

		applied, err := s.repo.MarkCompleted(ctx, key, actualSize)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to complete file record", err)
		}
		if !applied {
			// Lost the race against a concurrent duplicate; the record
			// is already settled, which is the outcome we wanted.
			return nil
		}
		s.log.InfoContext(ctx, "upload completed",
			slog.String("file_id", rec.ID),
			slog.String("storage_key", key),
			slog.Int64("size_bytes", actualSize),
		)
	case OutcomeFailure:
		if _, err := s.repo.MarkFailed(ctx, key); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to fail file record", err)
		}
		s.log.WarnContext(ctx, "upload failed",
			slog.String("file_id", rec.ID),
			slog.String("storage_key", key),
		)
	}

	return nil
}

// GetDownloadURL returns a read-only capability for an owned, completed
// record. Nonexistent, foreign, deleted, and not-yet-completed records
// are all NotFound so the existence of another user's file is never
// revealed.
func (s *Service) GetDownloadURL(ctx context.Context, requesterID, fileID string) (*DownloadGrant, error) {
	rec, err := s.repo.GetOwned(ctx, fileID, requesterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("file not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to look up file record", err)
	}

	// Bytes are guaranteed to exist only after completion.
	if rec.Status != StatusCompleted {
		return nil, apperr.NotFound("file not found")
	}

	signed, err := s.gateway.PresignDownload(ctx, rec.StorageKey, rec.DisplayName)
	if err != nil {
		return nil, s.mapGatewayError(err)
	}

	return &DownloadGrant{
		DownloadURL: signed.URL,
		Filename:    rec.DisplayName,
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}

// List returns all visible records of ownerID, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Record, error) {
	records, err := s.repo.ListOwned(ctx, ownerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list files", err)
	}
	return records, nil
}

// SoftDelete hides the owned record from all lookup paths. The bytes
// in object storage are left for an external cleanup job. Deleting an
// absent, foreign, or already-deleted record is NotFound.
func (s *Service) SoftDelete(ctx context.Context, requesterID, fileID string) error {
	deleted, err := s.repo.SoftDelete(ctx, fileID, requesterID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to delete file", err)
	}
	if !deleted {
		return apperr.NotFound("file not found")
	}
	return nil
}

// FailStalePending fails every record still pending from before the
// cutoff window. Invoked by the reconciliation sweep.
func (s *Service) FailStalePending(ctx context.Context, window time.Duration) (int64, error) {
	count, err := s.repo.FailStale(ctx, time.Now().Add(-window))
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to reconcile pending uploads", err)
	}
	if count > 0 {
		s.log.InfoContext(ctx, "failed stale pending uploads",
			slog.Int64("count", count),
			slog.Duration("window", window),
		)
	}
	return count, nil
}

// mapGatewayError translates storage gateway errors to the taxonomy.
func (s *Service) mapGatewayError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "file not found", err)
	case errors.Is(err, storage.ErrAccessDenied):
		return apperr.Wrap(apperr.KindPermissionDenied, "storage access denied", err)
	case errors.Is(err, storage.ErrUnavailable):
		return apperr.Wrap(apperr.KindUnavailable, "storage unavailable", err)
	default:
		return apperr.Wrap(apperr.KindUnavailable, "storage request failed", err)
	}
}
