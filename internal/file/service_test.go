package file

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/pkg/logger"
	"github.com/wer153/biosensor-api/pkg/storage"
)

// fakeRepo is an in-memory Repo with the same conditional-transition
// semantics as the PostgreSQL repository.
type fakeRepo struct {
	mu    sync.Mutex
	byID  map[string]*Record
	byKey map[string]*Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]*Record{}, byKey: map[string]*Record{}}
}

func (f *fakeRepo) Create(ctx context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.byID[rec.ID] = &cp
	f.byKey[rec.StorageKey] = &cp
	return nil
}

func (f *fakeRepo) GetOwned(ctx context.Context, id, ownerID string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok || rec.OwnerID != ownerID || rec.IsDeleted {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) GetByStorageKey(ctx context.Context, key string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) ListOwned(ctx context.Context, ownerID string) ([]*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Record
	for _, rec := range f.byID {
		if rec.OwnerID == ownerID && !rec.IsDeleted {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) MarkCompleted(ctx context.Context, key string, size int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byKey[key]
	if !ok || rec.Status != StatusPending {
		return false, nil
	}
	rec.Status = StatusCompleted
	rec.SizeBytes = size
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byKey[key]
	if !ok || rec.Status != StatusPending {
		return false, nil
	}
	rec.Status = StatusFailed
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRepo) SoftDelete(ctx context.Context, id, ownerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok || rec.OwnerID != ownerID || rec.IsDeleted {
		return false, nil
	}
	rec.IsDeleted = true
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRepo) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, rec := range f.byID {
		if rec.Status == StatusPending && rec.CreatedAt.Before(cutoff) {
			rec.Status = StatusFailed
			count++
		}
	}
	return count, nil
}

// fakeGateway returns deterministic signed URLs and serves Head from an
// in-memory object map. Setting err forces every call to fail with it.
type fakeGateway struct {
	objects map[string]int64
	err     error
}

func (g *fakeGateway) put(key string, size int64) {
	g.objects[key] = size
}

func (g *fakeGateway) PresignUpload(ctx context.Context, key, contentType, filename string) (*storage.SignedURL, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &storage.SignedURL{
		URL:       "https://storage.test/upload/" + key,
		Key:       key,
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil
}

func (g *fakeGateway) PresignDownload(ctx context.Context, key, filename string) (*storage.SignedURL, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &storage.SignedURL{
		URL:       "https://storage.test/download/" + key,
		Key:       key,
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil
}

func (g *fakeGateway) Head(ctx context.Context, key string) (int64, error) {
	if g.err != nil {
		return 0, g.err
	}
	size, ok := g.objects[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return size, nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeGateway) {
	t.Helper()
	repo := newFakeRepo()
	gateway := &fakeGateway{objects: map[string]int64{}}
	return NewService(repo, gateway, logger.NewNop()), repo, gateway
}

func TestService_RequestUpload(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
	require.NoError(t, err)
	require.NotEmpty(t, grant.FileID)
	require.Contains(t, grant.StorageKey, grant.FileID)
	require.Contains(t, grant.StorageKey, "owner-a")
	require.Contains(t, grant.UploadURL, grant.StorageKey)
	require.True(t, grant.ExpiresAt.After(time.Now()))

	rec, err := repo.GetOwned(ctx, grant.FileID, "owner-a")
	require.NoError(t, err)
	require.Equal(t, StatusPending, rec.Status)
	require.Zero(t, rec.SizeBytes)
	require.Equal(t, "report.csv", rec.DisplayName)
	require.Equal(t, "text/csv", rec.ContentType)
}

func TestService_RequestUpload_UniqueKeys(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for range 20 {
		grant, err := svc.RequestUpload(ctx, "owner-a", "same-name.bin", "application/octet-stream")
		require.NoError(t, err)
		require.False(t, seen[grant.StorageKey], "storage key reused: %s", grant.StorageKey)
		seen[grant.StorageKey] = true
	}
}

func TestService_UploadLifecycle(t *testing.T) {
	t.Parallel()

	svc, _, gateway := newTestService(t)
	ctx := context.Background()

	grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
	require.NoError(t, err)

	gateway.put(grant.StorageKey, 1024)
	require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1024, OutcomeSuccess))

	records, err := svc.List(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, StatusCompleted, records[0].Status)
	require.Equal(t, int64(1024), records[0].SizeBytes)
}

func TestService_HandleUploadEvent_VerifiesObject(t *testing.T) {
	t.Parallel()

	t.Run("claim without stored object is a no-op", func(t *testing.T) {
		t.Parallel()

		svc, repo, _ := newTestService(t)
		ctx := context.Background()

		grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
		require.NoError(t, err)

		require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1024, OutcomeSuccess))

		rec, err := repo.GetOwned(ctx, grant.FileID, "owner-a")
		require.NoError(t, err)
		require.Equal(t, StatusPending, rec.Status)
	})

	t.Run("stored size wins over the claimed size", func(t *testing.T) {
		t.Parallel()

		svc, repo, gateway := newTestService(t)
		ctx := context.Background()

		grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
		require.NoError(t, err)

		gateway.put(grant.StorageKey, 2048)
		require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1, OutcomeSuccess))

		rec, err := repo.GetOwned(ctx, grant.FileID, "owner-a")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, rec.Status)
		require.Equal(t, int64(2048), rec.SizeBytes)
	})

	t.Run("storage outage leaves the record pending", func(t *testing.T) {
		t.Parallel()

		svc, repo, gateway := newTestService(t)
		ctx := context.Background()

		grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
		require.NoError(t, err)

		gateway.err = storage.ErrUnavailable
		err = svc.HandleUploadEvent(ctx, grant.StorageKey, 1024, OutcomeSuccess)
		require.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))

		gateway.err = nil
		rec, err := repo.GetOwned(ctx, grant.FileID, "owner-a")
		require.NoError(t, err)
		require.Equal(t, StatusPending, rec.Status)
	})
}

func TestService_HandleUploadEvent_UnknownKeyIsNoop(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleUploadEvent(ctx, "users/nobody/ghost.bin", 512, OutcomeSuccess))
	require.Empty(t, repo.byID)
}

func TestService_HandleUploadEvent_DuplicateIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, _, gateway := newTestService(t)
	ctx := context.Background()

	grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
	require.NoError(t, err)

	gateway.put(grant.StorageKey, 1024)
	require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1024, OutcomeSuccess))
	// Second delivery with a different size must change nothing.
	require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 9999, OutcomeSuccess))

	records, err := svc.List(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, StatusCompleted, records[0].Status)
	require.Equal(t, int64(1024), records[0].SizeBytes)
}

func TestService_HandleUploadEvent_FailureOutcome(t *testing.T) {
	t.Parallel()

	svc, _, gateway := newTestService(t)
	ctx := context.Background()

	grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
	require.NoError(t, err)

	require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 0, OutcomeFailure))

	records, err := svc.List(ctx, "owner-a")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, records[0].Status)

	// A late success must not resurrect a failed record.
	gateway.put(grant.StorageKey, 1024)
	require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1024, OutcomeSuccess))
	records, err = svc.List(ctx, "owner-a")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, records[0].Status)
	require.Zero(t, records[0].SizeBytes)
}

func TestService_GetDownloadURL(t *testing.T) {
	t.Parallel()

	svc, _, gateway := newTestService(t)
	ctx := context.Background()

	grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
	require.NoError(t, err)

	t.Run("pending record is not downloadable", func(t *testing.T) {
		_, err := svc.GetDownloadURL(ctx, "owner-a", grant.FileID)
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	gateway.put(grant.StorageKey, 1024)
	require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1024, OutcomeSuccess))

	t.Run("completed record is downloadable by owner", func(t *testing.T) {
		dl, err := svc.GetDownloadURL(ctx, "owner-a", grant.FileID)
		require.NoError(t, err)
		require.Contains(t, dl.DownloadURL, grant.StorageKey)
		require.Equal(t, "report.csv", dl.Filename)
		require.True(t, dl.ExpiresAt.After(time.Now()))
	})

	t.Run("foreign requester gets not found", func(t *testing.T) {
		_, err := svc.GetDownloadURL(ctx, "owner-b", grant.FileID)
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("nonexistent id gets not found", func(t *testing.T) {
		_, err := svc.GetDownloadURL(ctx, "owner-a", "no-such-id")
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestService_SoftDelete(t *testing.T) {
	t.Parallel()

	svc, _, gateway := newTestService(t)
	ctx := context.Background()

	grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
	require.NoError(t, err)
	gateway.put(grant.StorageKey, 1024)
	require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1024, OutcomeSuccess))

	require.NoError(t, svc.SoftDelete(ctx, "owner-a", grant.FileID))

	t.Run("deleted record is not listed", func(t *testing.T) {
		records, err := svc.List(ctx, "owner-a")
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("deleted record is not downloadable", func(t *testing.T) {
		_, err := svc.GetDownloadURL(ctx, "owner-a", grant.FileID)
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("second delete is not found", func(t *testing.T) {
		err := svc.SoftDelete(ctx, "owner-a", grant.FileID)
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("foreign delete is not found", func(t *testing.T) {
		other, err := svc.RequestUpload(ctx, "owner-a", "other.csv", "text/csv")
		require.NoError(t, err)
		err = svc.SoftDelete(ctx, "owner-b", other.FileID)
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestService_List_NewestFirst(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	for i, name := range []string{"oldest.txt", "middle.txt", "newest.txt"} {
		require.NoError(t, repo.Create(ctx, &Record{
			ID:          name,
			OwnerID:     "owner-a",
			DisplayName: name,
			StorageKey:  "users/owner-a/" + name,
			Status:      StatusCompleted,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := svc.List(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "newest.txt", records[0].DisplayName)
	require.Equal(t, "oldest.txt", records[2].DisplayName)
}

func TestService_FailStalePending(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	stale := &Record{
		ID:         "stale",
		OwnerID:    "owner-a",
		StorageKey: "users/owner-a/stale",
		Status:     StatusPending,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	fresh := &Record{
		ID:         "fresh",
		OwnerID:    "owner-a",
		StorageKey: "users/owner-a/fresh",
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
	settled := &Record{
		ID:         "settled",
		OwnerID:    "owner-a",
		StorageKey: "users/owner-a/settled",
		Status:     StatusCompleted,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	for _, rec := range []*Record{stale, fresh, settled} {
		require.NoError(t, repo.Create(ctx, rec))
	}

	count, err := svc.FailStalePending(ctx, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.Equal(t, StatusFailed, repo.byID["stale"].Status)
	require.Equal(t, StatusPending, repo.byID["fresh"].Status)
	require.Equal(t, StatusCompleted, repo.byID["settled"].Status)
}

func TestService_GatewayErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{name: "object missing", err: storage.ErrNotFound, want: apperr.KindNotFound},
		{name: "access denied", err: storage.ErrAccessDenied, want: apperr.KindPermissionDenied},
		{name: "provider down", err: storage.ErrUnavailable, want: apperr.KindUnavailable},
		{name: "presign failure", err: storage.ErrPresignFailed, want: apperr.KindUnavailable},
		{name: "unknown error", err: errors.New("boom"), want: apperr.KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _, gateway := newTestService(t)
			ctx := context.Background()

			grant, err := svc.RequestUpload(ctx, "owner-a", "report.csv", "text/csv")
			require.NoError(t, err)
			gateway.put(grant.StorageKey, 1)
			require.NoError(t, svc.HandleUploadEvent(ctx, grant.StorageKey, 1, OutcomeSuccess))

			gateway.err = tt.err
			_, err = svc.GetDownloadURL(ctx, "owner-a", grant.FileID)
			require.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}
