package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/internal/auth"
	"github.com/wer153/biosensor-api/internal/token"
	"github.com/wer153/biosensor-api/pkg/logger"
)

type fakeStore struct {
	byID    map[string]*User
	byEmail map[string]*User
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]*User{}, byEmail: map[string]*User{}}
}

func (f *fakeStore) Create(ctx context.Context, u *User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	cp := *u
	f.byID[u.ID] = &cp
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) UpdateName(ctx context.Context, id, name string) (*User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Name = name
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	u, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(f.byEmail, u.Email)
	delete(f.byID, id)
	return nil
}

type fakeRefresh struct {
	tokens      map[string]string // token -> user id
	counter     int
	unavailable bool
}

func newFakeRefresh() *fakeRefresh {
	return &fakeRefresh{tokens: map[string]string{}}
}

func (f *fakeRefresh) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	if f.unavailable {
		return "", time.Time{}, token.ErrUnavailable
	}
	f.counter++
	tok := "refresh-" + userID + "-" + time.Now().Format("150405.000000000") + string(rune('a'+f.counter))
	f.tokens[tok] = userID
	return tok, time.Now().Add(24 * time.Hour), nil
}

func (f *fakeRefresh) Validate(ctx context.Context, tok string) (string, error) {
	if f.unavailable {
		return "", token.ErrUnavailable
	}
	userID, ok := f.tokens[tok]
	if !ok {
		return "", token.ErrInvalidToken
	}
	return userID, nil
}

func (f *fakeRefresh) Revoke(ctx context.Context, tok string) (bool, error) {
	if f.unavailable {
		return false, token.ErrUnavailable
	}
	_, ok := f.tokens[tok]
	delete(f.tokens, tok)
	return ok, nil
}

func (f *fakeRefresh) RevokeAll(ctx context.Context, userID string) (int, error) {
	if f.unavailable {
		return 0, token.ErrUnavailable
	}
	count := 0
	for tok, uid := range f.tokens {
		if uid == userID {
			delete(f.tokens, tok)
			count++
		}
	}
	return count, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeRefresh) {
	t.Helper()
	store := newFakeStore()
	refresh := newFakeRefresh()
	access := auth.NewTokenService([]byte("test-secret"), 30*time.Minute)
	return NewService(store, refresh, access, logger.NewNop()), store, refresh
}

func TestService_RegisterAndLogin(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.NotEqual(t, "s3cret-pass", u.PasswordHash)

	creds, err := svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, creds.AccessToken)
	require.NotEmpty(t, creds.RefreshToken)
	require.True(t, creds.AccessExpiresAt.After(time.Now()))
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Another Alice", "alice@example.com", "other-pass")
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestService_LoginFailures(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody@example.com", "s3cret-pass")
		require.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(err))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice@example.com", "wrong")
		require.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(err))
	})
}

func TestService_RefreshRotatesToken(t *testing.T) {
	t.Parallel()

	svc, _, refresh := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	creds, err := svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, creds.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, next.AccessToken)
	require.NotEqual(t, creds.RefreshToken, next.RefreshToken)

	// The old token was revoked by the rotation.
	_, ok := refresh.tokens[creds.RefreshToken]
	require.False(t, ok)

	_, err = svc.Refresh(ctx, creds.RefreshToken)
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestService_RefreshInvalidToken(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "bogus")
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestService_RefreshStoreOutage(t *testing.T) {
	t.Parallel()

	svc, _, refresh := newTestService(t)
	refresh.unavailable = true

	_, err := svc.Refresh(context.Background(), "anything")
	require.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

func TestService_DeleteRevokesTokens(t *testing.T) {
	t.Parallel()

	svc, store, refresh := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, u.ID))

	require.Empty(t, refresh.tokens)
	_, err = store.GetByID(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)

	err = svc.Delete(ctx, u.ID)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_UpdateName(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	updated, err := svc.UpdateName(ctx, u.ID, "Alice B")
	require.NoError(t, err)
	require.Equal(t, "Alice B", updated.Name)

	_, err = svc.UpdateName(ctx, "missing-id", "X")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
