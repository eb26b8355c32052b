package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wer153/biosensor-api/internal/apperr"
	"github.com/wer153/biosensor-api/internal/auth"
	"github.com/wer153/biosensor-api/internal/token"
)

// Store is the persistence interface the service depends on.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateName(ctx context.Context, id, name string) (*User, error)
	Delete(ctx context.Context, id string) error
}

// RefreshTokens is the refresh-token store interface.
type RefreshTokens interface {
	Issue(ctx context.Context, userID string) (string, time.Time, error)
	Validate(ctx context.Context, tok string) (string, error)
	Revoke(ctx context.Context, tok string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Credentials is the result of a successful login or refresh.
type Credentials struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service implements registration, authentication, and profile
// operations. All collaborator errors are translated to the apperr
// taxonomy here; handlers only render them.
type Service struct {
	store   Store
	refresh RefreshTokens
	access  *auth.TokenService
	log     *slog.Logger
}

// NewService creates a Service.
func NewService(store Store, refresh RefreshTokens, access *auth.TokenService, log *slog.Logger) *Service {
	return &Service{store: store, refresh: refresh, access: access, log: log}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to process password", err)
	}

	now := time.Now()
	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create user", err)
	}

	return u, nil
}

// Login verifies credentials and mints an access/refresh token pair.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Credentials, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.InvalidCredentials("invalid credentials")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to look up user", err)
	}

	if !auth.VerifyPassword(password, u.PasswordHash) {
		return nil, apperr.InvalidCredentials("invalid credentials")
	}

	return s.issueCredentials(ctx, u.ID)
}

// Refresh exchanges a valid refresh token for a new token pair.
// The presented token is revoked so each refresh token is usable once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	userID, err := s.refresh.Validate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrUnavailable) {
			return nil, apperr.Wrap(apperr.KindUnavailable, "token store unavailable", err)
		}
		return nil, apperr.Unauthorized("invalid or expired refresh token")
	}

	if _, err := s.store.GetByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to look up user", err)
	}

	if _, err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "token store unavailable", err)
	}

	return s.issueCredentials(ctx, userID)
}

// Get returns the account for id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to look up user", err)
	}
	return u, nil
}

// UpdateName changes the display name for id.
func (s *Service) UpdateName(ctx context.Context, id, name string) (*User, error) {
	u, err := s.store.UpdateName(ctx, id, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update user", err)
	}
	return u, nil
}

// Delete removes the account and revokes all of its refresh tokens.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Wrap(apperr.KindInternal, "failed to delete user", err)
	}

	count, err := s.refresh.RevokeAll(ctx, id)
	if err != nil {
		// The account row is already gone; log and report the partial
		// failure instead of pretending the revoke happened.
		return apperr.Wrap(apperr.KindUnavailable, "failed to revoke refresh tokens", err)
	}
	s.log.InfoContext(ctx, "revoked refresh tokens for deleted user",
		slog.String("user_id", id),
		slog.Int("count", count),
	)

	return nil
}

func (s *Service) issueCredentials(ctx context.Context, userID string) (*Credentials, error) {
	accessToken, accessExpiresAt, err := s.access.Issue(userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to issue access token", err)
	}

	refreshToken, refreshExpiresAt, err := s.refresh.Issue(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "token store unavailable", fmt.Errorf("issue refresh token: %w", err))
	}

	return &Credentials{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
