// Package token implements the refresh-token store on Redis.
//
// Each token lives under refresh_token:{token} with a TTL matching its
// expiry, and is indexed in a per-user set user_tokens:{user_id} so all
// of a user's tokens can be revoked at once. Validation fails closed:
// missing, expired, and malformed tokens are invalid, while a store
// outage is reported as ErrUnavailable and never as an invalid token.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidToken = errors.New("token: invalid or expired refresh token")
	ErrUnavailable  = errors.New("token: store unavailable")
)

const (
	tokenPrefix   = "refresh_token:"
	userSetPrefix = "user_tokens:"

	// 32 random bytes, URL-safe encoded.
	tokenBytes = 32
)

// record is the JSON value stored per token.
type record struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store issues, validates, and revokes refresh tokens.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStore creates a Store. Tokens expire after ttl.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Issue generates a new refresh token for userID and persists it with
// an absolute expiry.
func (s *Store) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("token: generate: %w", err)
	}
	tok := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now()
	rec := record{UserID: userID, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: marshal: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenPrefix+tok, data, s.ttl)
	pipe.SAdd(ctx, userSetPrefix+userID, tok)
	// The index must outlive its newest member or RevokeAll misses
	// tokens; refreshing its TTL on every issue keeps that invariant.
	pipe.Expire(ctx, userSetPrefix+userID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", time.Time{}, errors.Join(ErrUnavailable, err)
	}

	return tok, rec.ExpiresAt, nil
}

// Validate looks up a token and returns the owning user id.
// Missing, expired, and malformed tokens return ErrInvalidToken.
func (s *Store) Validate(ctx context.Context, tok string) (string, error) {
	data, err := s.client.Get(ctx, tokenPrefix+tok).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidToken
		}
		return "", errors.Join(ErrUnavailable, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", ErrInvalidToken
	}

	// Redis TTL normally removes expired tokens, but the absolute
	// expiry is authoritative even if the key is still present.
	if rec.UserID == "" || !rec.ExpiresAt.After(time.Now()) {
		return "", ErrInvalidToken
	}

	return rec.UserID, nil
}

// Revoke invalidates a single token. Returns false when the token was
// not present; revoking twice is a no-op.
func (s *Store) Revoke(ctx context.Context, tok string) (bool, error) {
	data, err := s.client.Get(ctx, tokenPrefix+tok).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Join(ErrUnavailable, err)
	}

	var rec record
	_ = json.Unmarshal(data, &rec)

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, tokenPrefix+tok)
	if rec.UserID != "" {
		pipe.SRem(ctx, userSetPrefix+rec.UserID, tok)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}

	return del.Val() > 0, nil
}

// RevokeAll invalidates every token issued to userID and returns how
// many were removed. Calling it again immediately returns 0.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	toks, err := s.client.SMembers(ctx, userSetPrefix+userID).Result()
	if err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}
	if len(toks) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(toks)+1)
	for _, tok := range toks {
		keys = append(keys, tokenPrefix+tok)
	}

	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}
	if err := s.client.Del(ctx, userSetPrefix+userID).Err(); err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}

	return int(removed), nil
}
