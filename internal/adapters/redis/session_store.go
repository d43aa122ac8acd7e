package redis

// Package redis provides the Redis-backed session store for the gateway.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
)

const (
	defaultSessionPrefix     = "session:"
	defaultLogoutTokenPrefix = "logout_token:"

	// Logout tokens are short-lived correlation values; an IdP-initiated
	// logout that is not finalized within this window is abandoned.
	logoutTokenTTL = 30 * time.Minute
)

// SessionStore is a Redis-based session store. Session records are JSON
// values with a TTL derived from the session expiry; the logout-token index
// lives under a separate key prefix. All operations address a single key,
// so Redis per-key atomicity serializes access to an individual session.
type SessionStore struct {
	client      redis.UniversalClient
	prefix      string
	tokenPrefix string
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{
		client:      client,
		prefix:      defaultSessionPrefix,
		tokenPrefix: defaultLogoutTokenPrefix,
	}
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client:      client,
		prefix:      prefix,
		tokenPrefix: prefix + "logout_token:",
	}
}

// NewSessionID generates an opaque, unguessable session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// ErrNotFound is returned when a session is not found. It carries the
// not-found error code so callers can tell a missing session apart from a
// store failure.
var ErrNotFound error = apperrors.NotFound("session not found")

func (s *SessionStore) Put(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return apperrors.SessionStore("session id cannot be empty", nil)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return apperrors.SessionStore("marshal session", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return apperrors.SessionStore("session is expired", nil)
	}

	if err := s.client.Set(ctx, s.prefix+sess.ID, data, ttl).Err(); err != nil {
		return apperrors.SessionStore("redis set", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, apperrors.SessionStore("redis get", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.Session{}, apperrors.SessionStore("unmarshal session", unmarshalErr)
	}

	// Redis TTL should have evicted the key already; be defensive anyway.
	if time.Now().After(sess.ExpiresAt) {
		if deleteErr := s.Destroy(ctx, id); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

// RegenerateID persists sess under a fresh id and deletes the old record.
// The new record is written before the old one is removed so a failure can
// not leave the caller without any session.
func (s *SessionStore) RegenerateID(ctx context.Context, sess domainauth.Session) (domainauth.Session, error) {
	oldID := sess.ID
	sess.ID = NewSessionID()

	if err := s.Put(ctx, sess); err != nil {
		return domainauth.Session{}, err
	}
	if oldID != "" {
		if err := s.Destroy(ctx, oldID); err != nil {
			return domainauth.Session{}, err
		}
	}
	return sess, nil
}

func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil // Nothing to delete
	}

	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return apperrors.SessionStore("redis del", err)
	}
	return nil
}

func (s *SessionStore) RegisterLogoutToken(ctx context.Context, token, sessionID string) error {
	if token == "" {
		return apperrors.SessionStore("logout token cannot be empty", nil)
	}

	if err := s.client.Set(ctx, s.tokenPrefix+token, sessionID, logoutTokenTTL).Err(); err != nil {
		return apperrors.SessionStore("redis set logout token", err)
	}
	return nil
}

// ConsumeLogoutToken removes the token and returns the registered session id.
// GETDEL makes the consume-at-most-once invariant a single-key atomic
// operation; an absent token yields "" with no error.
func (s *SessionStore) ConsumeLogoutToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}

	sessionID, err := s.client.GetDel(ctx, s.tokenPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", apperrors.SessionStore("redis getdel logout token", err)
	}
	return sessionID, nil
}
