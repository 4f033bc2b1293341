// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package session provides opaque cookie-backed sessions with claims
// held in Redis.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Claim keys written after successful authentication.
const (
	ClaimUserID    = "user_id"
	ClaimUserEmail = "user_email"
)

// Session configuration.
const (
	sessionIDBytes = 32 // 32 bytes = 64 hex chars
	keyPrefix      = "authsess:"
)

// ErrSessionWrite is returned when session state cannot be persisted.
// A login that hits it must be treated as failed and the session
// discarded rather than left half-populated.
var ErrSessionWrite = errors.New("session write failed")

// Store manages session state in Redis. Safe for concurrent use.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewStore creates a Store with the given session TTL.
func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Session is a handle on one client's session. The zero ID means no
// session has been established yet; Renew assigns one.
type Session struct {
	store *Store
	id    string
}

// Open returns a handle for an existing session ID, or a fresh handle
// when id is empty.
func (s *Store) Open(id string) *Session {
	return &Session{store: s, id: id}
}

// ID returns the current opaque session identifier.
func (sess *Session) ID() string {
	return sess.id
}

// Renew rotates the session identifier, dropping any state held under
// the previous one. Always called before writing authentication claims
// so a pre-authentication session ID can never name an authenticated
// session (fixation defense).
func (sess *Session) Renew(ctx context.Context) error {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return oops.Code("SESSION_RENEW_FAILED").Wrap(err)
	}
	next := hex.EncodeToString(raw)

	if sess.id != "" {
		if err := sess.store.rdb.Del(ctx, keyPrefix+sess.id).Err(); err != nil {
			return oops.Code("SESSION_RENEW_FAILED").
				With("operation", "drop previous session").
				Wrapf(ErrSessionWrite, "deleting session key: %v", err)
		}
	}

	sess.id = next
	return nil
}

// Insert writes one claim into the session and refreshes its TTL.
func (sess *Session) Insert(ctx context.Context, key, value string) error {
	if sess.id == "" {
		return oops.Code("SESSION_NOT_ESTABLISHED").Errorf("session has no identifier; call Renew first")
	}

	storageKey := keyPrefix + sess.id
	if err := sess.store.rdb.HSet(ctx, storageKey, key, value).Err(); err != nil {
		return oops.Code("SESSION_WRITE_FAILED").
			With("claim", key).
			Wrapf(ErrSessionWrite, "writing claim: %v", err)
	}
	if err := sess.store.rdb.Expire(ctx, storageKey, sess.store.ttl).Err(); err != nil {
		return oops.Code("SESSION_WRITE_FAILED").
			With("claim", key).
			Wrapf(ErrSessionWrite, "setting session ttl: %v", err)
	}
	return nil
}

// Get reads one claim from the session. Returns empty string when the
// claim or the session is absent.
func (sess *Session) Get(ctx context.Context, key string) (string, error) {
	if sess.id == "" {
		return "", nil
	}
	value, err := sess.store.rdb.HGet(ctx, keyPrefix+sess.id, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", oops.Code("SESSION_READ_FAILED").
			With("claim", key).
			Wrap(err)
	}
	return value, nil
}

// Destroy removes all session state and clears the identifier. Called
// when a login fails partway so no half-authenticated session remains.
func (sess *Session) Destroy(ctx context.Context) error {
	if sess.id == "" {
		return nil
	}
	if err := sess.store.rdb.Del(ctx, keyPrefix+sess.id).Err(); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").Wrap(err)
	}
	sess.id = ""
	return nil
}
