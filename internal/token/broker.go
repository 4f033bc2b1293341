// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package token issues and resolves purpose-scoped ephemeral tokens
// backed by Redis with a TTL.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Purpose scopes a token to the single follow-up action it authorizes.
type Purpose string

// Recognized token purposes.
const (
	PurposeEmailVerification Purpose = "email-verification"
	PurposePasswordReset     Purpose = "password-reset"
)

// Valid reports whether p is a recognized purpose.
func (p Purpose) Valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

// Token configuration.
const (
	tokenBytes = 32 // 32 bytes = 64 hex chars
	keyPrefix  = "authtok:"
)

// Sentinel errors surfaced by the broker.
var (
	// ErrExpiredOrUnknown is returned when a token does not resolve,
	// either because it never existed or because its TTL elapsed. The two
	// cases are deliberately indistinguishable.
	ErrExpiredOrUnknown = errors.New("token is expired or unknown")

	// ErrStoreUnavailable is returned when the ephemeral store cannot be
	// reached or its connection pool is exhausted. Retryable.
	ErrStoreUnavailable = errors.New("ephemeral store unavailable")
)

// Claims is the record a token resolves to.
type Claims struct {
	UserID  string  `json:"user_id"`
	Purpose Purpose `json:"purpose"`
}

// Broker issues, resolves, and revokes ephemeral tokens. Only the
// SHA-256 of a token is stored; the plaintext exists solely in the
// outbound message. Safe for concurrent use.
type Broker struct {
	rdb redis.UniversalClient
}

// NewBroker creates a Broker on top of the given Redis client.
func NewBroker(rdb redis.UniversalClient) *Broker {
	return &Broker{rdb: rdb}
}

// Issue generates a random token, stores its claims under the token's
// hash with expiry now+ttl, and returns the plaintext token for
// embedding in an outbound message.
func (b *Broker) Issue(ctx context.Context, userID string, purpose Purpose, ttl time.Duration) (string, error) {
	if !purpose.Valid() {
		return "", oops.Code("TOKEN_INVALID_PURPOSE").
			With("purpose", string(purpose)).
			Errorf("unknown token purpose")
	}
	if ttl <= 0 {
		return "", oops.Code("TOKEN_INVALID_TTL").
			With("ttl", ttl.String()).
			Errorf("token ttl must be positive")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	tok := hex.EncodeToString(raw)

	payload, err := json.Marshal(Claims{UserID: userID, Purpose: purpose})
	if err != nil {
		return "", oops.Code("TOKEN_ENCODE_FAILED").Wrap(err)
	}

	if err := b.rdb.Set(ctx, storageKey(tok), payload, ttl).Err(); err != nil {
		return "", oops.Code("TOKEN_STORE_UNAVAILABLE").
			With("operation", "set").
			Wrapf(ErrStoreUnavailable, "storing token: %v", err)
	}

	return tok, nil
}

// Resolve returns the claims for a token. Resolving does not consume
// the token; the workflow acting on it calls Revoke once the action
// succeeded.
func (b *Broker) Resolve(ctx context.Context, tok string) (Claims, error) {
	data, err := b.rdb.Get(ctx, storageKey(tok)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Claims{}, oops.Code("TOKEN_EXPIRED_OR_UNKNOWN").Wrap(ErrExpiredOrUnknown)
		}
		return Claims{}, oops.Code("TOKEN_STORE_UNAVAILABLE").
			With("operation", "get").
			Wrapf(ErrStoreUnavailable, "resolving token: %v", err)
	}

	var claims Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		return Claims{}, oops.Code("TOKEN_DECODE_FAILED").Wrap(err)
	}
	return claims, nil
}

// Revoke deletes a token. Revoking an already-absent token is not an
// error.
func (b *Broker) Revoke(ctx context.Context, tok string) error {
	if err := b.rdb.Del(ctx, storageKey(tok)).Err(); err != nil {
		return oops.Code("TOKEN_STORE_UNAVAILABLE").
			With("operation", "del").
			Wrapf(ErrStoreUnavailable, "revoking token: %v", err)
	}
	return nil
}

// storageKey derives the Redis key for a token. Hashing keeps the
// plaintext token out of the store.
func storageKey(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return keyPrefix + hex.EncodeToString(sum[:])
}
