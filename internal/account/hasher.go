// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("ACCOUNT_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides one-way password hashing and verification.
// Both operations are CPU-expensive on purpose; callers route them
// through the hash worker pool rather than running them inline on a
// request-serving goroutine.
type PasswordHasher interface {
	// Hash produces a salted argon2id hash of the password. Identical
	// plaintexts yield different hashes.
	Hash(password string) (string, error)

	// Verify checks the candidate against the stored hash. Returns nil on
	// match, ErrCredentialMismatch on mismatch, or ErrMalformedHash when
	// the stored hash cannot be parsed.
	Verify(password, encodedHash string) error
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("ACCOUNT_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// PHC string format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify checks the candidate password against the stored hash.
// Comparison of the derived keys is constant-time; parse failures are
// reported as ErrMalformedHash so callers can treat them as corruption
// rather than a plain mismatch.
func (h *Argon2idHasher) Verify(password, encodedHash string) error {
	params, salt, expected, err := parseArgon2idHash(encodedHash)
	if err != nil {
		return err
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrCredentialMismatch
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func malformedHash(msg string, args ...any) error {
	return oops.Code("ACCOUNT_MALFORMED_HASH").
		Wrapf(ErrMalformedHash, msg, args...)
}

func parseArgon2idHash(encodedHash string) (argon2Params, []byte, []byte, error) {
	var p argon2Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return p, nil, nil, malformedHash("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, malformedHash("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, malformedHash("invalid version segment")
	}
	if version != argon2.Version {
		return p, nil, nil, malformedHash("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return p, nil, nil, malformedHash("invalid parameter segment")
	}
	// Threads must fit in uint8 to prevent silent truncation.
	if threads == 0 || threads > 255 {
		return p, nil, nil, malformedHash("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, malformedHash("invalid salt encoding")
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, malformedHash("invalid key encoding")
	}
	if keyLen := len(expected); keyLen <= 0 || keyLen > 1<<30 {
		return p, nil, nil, malformedHash("invalid hash key length: %d", keyLen)
	}

	p.memory = memory
	p.time = time
	p.threads = uint8(threads)
	return p, salt, expected, nil
}
