// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package account

import "errors"

// Sentinel errors for errors.Is dispatch. Callers that need structured
// context receive these wrapped in oops errors with a code attached.
var (
	// ErrNotFound is returned when no active user matches the lookup criteria.
	ErrNotFound = errors.New("active user not found")

	// ErrDuplicateEmail is returned when registration collides with an
	// existing account on the email unique constraint.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrCredentialMismatch is returned when a candidate password does not
	// match the stored hash. It is an expected outcome, not a fault.
	ErrCredentialMismatch = errors.New("credentials do not match")

	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	// Unlike ErrCredentialMismatch this indicates data corruption.
	ErrMalformedHash = errors.New("stored password hash is malformed")

	// ErrIntegrity is returned when the store yields more rows than the
	// schema's uniqueness guarantees allow.
	ErrIntegrity = errors.New("data integrity violation")
)
