// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package account

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/authd/authd/internal/hashwork"
)

// SessionWriter is the session contract the login workflow needs: an
// identifier rotation and claim writes. Implemented by
// session.Session.
type SessionWriter interface {
	// Renew rotates the session identifier before claims are written.
	Renew(ctx context.Context) error

	// Insert writes one claim into the session.
	Insert(ctx context.Context, key, value string) error
}

// Session claim keys written on successful login.
const (
	ClaimUserID    = "user_id"
	ClaimUserEmail = "user_email"
)

// AuthService authenticates users and establishes sessions.
type AuthService struct {
	users   UserRepository
	hasher  PasswordHasher
	workers *hashwork.Pool
	metrics *Metrics
	logger  *slog.Logger
}

// NewAuthService creates an AuthService. Metrics and logger are
// optional.
func NewAuthService(
	users UserRepository,
	hasher PasswordHasher,
	workers *hashwork.Pool,
	metrics *Metrics,
	logger *slog.Logger,
) (*AuthService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if workers == nil {
		return nil, oops.Errorf("hash worker pool is required")
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:   users,
		hasher:  hasher,
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Login authenticates by email and password and, on success, rotates
// the session identifier and writes the user's claims into it.
//
// Both "no such active account" and "wrong password" surface as errors
// the transport layer maps to indistinguishable responses, so login
// cannot be used to enumerate accounts. A malformed stored hash is an
// internal fault, never reported as a simple mismatch.
//
// Any claim-write failure fails the whole login; the caller must
// discard the session rather than leave it half-authenticated.
func (s *AuthService) Login(ctx context.Context, sess SessionWriter, email, password string) (UserView, error) {
	if sess == nil {
		return UserView{}, oops.Errorf("session is required")
	}

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Logins.WithLabelValues(OutcomeNotFound).Inc()
			return UserView{}, err
		}
		s.metrics.Logins.WithLabelValues(OutcomeError).Inc()
		return UserView{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find active user by email").
			Wrap(err)
	}

	// Verification runs on the dedicated worker pool; the serving
	// goroutine suspends until it completes.
	_, err = s.workers.Do(ctx, func() (string, error) {
		return "", s.hasher.Verify(password, user.PasswordHash)
	})
	if err != nil {
		if errors.Is(err, ErrCredentialMismatch) {
			s.metrics.Logins.WithLabelValues(OutcomeMismatch).Inc()
			return UserView{}, err
		}
		s.metrics.Logins.WithLabelValues(OutcomeError).Inc()
		if errors.Is(err, ErrMalformedHash) {
			s.logger.ErrorContext(ctx, "stored password hash is malformed",
				slog.String("user_id", user.ID.String()),
			)
		}
		return UserView{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}

	// Rotate before writing claims so a pre-authentication session
	// identifier never names an authenticated session.
	if err := sess.Renew(ctx); err != nil {
		s.metrics.Logins.WithLabelValues(OutcomeError).Inc()
		return UserView{}, oops.Code("AUTH_SESSION_FAILED").
			With("operation", "renew session").
			Wrap(err)
	}
	if err := sess.Insert(ctx, ClaimUserID, user.ID.String()); err != nil {
		s.metrics.Logins.WithLabelValues(OutcomeError).Inc()
		return UserView{}, oops.Code("AUTH_SESSION_FAILED").
			With("operation", "write user_id claim").
			Wrap(err)
	}
	if err := sess.Insert(ctx, ClaimUserEmail, user.Email); err != nil {
		s.metrics.Logins.WithLabelValues(OutcomeError).Inc()
		return UserView{}, oops.Code("AUTH_SESSION_FAILED").
			With("operation", "write user_email claim").
			Wrap(err)
	}

	s.metrics.Logins.WithLabelValues(OutcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID.String()),
	)
	return user.View(), nil
}
