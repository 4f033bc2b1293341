// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authd/authd/internal/hashwork"
	"github.com/authd/authd/internal/notify"
	"github.com/authd/authd/internal/token"
)

// ResetSubject is the subject line of the reset message.
const ResetSubject = "Authd - Password Reset Instructions"

// PasswordResetService issues reset tokens and applies confirmed
// resets. Requesting a reset performs no relational mutation, so there
// is nothing to roll back on failure.
type PasswordResetService struct {
	users      UserRepository
	hasher     PasswordHasher
	workers    *hashwork.Pool
	broker     TokenBroker
	dispatcher notify.Dispatcher
	resetTTL   time.Duration
	metrics    *Metrics
	logger     *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService. Metrics and
// logger are optional.
func NewPasswordResetService(
	users UserRepository,
	hasher PasswordHasher,
	workers *hashwork.Pool,
	broker TokenBroker,
	dispatcher notify.Dispatcher,
	resetTTL time.Duration,
	metrics *Metrics,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if workers == nil {
		return nil, oops.Errorf("hash worker pool is required")
	}
	if broker == nil {
		return nil, oops.Errorf("token broker is required")
	}
	if dispatcher == nil {
		return nil, oops.Errorf("notification dispatcher is required")
	}
	if resetTTL <= 0 {
		return nil, oops.Errorf("reset ttl must be positive")
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{
		users:      users,
		hasher:     hasher,
		workers:    workers,
		broker:     broker,
		dispatcher: dispatcher,
		resetTTL:   resetTTL,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// RequestReset issues a reset-purpose token for the active user with
// the given email and dispatches the reset notification.
//
// Not-found propagates to the caller: this endpoint exists for
// recovery, and the transport layer answers it with a detailed
// remediation message. The enumeration exposure is a deliberate,
// documented property of this flow - login stays generic.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.ResetRequests.WithLabelValues(OutcomeNotFound).Inc()
			return err
		}
		s.metrics.ResetRequests.WithLabelValues(OutcomeError).Inc()
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find active user by email").
			Wrap(err)
	}

	tok, err := s.broker.Issue(ctx, user.ID.String(), token.PurposePasswordReset, s.resetTTL)
	if err != nil {
		s.metrics.ResetRequests.WithLabelValues(OutcomeError).Inc()
		return err
	}
	s.metrics.TokensIssued.WithLabelValues(string(token.PurposePasswordReset)).Inc()

	err = s.dispatcher.Send(ctx, notify.Message{
		Subject:   ResetSubject,
		UserID:    user.ID.String(),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Template:  notify.TemplatePasswordResetEmail,
		Token:     tok,
	})
	if err != nil {
		s.metrics.ResetRequests.WithLabelValues(OutcomeError).Inc()
		// The issued token is unreachable by anyone; let it expire but
		// try to clean it up.
		if revokeErr := s.broker.Revoke(ctx, tok); revokeErr != nil {
			s.logger.WarnContext(ctx, "revoking undeliverable reset token failed",
				slog.String("error", revokeErr.Error()),
			)
		}
		return oops.Code("RESET_DISPATCH_FAILED").Wrap(err)
	}

	s.metrics.ResetRequests.WithLabelValues(OutcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID.String()),
	)
	return nil
}

// ConfirmReset consumes a reset-purpose token: the new password is
// hashed on the worker pool, the user's credential replaced, and the
// token revoked so it cannot authorize a second reset.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, tok, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}

	claims, err := s.broker.Resolve(ctx, tok)
	if err != nil {
		return err
	}
	if claims.Purpose != token.PurposePasswordReset {
		return oops.Code("TOKEN_PURPOSE_MISMATCH").
			With("purpose", string(claims.Purpose)).
			Wrap(token.ErrExpiredOrUnknown)
	}

	userID, err := ulid.Parse(claims.UserID)
	if err != nil {
		return oops.Code("TOKEN_INVALID_SUBJECT").Wrap(err)
	}

	hash, err := s.workers.Do(ctx, func() (string, error) {
		return s.hasher.Hash(newPassword)
	})
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if err := s.broker.Revoke(ctx, tok); err != nil {
		// The password was already replaced; a replayed token would
		// resolve but can only set a new password for its own subject.
		// Still worth a warning since single-use is the intent.
		s.logger.WarnContext(ctx, "revoking consumed reset token failed",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset confirmed",
		slog.String("user_id", claims.UserID),
	)
	return nil
}
