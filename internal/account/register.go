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

// RegistrationStep tags where a registration stands or failed. Every
// failure carries the step it occurred in, so each transition's error
// path is observable and testable on its own.
type RegistrationStep string

// Registration state machine states, in order.
const (
	StepStarted           RegistrationStep = "started"
	StepCredentialsHashed RegistrationStep = "credentials_hashed"
	StepPersistedPending  RegistrationStep = "persisted_pending"
	StepTokenIssued       RegistrationStep = "token_issued"
	StepNotificationSent  RegistrationStep = "notification_sent"
	StepCommitted         RegistrationStep = "committed"
)

// VerificationSubject is the subject line of the verification message.
const VerificationSubject = "Authd - Let's get you verified"

// TokenBroker is the ephemeral token contract workflows depend on.
// Implemented by token.Broker.
type TokenBroker interface {
	Issue(ctx context.Context, userID string, purpose token.Purpose, ttl time.Duration) (string, error)
	Resolve(ctx context.Context, tok string) (token.Claims, error)
	Revoke(ctx context.Context, tok string) error
}

// RegistrationService creates accounts atomically: user + profile rows,
// a verification token, and the verification notification either all
// take effect or none do.
type RegistrationService struct {
	db              DB
	users           UserRepository
	hasher          PasswordHasher
	workers         *hashwork.Pool
	broker          TokenBroker
	dispatcher      notify.Dispatcher
	verificationTTL time.Duration
	metrics         *Metrics
	logger          *slog.Logger
}

// NewRegistrationService creates a RegistrationService. All
// dependencies are required except metrics and logger, which default
// to no-op metrics and slog.Default.
func NewRegistrationService(
	db DB,
	users UserRepository,
	hasher PasswordHasher,
	workers *hashwork.Pool,
	broker TokenBroker,
	dispatcher notify.Dispatcher,
	verificationTTL time.Duration,
	metrics *Metrics,
	logger *slog.Logger,
) (*RegistrationService, error) {
	if db == nil {
		return nil, oops.Errorf("db is required")
	}
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
	if verificationTTL <= 0 {
		return nil, oops.Errorf("verification ttl must be positive")
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationService{
		db:              db,
		users:           users,
		hasher:          hasher,
		workers:         workers,
		broker:          broker,
		dispatcher:      dispatcher,
		verificationTTL: verificationTTL,
		metrics:         metrics,
		logger:          logger,
	}, nil
}

// registration carries one attempt through the state machine.
type registration struct {
	email     string
	password  string
	firstName string
	lastName  string

	state  RegistrationStep
	tx     Tx
	hash   string
	userID ulid.ULID
	token  string
}

// registrationSteps lists the transitions in order. Register walks
// them; a failing step aborts the open transaction.
func (s *RegistrationService) registrationSteps() []struct {
	to  RegistrationStep
	run func(ctx context.Context, reg *registration) error
} {
	return []struct {
		to  RegistrationStep
		run func(ctx context.Context, reg *registration) error
	}{
		{StepCredentialsHashed, s.hashCredentials},
		{StepPersistedPending, s.persistPending},
		{StepTokenIssued, s.issueVerificationToken},
		{StepNotificationSent, s.dispatchVerification},
		{StepCommitted, s.commit},
	}
}

// Register creates an account. The relational transaction commits only
// after the verification notification was dispatched: no email sent
// means no account persisted. The small residual risk of "email sent,
// commit failed" surfaces as an internal error; the inverse — an
// account nobody can ever verify — cannot happen.
//
// A duplicate email yields an error matching ErrDuplicateEmail; the
// existing account is untouched.
func (s *RegistrationService) Register(ctx context.Context, email, password, firstName, lastName string) (ulid.ULID, error) {
	if err := ValidateRegistration(email, firstName, lastName); err != nil {
		s.metrics.Registrations.WithLabelValues(OutcomeError).Inc()
		return ulid.ULID{}, err
	}
	if password == "" {
		s.metrics.Registrations.WithLabelValues(OutcomeError).Inc()
		return ulid.ULID{}, ErrEmptyPassword
	}

	reg := &registration{
		email:     email,
		password:  password,
		firstName: firstName,
		lastName:  lastName,
		state:     StepStarted,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.metrics.Registrations.WithLabelValues(OutcomeError).Inc()
		return ulid.ULID{}, oops.Code("REGISTER_BEGIN_FAILED").
			With("step", string(StepStarted)).
			Wrap(err)
	}
	reg.tx = tx

	for _, step := range s.registrationSteps() {
		if err := step.run(ctx, reg); err != nil {
			s.abort(ctx, reg)
			s.recordFailure(err)
			return ulid.ULID{}, oops.With("step", string(step.to)).Wrap(err)
		}
		reg.state = step.to
	}

	s.metrics.Registrations.WithLabelValues(OutcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", reg.userID.String()),
	)
	return reg.userID, nil
}

func (s *RegistrationService) hashCredentials(ctx context.Context, reg *registration) error {
	hash, err := s.workers.Do(ctx, func() (string, error) {
		return s.hasher.Hash(reg.password)
	})
	if err != nil {
		return err
	}
	reg.hash = hash
	return nil
}

func (s *RegistrationService) persistPending(ctx context.Context, reg *registration) error {
	userID, err := s.users.CreateUserWithProfile(ctx, reg.tx, NewUser{
		Email:        reg.email,
		PasswordHash: reg.hash,
		FirstName:    reg.firstName,
		LastName:     reg.lastName,
	})
	if err != nil {
		return err
	}
	reg.userID = userID
	return nil
}

func (s *RegistrationService) issueVerificationToken(ctx context.Context, reg *registration) error {
	tok, err := s.broker.Issue(ctx, reg.userID.String(), token.PurposeEmailVerification, s.verificationTTL)
	if err != nil {
		return err
	}
	s.metrics.TokensIssued.WithLabelValues(string(token.PurposeEmailVerification)).Inc()
	reg.token = tok
	return nil
}

func (s *RegistrationService) dispatchVerification(ctx context.Context, reg *registration) error {
	err := s.dispatcher.Send(ctx, notify.Message{
		Subject:   VerificationSubject,
		UserID:    reg.userID.String(),
		Email:     reg.email,
		FirstName: reg.firstName,
		LastName:  reg.lastName,
		Template:  notify.TemplateVerificationEmail,
		Token:     reg.token,
	})
	if err != nil {
		return oops.Code("REGISTER_DISPATCH_FAILED").Wrap(err)
	}
	return nil
}

func (s *RegistrationService) commit(ctx context.Context, reg *registration) error {
	if err := reg.tx.Commit(ctx); err != nil {
		// The verification email is already out; its token now references
		// an account that does not exist. Fatal to this request.
		return oops.Code("REGISTER_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// abort rolls back the open transaction and drops an issued-but-unused
// verification token. Rollback after a failed commit is a no-op error
// we deliberately ignore.
func (s *RegistrationService) abort(ctx context.Context, reg *registration) {
	if err := reg.tx.Rollback(ctx); err != nil {
		s.logger.WarnContext(ctx, "registration rollback failed",
			slog.String("step", string(reg.state)),
			slog.String("error", err.Error()),
		)
	}
	if reg.token != "" {
		if err := s.broker.Revoke(ctx, reg.token); err != nil {
			// Best effort - the token expires on its own.
			s.logger.WarnContext(ctx, "revoking orphaned verification token failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *RegistrationService) recordFailure(err error) {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		s.metrics.Registrations.WithLabelValues(OutcomeDuplicate).Inc()
	default:
		s.metrics.Registrations.WithLabelValues(OutcomeError).Inc()
	}
}

// ActivateAccount consumes an email-verification token: the referenced
// user is marked active and the token revoked. A token issued for any
// other purpose is rejected as if it were unknown.
func (s *RegistrationService) ActivateAccount(ctx context.Context, tok string) error {
	claims, err := s.broker.Resolve(ctx, tok)
	if err != nil {
		return err
	}
	if claims.Purpose != token.PurposeEmailVerification {
		return oops.Code("TOKEN_PURPOSE_MISMATCH").
			With("purpose", string(claims.Purpose)).
			Wrap(token.ErrExpiredOrUnknown)
	}

	userID, err := ulid.Parse(claims.UserID)
	if err != nil {
		return oops.Code("TOKEN_INVALID_SUBJECT").Wrap(err)
	}

	if err := s.users.Activate(ctx, userID); err != nil {
		return err
	}

	if err := s.broker.Revoke(ctx, tok); err != nil {
		// Activation already took effect; the leftover token expires on
		// its own and re-activation is idempotent.
		s.logger.WarnContext(ctx, "revoking consumed verification token failed",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
