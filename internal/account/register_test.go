// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package account_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authd/authd/internal/account"
	"github.com/authd/authd/internal/account/mocks"
	"github.com/authd/authd/internal/hashwork"
	"github.com/authd/authd/internal/notify"
	"github.com/authd/authd/internal/token"
	"github.com/authd/authd/pkg/errutil"
)

func testWorkers() *hashwork.Pool {
	return hashwork.New(2, time.Second)
}

type registrationDeps struct {
	db         account.DB
	users      account.UserRepository
	hasher     account.PasswordHasher
	workers    *hashwork.Pool
	broker     account.TokenBroker
	dispatcher notify.Dispatcher
	ttl        time.Duration
}

func validRegistrationDeps(t *testing.T) registrationDeps {
	return registrationDeps{
		db:         mocks.NewMockDB(t),
		users:      mocks.NewMockUserRepository(t),
		hasher:     mocks.NewMockPasswordHasher(t),
		workers:    testWorkers(),
		broker:     mocks.NewMockTokenBroker(t),
		dispatcher: mocks.NewMockDispatcher(t),
		ttl:        15 * time.Minute,
	}
}

func TestNewRegistrationService_MissingDependencies(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*registrationDeps)
		expectError string
	}{
		{"nil db", func(d *registrationDeps) { d.db = nil }, "db is required"},
		{"nil user repository", func(d *registrationDeps) { d.users = nil }, "user repository is required"},
		{"nil hasher", func(d *registrationDeps) { d.hasher = nil }, "password hasher is required"},
		{"nil worker pool", func(d *registrationDeps) { d.workers = nil }, "hash worker pool is required"},
		{"nil broker", func(d *registrationDeps) { d.broker = nil }, "token broker is required"},
		{"nil dispatcher", func(d *registrationDeps) { d.dispatcher = nil }, "notification dispatcher is required"},
		{"zero ttl", func(d *registrationDeps) { d.ttl = 0 }, "verification ttl must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := validRegistrationDeps(t)
			tt.mutate(&deps)

			svc, err := account.NewRegistrationService(
				deps.db, deps.users, deps.hasher, deps.workers,
				deps.broker, deps.dispatcher, deps.ttl, nil, nil)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestRegistrationService_Register(t *testing.T) {
	ctx := context.Background()

	newService := func(t *testing.T) (*account.RegistrationService, *mocks.MockDB, *mocks.MockUserRepository, *mocks.MockPasswordHasher, *mocks.MockTokenBroker, *mocks.MockDispatcher) {
		db := mocks.NewMockDB(t)
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		broker := mocks.NewMockTokenBroker(t)
		dispatcher := mocks.NewMockDispatcher(t)

		svc, err := account.NewRegistrationService(
			db, users, hasher, testWorkers(), broker, dispatcher,
			15*time.Minute, nil, nil)
		require.NoError(t, err)
		return svc, db, users, hasher, broker, dispatcher
	}

	t.Run("successful registration commits after dispatch", func(t *testing.T) {
		svc, db, users, hasher, broker, dispatcher := newService(t)
		tx := mocks.NewMockTx(t)
		userID := ulid.Make()

		db.On("Begin", ctx).Return(tx, nil)
		hasher.On("Hash", "password123").Return("$argon2id$hashed", nil)
		users.On("CreateUserWithProfile", ctx, tx, account.NewUser{
			Email:        "jane@example.com",
			PasswordHash: "$argon2id$hashed",
			FirstName:    "Jane",
			LastName:     "Doe",
		}).Return(userID, nil)
		broker.On("Issue", ctx, userID.String(), token.PurposeEmailVerification, 15*time.Minute).
			Return("tok-abc", nil)
		dispatcher.On("Send", ctx, notify.Message{
			Subject:   account.VerificationSubject,
			UserID:    userID.String(),
			Email:     "jane@example.com",
			FirstName: "Jane",
			LastName:  "Doe",
			Template:  notify.TemplateVerificationEmail,
			Token:     "tok-abc",
		}).Return(nil)
		tx.On("Commit", ctx).Return(nil)

		got, err := svc.Register(ctx, "jane@example.com", "password123", "Jane", "Doe")
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("invalid email fails before any side effect", func(t *testing.T) {
		svc, _, _, _, _, _ := newService(t)

		_, err := svc.Register(ctx, "not-an-email", "password123", "Jane", "Doe")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_EMAIL")
	})

	t.Run("empty password fails before any side effect", func(t *testing.T) {
		svc, _, _, _, _, _ := newService(t)

		_, err := svc.Register(ctx, "jane@example.com", "", "Jane", "Doe")
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrEmptyPassword)
	})

	t.Run("begin failure carries step context", func(t *testing.T) {
		svc, db, _, _, _, _ := newService(t)

		db.On("Begin", ctx).Return(nil, errors.New("pool exhausted"))

		_, err := svc.Register(ctx, "jane@example.com", "password123", "Jane", "Doe")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REGISTER_BEGIN_FAILED")
	})

	t.Run("duplicate email rolls back and surfaces sentinel", func(t *testing.T) {
		svc, db, users, hasher, _, _ := newService(t)
		tx := mocks.NewMockTx(t)

		db.On("Begin", ctx).Return(tx, nil)
		hasher.On("Hash", "password123").Return("$argon2id$hashed", nil)
		users.On("CreateUserWithProfile", ctx, tx, mock.AnythingOfType("account.NewUser")).
			Return(nil, account.ErrDuplicateEmail)
		tx.On("Rollback", ctx).Return(nil)

		_, err := svc.Register(ctx, "jane@example.com", "password123", "Jane", "Doe")
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrDuplicateEmail)
	})

	t.Run("dispatch failure rolls back and revokes the token", func(t *testing.T) {
		svc, db, users, hasher, broker, dispatcher := newService(t)
		tx := mocks.NewMockTx(t)
		userID := ulid.Make()

		db.On("Begin", ctx).Return(tx, nil)
		hasher.On("Hash", "password123").Return("$argon2id$hashed", nil)
		users.On("CreateUserWithProfile", ctx, tx, mock.AnythingOfType("account.NewUser")).
			Return(userID, nil)
		broker.On("Issue", ctx, userID.String(), token.PurposeEmailVerification, 15*time.Minute).
			Return("tok-abc", nil)
		dispatcher.On("Send", ctx, mock.AnythingOfType("notify.Message")).
			Return(notify.ErrDispatchFailed)
		tx.On("Rollback", ctx).Return(nil)
		broker.On("Revoke", ctx, "tok-abc").Return(nil)

		_, err := svc.Register(ctx, "jane@example.com", "password123", "Jane", "Doe")
		require.Error(t, err)
		assert.ErrorIs(t, err, notify.ErrDispatchFailed)
		errutil.AssertErrorContext(t, err, "step", "notification_sent")
	})

	t.Run("commit failure aborts with the email already out", func(t *testing.T) {
		svc, db, users, hasher, broker, dispatcher := newService(t)
		tx := mocks.NewMockTx(t)
		userID := ulid.Make()

		db.On("Begin", ctx).Return(tx, nil)
		hasher.On("Hash", "password123").Return("$argon2id$hashed", nil)
		users.On("CreateUserWithProfile", ctx, tx, mock.AnythingOfType("account.NewUser")).
			Return(userID, nil)
		broker.On("Issue", ctx, userID.String(), token.PurposeEmailVerification, 15*time.Minute).
			Return("tok-abc", nil)
		dispatcher.On("Send", ctx, mock.AnythingOfType("notify.Message")).Return(nil)
		tx.On("Commit", ctx).Return(errors.New("connection reset"))
		tx.On("Rollback", ctx).Return(errors.New("tx already closed"))
		broker.On("Revoke", ctx, "tok-abc").Return(nil)

		_, err := svc.Register(ctx, "jane@example.com", "password123", "Jane", "Doe")
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "step", "committed")
	})

	t.Run("hash failure never touches the repository", func(t *testing.T) {
		svc, db, _, hasher, _, _ := newService(t)
		tx := mocks.NewMockTx(t)

		db.On("Begin", ctx).Return(tx, nil)
		hasher.On("Hash", "password123").Return("", errors.New("argon2 parameters rejected"))
		tx.On("Rollback", ctx).Return(nil)

		_, err := svc.Register(ctx, "jane@example.com", "password123", "Jane", "Doe")
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "step", "credentials_hashed")
	})
}

func TestRegistrationService_ActivateAccount(t *testing.T) {
	ctx := context.Background()

	newService := func(t *testing.T) (*account.RegistrationService, *mocks.MockUserRepository, *mocks.MockTokenBroker) {
		db := mocks.NewMockDB(t)
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		broker := mocks.NewMockTokenBroker(t)
		dispatcher := mocks.NewMockDispatcher(t)

		svc, err := account.NewRegistrationService(
			db, users, hasher, testWorkers(), broker, dispatcher,
			15*time.Minute, nil, nil)
		require.NoError(t, err)
		return svc, users, broker
	}

	t.Run("activates and revokes on success", func(t *testing.T) {
		svc, users, broker := newService(t)
		userID := ulid.Make()

		broker.On("Resolve", ctx, "tok-abc").Return(token.Claims{
			UserID:  userID.String(),
			Purpose: token.PurposeEmailVerification,
		}, nil)
		users.On("Activate", ctx, userID).Return(nil)
		broker.On("Revoke", ctx, "tok-abc").Return(nil)

		require.NoError(t, svc.ActivateAccount(ctx, "tok-abc"))
	})

	t.Run("rejects a reset-purpose token as unknown", func(t *testing.T) {
		svc, _, broker := newService(t)

		broker.On("Resolve", ctx, "tok-abc").Return(token.Claims{
			UserID:  ulid.Make().String(),
			Purpose: token.PurposePasswordReset,
		}, nil)

		err := svc.ActivateAccount(ctx, "tok-abc")
		require.Error(t, err)
		assert.ErrorIs(t, err, token.ErrExpiredOrUnknown)
		errutil.AssertErrorCode(t, err, "TOKEN_PURPOSE_MISMATCH")
	})

	t.Run("unknown token passes through", func(t *testing.T) {
		svc, _, broker := newService(t)

		broker.On("Resolve", ctx, "tok-abc").Return(nil, token.ErrExpiredOrUnknown)

		err := svc.ActivateAccount(ctx, "tok-abc")
		assert.ErrorIs(t, err, token.ErrExpiredOrUnknown)
	})

	t.Run("malformed subject is rejected", func(t *testing.T) {
		svc, _, broker := newService(t)

		broker.On("Resolve", ctx, "tok-abc").Return(token.Claims{
			UserID:  "not-a-ulid",
			Purpose: token.PurposeEmailVerification,
		}, nil)

		err := svc.ActivateAccount(ctx, "tok-abc")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "TOKEN_INVALID_SUBJECT")
	})

	t.Run("revoke failure after activation is not fatal", func(t *testing.T) {
		svc, users, broker := newService(t)
		userID := ulid.Make()

		broker.On("Resolve", ctx, "tok-abc").Return(token.Claims{
			UserID:  userID.String(),
			Purpose: token.PurposeEmailVerification,
		}, nil)
		users.On("Activate", ctx, userID).Return(nil)
		broker.On("Revoke", ctx, "tok-abc").Return(errors.New("redis timeout"))

		require.NoError(t, svc.ActivateAccount(ctx, "tok-abc"))
	})
}
