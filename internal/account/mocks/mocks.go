// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package mocks provides testify mocks for account interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/authd/authd/internal/account"
	"github.com/authd/authd/internal/notify"
	"github.com/authd/authd/internal/token"
)

// testingT is the subset of *testing.T the mock constructors need.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository mocks account.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository that asserts its
// expectations during test cleanup.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) CreateUserWithProfile(ctx context.Context, q account.Querier, nu account.NewUser) (ulid.ULID, error) {
	args := m.Called(ctx, q, nu)
	if args.Get(0) == nil {
		return ulid.ULID{}, args.Error(1)
	}
	return args.Get(0).(ulid.ULID), args.Error(1)
}

func (m *MockUserRepository) FindActiveByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUserRepository) FindActiveByEmail(ctx context.Context, email string) (*account.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUserRepository) FindActiveByIDAndEmail(ctx context.Context, id ulid.ULID, email string) (*account.User, error) {
	args := m.Called(ctx, id, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.User), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUserRepository) Activate(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPasswordHasher mocks account.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher that asserts its
// expectations during test cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, encodedHash string) error {
	args := m.Called(password, encodedHash)
	return args.Error(0)
}

// MockTokenBroker mocks account.TokenBroker.
type MockTokenBroker struct {
	mock.Mock
}

// NewMockTokenBroker creates a MockTokenBroker that asserts its
// expectations during test cleanup.
func NewMockTokenBroker(t testingT) *MockTokenBroker {
	m := &MockTokenBroker{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenBroker) Issue(ctx context.Context, userID string, purpose token.Purpose, ttl time.Duration) (string, error) {
	args := m.Called(ctx, userID, purpose, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockTokenBroker) Resolve(ctx context.Context, tok string) (token.Claims, error) {
	args := m.Called(ctx, tok)
	if args.Get(0) == nil {
		return token.Claims{}, args.Error(1)
	}
	return args.Get(0).(token.Claims), args.Error(1)
}

func (m *MockTokenBroker) Revoke(ctx context.Context, tok string) error {
	args := m.Called(ctx, tok)
	return args.Error(0)
}

// MockDispatcher mocks notify.Dispatcher.
type MockDispatcher struct {
	mock.Mock
}

// NewMockDispatcher creates a MockDispatcher that asserts its
// expectations during test cleanup.
func NewMockDispatcher(t testingT) *MockDispatcher {
	m := &MockDispatcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockDispatcher) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockDB mocks account.DB.
type MockDB struct {
	mock.Mock
}

// NewMockDB creates a MockDB that asserts its expectations during test
// cleanup.
func NewMockDB(t testingT) *MockDB {
	m := &MockDB{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockDB) Begin(ctx context.Context) (account.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(account.Tx), args.Error(1)
}

// MockTx mocks account.Tx. The Querier methods are present to satisfy
// the interface; workflow tests mock the repository above them, so only
// Commit and Rollback carry expectations.
type MockTx struct {
	mock.Mock
}

// NewMockTx creates a MockTx that asserts its expectations during test
// cleanup.
func NewMockTx(t testingT) *MockTx {
	m := &MockTx{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *MockTx) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *MockTx) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSessionWriter mocks account.SessionWriter.
type MockSessionWriter struct {
	mock.Mock
}

// NewMockSessionWriter creates a MockSessionWriter that asserts its
// expectations during test cleanup.
func NewMockSessionWriter(t testingT) *MockSessionWriter {
	m := &MockSessionWriter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionWriter) Renew(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionWriter) Insert(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// Compile-time interface checks.
var (
	_ account.UserRepository = (*MockUserRepository)(nil)
	_ account.PasswordHasher = (*MockPasswordHasher)(nil)
	_ account.TokenBroker    = (*MockTokenBroker)(nil)
	_ notify.Dispatcher      = (*MockDispatcher)(nil)
	_ account.DB             = (*MockDB)(nil)
	_ account.Tx             = (*MockTx)(nil)
	_ account.SessionWriter  = (*MockSessionWriter)(nil)
)
