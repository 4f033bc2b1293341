// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package postgres provides PostgreSQL implementations of account
// persistence.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authd/authd/internal/account"
)

// selectUserWithProfile is the base projection every lookup variant
// shares: one user row joined with its profile row.
const selectUserWithProfile = `
	SELECT u.id, u.email, u.password, u.first_name, u.last_name,
	       u.is_active, u.is_staff, u.is_superuser, u.thumbnail, u.date_joined,
	       p.id, p.user_id, p.phone_number, p.birth_date, p.github_link
	FROM users u
	JOIN user_profile p ON p.user_id = u.id`

// UserRepository implements account.UserRepository using PostgreSQL.
// Read methods run against the pool; CreateUserWithProfile runs against
// the querier the caller supplies, so the caller owns the transaction
// boundary.
type UserRepository struct {
	db account.Querier
}

// NewUserRepository creates a new UserRepository. db is used for all
// operations that do not take an explicit querier.
func NewUserRepository(db account.Querier) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUserWithProfile inserts a user and its 1:1 profile row against q.
// The profile insert is idempotent under conflict: an existing profile
// row for the same user id is treated as success, not as a duplicate.
func (r *UserRepository) CreateUserWithProfile(ctx context.Context, q account.Querier, nu account.NewUser) (ulid.ULID, error) {
	userID := ulid.Make()
	now := time.Now().UTC()

	_, err := q.Exec(ctx, `
		INSERT INTO users (id, email, password, first_name, last_name,
		                   is_active, is_staff, is_superuser, date_joined)
		VALUES ($1, $2, $3, $4, $5, TRUE, FALSE, FALSE, $6)
	`, userID.String(), nu.Email, nu.PasswordHash, nu.FirstName, nu.LastName, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ulid.ULID{}, oops.Code("ACCOUNT_DUPLICATE_EMAIL").
				With("email", nu.Email).
				Wrap(account.ErrDuplicateEmail)
		}
		return ulid.ULID{}, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO user_profile (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, ulid.Make().String(), userID.String())
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert user profile").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return userID, nil
}

// FindActiveByID retrieves an active user with its profile by ID.
func (r *UserRepository) FindActiveByID(ctx context.Context, id ulid.ULID) (*account.User, error) {
	return r.findActive(ctx,
		selectUserWithProfile+` WHERE u.id = $1 AND u.is_active = TRUE`,
		id.String())
}

// FindActiveByEmail retrieves an active user with its profile by exact
// email match. Email is compared as stored, case-sensitively.
func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (*account.User, error) {
	return r.findActive(ctx,
		selectUserWithProfile+` WHERE u.email = $1 AND u.is_active = TRUE`,
		email)
}

// FindActiveByIDAndEmail retrieves an active user matching both criteria.
func (r *UserRepository) FindActiveByIDAndEmail(ctx context.Context, id ulid.ULID, email string) (*account.User, error) {
	return r.findActive(ctx,
		selectUserWithProfile+` WHERE u.id = $1 AND u.email = $2 AND u.is_active = TRUE`,
		id.String(), email)
}

// findActive executes one of the named lookup variants and enforces the
// exactly-one-row contract. More than one row means the store violated
// a uniqueness guarantee; that is surfaced, never truncated.
func (r *UserRepository) findActive(ctx context.Context, query string, args ...any) (*account.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "query active user").
			Wrap(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
				With("operation", "iterate active user rows").
				Wrap(err)
		}
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(account.ErrNotFound)
	}

	user, err := scanUser(rows)
	if err != nil {
		return nil, err
	}

	if rows.Next() {
		return nil, oops.Code("ACCOUNT_INTEGRITY").
			With("user_id", user.ID.String()).
			Wrapf(account.ErrIntegrity, "lookup matched more than one active user")
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "iterate active user rows").
			Wrap(err)
	}

	return user, nil
}

// UpdatePassword replaces the password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET password = $2 WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(account.ErrNotFound)
	}
	return nil
}

// Activate marks a user as active. Activating an already-active user
// is a no-op success.
func (r *UserRepository) Activate(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET is_active = TRUE WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_ACTIVATE_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(account.ErrNotFound)
	}
	return nil
}

// scanUser scans the joined user+profile projection.
func scanUser(row pgx.Row) (*account.User, error) {
	var (
		uIDStr      string
		email       string
		password    string
		firstName   string
		lastName    string
		isActive    bool
		isStaff     bool
		isSuperuser bool
		thumbnail   *string
		dateJoined  time.Time
		pIDStr      string
		pUserIDStr  string
		phoneNumber *string
		birthDate   *time.Time
		githubLink  *string
	)

	err := row.Scan(
		&uIDStr, &email, &password, &firstName, &lastName,
		&isActive, &isStaff, &isSuperuser, &thumbnail, &dateJoined,
		&pIDStr, &pUserIDStr, &phoneNumber, &birthDate, &githubLink,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan user row").
			Wrap(err)
	}

	uID, err := ulid.Parse(uIDStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("id", uIDStr).
			Wrap(err)
	}
	pID, err := ulid.Parse(pIDStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("id", pIDStr).
			Wrap(err)
	}
	pUserID, err := ulid.Parse(pUserIDStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("id", pUserIDStr).
			Wrap(err)
	}

	return &account.User{
		ID:           uID,
		Email:        email,
		PasswordHash: password,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     isActive,
		IsStaff:      isStaff,
		IsSuperuser:  isSuperuser,
		Thumbnail:    thumbnail,
		DateJoined:   dateJoined,
		Profile: account.UserProfile{
			ID:          pID,
			UserID:      pUserID,
			PhoneNumber: phoneNumber,
			BirthDate:   birthDate,
			GithubLink:  githubLink,
		},
	}, nil
}

// Compile-time interface check.
var _ account.UserRepository = (*UserRepository)(nil)
