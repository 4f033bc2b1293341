// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package account

import (
	"context"
	"net/mail"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Name length constraints for registration input.
const (
	MaxEmailLength = 254
	MaxNameLength  = 100
)

// User is an identity and credential record. ID and DateJoined are
// assigned at creation and never change afterwards.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	Thumbnail    *string
	DateJoined   time.Time
	Profile      UserProfile
}

// UserProfile is the 1:1 extension row of a User. It is created in the
// same transaction as its User and never exists independently.
type UserProfile struct {
	ID          ulid.ULID
	UserID      ulid.ULID
	PhoneNumber *string
	BirthDate   *time.Time
	GithubLink  *string
}

// UserView is the sanitized projection returned to callers. It carries
// everything a client may see; the password hash is deliberately absent.
type UserView struct {
	ID          ulid.ULID   `json:"id"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	IsActive    bool        `json:"is_active"`
	IsStaff     bool        `json:"is_staff"`
	IsSuperuser bool        `json:"is_superuser"`
	Thumbnail   *string     `json:"thumbnail"`
	DateJoined  time.Time   `json:"date_joined"`
	Profile     ProfileView `json:"profile"`
}

// ProfileView is the client-visible shape of a UserProfile.
type ProfileView struct {
	ID          ulid.ULID  `json:"id"`
	UserID      ulid.ULID  `json:"user_id"`
	PhoneNumber *string    `json:"phone_number"`
	BirthDate   *time.Time `json:"birth_date"`
	GithubLink  *string    `json:"github_link"`
}

// View returns the sanitized projection of the user.
func (u *User) View() UserView {
	return UserView{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		Thumbnail:   u.Thumbnail,
		DateJoined:  u.DateJoined,
		Profile: ProfileView{
			ID:          u.Profile.ID,
			UserID:      u.Profile.UserID,
			PhoneNumber: u.Profile.PhoneNumber,
			BirthDate:   u.Profile.BirthDate,
			GithubLink:  u.Profile.GithubLink,
		},
	}
}

// NewUser is validated registration input. PasswordHash is filled in by
// the registration workflow after hashing, never by callers.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// ValidateRegistration checks the shape of registration input.
// Password strength policy lives upstream; this guards the invariants
// the store relies on.
func ValidateRegistration(email, firstName, lastName string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if firstName == "" || len(firstName) > MaxNameLength {
		return oops.Code("ACCOUNT_INVALID_NAME").
			With("field", "first_name").
			Errorf("first name must be 1-%d characters", MaxNameLength)
	}
	if lastName == "" || len(lastName) > MaxNameLength {
		return oops.Code("ACCOUNT_INVALID_NAME").
			With("field", "last_name").
			Errorf("last name must be 1-%d characters", MaxNameLength)
	}
	return nil
}

// ValidateEmail checks that the address parses as a bare RFC 5322
// address without a display name.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("ACCOUNT_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email address is not valid")
	}
	return nil
}

// Querier is the subset of pgx operations repositories execute against.
// Both *pgxpool.Pool and pgx.Tx satisfy it, so the caller decides
// whether a call runs inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is a transaction handle owned by a workflow. Repository writes
// that must be atomic run against it; the workflow alone commits.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB hands out transactions. Implemented by the pgx pool adapter in
// internal/account/postgres.
type DB interface {
	Begin(ctx context.Context) (Tx, error)
}

// UserRepository manages user persistence.
//
// Lookup variants are named explicitly rather than composed from
// optional criteria, so "no predicate supplied" is unrepresentable.
// Every variant appends the is_active = true predicate.
type UserRepository interface {
	// CreateUserWithProfile inserts a user and its profile row against q.
	// Run it inside a Tx when creation must be atomic with other effects.
	// A duplicate email yields ErrDuplicateEmail.
	CreateUserWithProfile(ctx context.Context, q Querier, nu NewUser) (ulid.ULID, error)

	// FindActiveByID retrieves an active user with its profile by ID.
	FindActiveByID(ctx context.Context, id ulid.ULID) (*User, error)

	// FindActiveByEmail retrieves an active user with its profile by
	// exact email match.
	FindActiveByEmail(ctx context.Context, email string) (*User, error)

	// FindActiveByIDAndEmail retrieves an active user matching both
	// criteria.
	FindActiveByIDAndEmail(ctx context.Context, id ulid.ULID, email string) (*User, error)

	// UpdatePassword replaces the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Activate marks a user as active. Idempotent.
	Activate(ctx context.Context, id ulid.ULID) error
}
