// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package account implements the account and credential lifecycle
// engine: atomic account creation, authentication, and ephemeral-token
// backed verification and password-reset flows.
//
// # Domain Types
//
// User and its 1:1 UserProfile are created together, in one
// transaction, by the registration workflow. UserView is the only
// shape handed to transports; it never carries the password hash.
//
// # Services
//
//   - RegistrationService - account creation and activation
//   - AuthService - login and session establishment
//   - PasswordResetService - reset request and confirmation
//
// Services coordinate the relational store (transactional), the
// credential hasher (CPU-bound, offloaded to internal/hashwork), the
// token broker (Redis-backed, internal/token) and the notification
// dispatcher (internal/notify). Registration commits its transaction
// only after the verification notification is dispatched: on any
// partial failure the account is not persisted (fail closed).
package account
