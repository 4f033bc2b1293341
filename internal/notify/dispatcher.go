// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package notify defines the outbound notification contract.
// Template rendering and the delivery transport live outside this
// service; workflows only depend on the Dispatcher interface.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Template names understood by the rendering layer.
const (
	TemplateVerificationEmail  = "verification_email.html"
	TemplatePasswordResetEmail = "password_reset_email.html"
)

// ErrDispatchFailed is returned when a notification could not be
// handed to the delivery channel.
var ErrDispatchFailed = errors.New("notification dispatch failed")

// Message is one templated notification to a single user. Token is the
// plaintext ephemeral token the rendered message embeds.
type Message struct {
	Subject   string
	UserID    string
	Email     string
	FirstName string
	LastName  string
	Template  string
	Token     string
}

// Dispatcher sends templated messages. Implementations must be safe
// for concurrent use and should wrap transport failures in
// ErrDispatchFailed so workflows can fail closed.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// LogDispatcher writes messages to the structured log instead of
// delivering them. Used in development and as the serve-mode default
// when no relay is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Send logs the message. The token is logged in full: this dispatcher
// exists so the verification and reset flows can be exercised without
// a mail relay.
func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	d.logger.InfoContext(ctx, "notification dispatched",
		slog.String("subject", msg.Subject),
		slog.String("user_id", msg.UserID),
		slog.String("email", msg.Email),
		slog.String("template", msg.Template),
		slog.String("token", msg.Token),
	)
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
