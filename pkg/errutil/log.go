// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package errutil provides helpers for working with structured errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{
			"error", oopsErr.Error(),
		}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
	} else {
		logger.Error(msg, "error", err)
	}
}

// Code returns the oops error code attached to err, or "" if err is nil,
// not an oops error, or carries no code. Useful for mapping errors to
// transport-level responses without unwrapping by hand.
func Code(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, ok := oopsErr.Code().(string)
	if !ok {
		return ""
	}
	return code
}
