// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/authd/authd/internal/account"
	"github.com/authd/authd/internal/notify"
	"github.com/authd/authd/internal/session"
	"github.com/authd/authd/internal/token"
	"github.com/authd/authd/pkg/errutil"
)

// maxBodyBytes bounds request bodies; account payloads are tiny.
const maxBodyBytes = 1 << 16

// User-facing messages. Kept stable because frontends string-match
// some of them.
const (
	msgRegistered = "Your account was created successfully. Check your email address to " +
		"activate your account as we just sent you an activation link. Ensure you " +
		"activate your account before the link expires"
	msgDuplicateEmail  = "A user with that email address already exists"
	msgBadCredentials  = "Email and password do not match"
	msgSessionError    = "Session management error"
	msgResetSent       = "Password reset instructions have been sent to your email address. " +
		"Kindly take action before its expiration"
	msgResetSendFailed = "Failed to send password reset instructions"
	msgTokenInvalid    = "The activation link is invalid or has expired"
	msgActivated       = "Your account has been activated. You can now log in"
	msgPasswordChanged = "Your password has been changed successfully"
	msgGenericFailure  = "Something unexpected happened. Kindly try again."
)

type successResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	_, err := s.svc.Registration.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateEmail):
			s.writeError(w, http.StatusConflict, msgDuplicateEmail)
		case isValidationError(err):
			s.writeError(w, http.StatusBadRequest, validationMessage(err))
		default:
			errutil.LogError(s.logger, "registration failed", err)
			s.writeError(w, http.StatusInternalServerError, msgGenericFailure)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Message: msgRegistered})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	sess := s.openSession(r)
	view, err := s.svc.Auth.Login(r.Context(), sess, req.Email, req.Password)
	if err != nil {
		// Absent users and wrong passwords get the same answer so the
		// endpoint cannot be used to probe which emails are registered.
		switch {
		case errors.Is(err, account.ErrNotFound), errors.Is(err, account.ErrCredentialMismatch):
			s.writeError(w, http.StatusUnauthorized, msgBadCredentials)
		case errors.Is(err, session.ErrSessionWrite):
			if destroyErr := sess.Destroy(r.Context()); destroyErr != nil {
				errutil.LogError(s.logger, "failed to destroy session after login failure", destroyErr)
			}
			s.writeError(w, http.StatusInternalServerError, msgSessionError)
		default:
			errutil.LogError(s.logger, "login failed", err)
			s.writeError(w, http.StatusInternalServerError, msgGenericFailure)
		}
		return
	}

	s.setSessionCookie(w, sess.ID())
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.openSession(r)
	if err := sess.Destroy(r.Context()); err != nil {
		errutil.LogError(s.logger, "logout failed", err)
		s.writeError(w, http.StatusInternalServerError, msgGenericFailure)
		return
	}

	s.clearSessionCookie(w)
	s.writeJSON(w, http.StatusOK, successResponse{Message: "You have successfully logged out"})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.Registration.ActivateAccount(r.Context(), req.Token); err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredOrUnknown), errors.Is(err, account.ErrNotFound):
			s.writeError(w, http.StatusUnauthorized, msgTokenInvalid)
		default:
			errutil.LogError(s.logger, "account activation failed", err)
			s.writeError(w, http.StatusInternalServerError, msgGenericFailure)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Message: msgActivated})
}

func (s *Server) handleRequestPasswordChange(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.Reset.RequestReset(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			// Unlike login, this endpoint tells the caller what to do
			// next; the remediation is worth more than hiding whether
			// the address is registered.
			s.writeError(w, http.StatusNotFound, fmt.Sprintf(
				"An active user with this e-mail address does not exist. If you registered "+
					"with this email, ensure you have activated your account. You can check "+
					"by logging in. If you have not activated it, visit %s/auth/regenerate-token "+
					"to regenerate the token that will allow you activate your account.",
				s.frontendURL))
		case errors.Is(err, notify.ErrDispatchFailed):
			s.writeError(w, http.StatusInternalServerError, msgResetSendFailed)
		default:
			errutil.LogError(s.logger, "password reset request failed", err)
			s.writeError(w, http.StatusInternalServerError, msgGenericFailure)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Message: msgResetSent})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.svc.Reset.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredOrUnknown), errors.Is(err, account.ErrNotFound):
			s.writeError(w, http.StatusUnauthorized, msgTokenInvalid)
		case errors.Is(err, account.ErrEmptyPassword):
			s.writeError(w, http.StatusBadRequest, "Password cannot be empty")
		default:
			errutil.LogError(s.logger, "password change failed", err)
			s.writeError(w, http.StatusInternalServerError, msgGenericFailure)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Message: msgPasswordChanged})
}

// openSession resolves the session handle for the request cookie.
func (s *Server) openSession(r *http.Request) *session.Session {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return s.sessions.Open("")
	}
	return s.sessions.Open(cookie.Value)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// isValidationError reports whether err came from input validation
// rather than an infrastructure failure.
func isValidationError(err error) bool {
	switch errutil.Code(err) {
	case "ACCOUNT_INVALID_EMAIL", "ACCOUNT_INVALID_NAME", "ACCOUNT_EMPTY_PASSWORD":
		return true
	}
	return errors.Is(err, account.ErrEmptyPassword)
}

// validationMessage turns a validation error into a user-facing string.
func validationMessage(err error) string {
	msg := err.Error()
	// oops prefixes wrapped messages with context; keep only the last part.
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		msg = msg[idx+2:]
	}
	return msg
}
