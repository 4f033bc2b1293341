// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package httpapi exposes the account workflows over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/authd/authd/internal/account"
	"github.com/authd/authd/internal/session"
)

// SessionCookie is the name of the opaque session cookie.
const SessionCookie = "authd-session"

// Services bundles the account workflows the API exposes.
type Services struct {
	Registration *account.RegistrationService
	Auth         *account.AuthService
	Reset        *account.PasswordResetService
}

// Server serves the account API.
type Server struct {
	addr          string
	listener      net.Listener
	httpServer    *http.Server
	router        chi.Router
	svc           Services
	sessions      *session.Store
	sessionTTL    time.Duration
	frontendURL   string
	secureCookies bool
	logger        *slog.Logger
	running       atomic.Bool
}

// NewServer creates an API server. All dependencies are required except
// logger, which falls back to slog.Default.
func NewServer(
	addr string,
	svc Services,
	sessions *session.Store,
	sessionTTL time.Duration,
	frontendURL string,
	secureCookies bool,
	logger *slog.Logger,
) (*Server, error) {
	if svc.Registration == nil || svc.Auth == nil || svc.Reset == nil {
		return nil, oops.Code("HTTPAPI_MISSING_SERVICE").Errorf("all account services are required")
	}
	if sessions == nil {
		return nil, oops.Code("HTTPAPI_MISSING_SESSIONS").Errorf("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:          addr,
		svc:           svc,
		sessions:      sessions,
		sessionTTL:    sessionTTL,
		frontendURL:   frontendURL,
		secureCookies: secureCookies,
		logger:        logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/users", func(r chi.Router) {
		r.Post("/register/", s.handleRegister)
		r.Post("/login/", s.handleLogin)
		r.Post("/logout/", s.handleLogout)
		r.Post("/activate/", s.handleActivate)
		r.Post("/request-password-change/", s.handleRequestPasswordChange)
		r.Post("/change-password/", s.handleChangePassword)
	})

	s.router = r
	return s, nil
}

// Router returns the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving the API. It returns an error channel that will
// receive any errors from the HTTP server after it starts; the channel
// is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
