// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package web serves the authgate JSON API: the three authentication flows,
// email account registration and bearer-authenticated account lookup.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/observability"
)

// Routes.
const (
	RouteRoot            = "GET /{$}"
	RouteEmailAccount    = "POST /api/v1/auth/authenticate/email_account"
	RouteGitHubAccount   = "POST /api/v1/auth/authenticate/sso_account"
	RouteGoogleAccount   = "POST /api/v1/auth/authenticate/gsso_account"
	RouteRegisterAccount = "POST /api/v1/accounts"
	RouteGetAccount      = "GET /api/v1/accounts/{username}"
)

const (
	readHeaderTimeout     = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// Config holds the API's dependencies.
type Config struct {
	Gateway   Authenticator
	Registrar Registrar
	Tokens    TokenParser
	Accounts  account.Repository
	// RequestTimeout bounds each request. Zero means 30s.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewHandler builds the API handler.
func NewHandler(cfg Config) (http.Handler, error) {
	switch {
	case cfg.Gateway == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("gateway is required")
	case cfg.Registrar == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("registrar is required")
	case cfg.Tokens == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("token parser is required")
	case cfg.Accounts == nil:
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("accounts repository is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	h := &handlers{
		gateway:   cfg.Gateway,
		registrar: cfg.Registrar,
		tokens:    cfg.Tokens,
		accounts:  cfg.Accounts,
		logger:    logger,
	}

	mux := http.NewServeMux()
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, timeout, logger, fn))
	}
	route(RouteRoot, h.root)
	route(RouteEmailAccount, h.authenticate(auth.FlowEmail))
	route(RouteGitHubAccount, h.authenticate(auth.FlowGitHub))
	route(RouteGoogleAccount, h.authenticate(auth.FlowGoogle))
	route(RouteRegisterAccount, h.register)
	route(RouteGetAccount, h.getAccount)
	return mux, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument limits the body, bounds the request and records the outcome.
func instrument(pattern string, timeout time.Duration, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		observability.RecordHTTPRequest(pattern, rec.status)
		logger.DebugContext(ctx, "request served",
			"route", pattern,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// Server runs the API on a TCP listener.
type Server struct {
	addr       string
	handler    http.Handler
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for addr ("host:port").
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start listens and serves in the background. The returned channel
// receives a serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("api server already running")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests and shuts down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
