// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/config"
	"github.com/wefix/authgate/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the account store selected by cfg.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AccountStore, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// GoogleFactory creates the Google identity verifier.
	// Default: newGoogleVerifier
	GoogleFactory func(ctx context.Context, cfg config.Providers) (auth.IdentityVerifier, error)

	// Hasher hashes and verifies passwords.
	// Default: auth.NewArgon2idHasher
	Hasher auth.PasswordHasher

	// APIServerFactory creates the API server.
	// Default: web.NewServer
	APIServerFactory func(addr string, handler http.Handler, logger *slog.Logger) Server

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer with a fresh registry
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) Server

	// Ready, if set, is called with the API address once the server accepts
	// requests.
	Ready func(apiAddr string)
}

// AccountStore is an opened account repository.
type AccountStore struct {
	Accounts account.Repository
	// Ready reports whether the store is reachable. Nil means always ready.
	Ready observability.ReadinessChecker
	// Close releases the store. Nil means nothing to release.
	Close func()
}

// AutoMigrator wraps the methods used from store.Migrator at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Server wraps the methods used from web.Server and observability.Server.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
