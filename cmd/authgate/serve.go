// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/auth/provider"
	"github.com/wefix/authgate/internal/config"
	"github.com/wefix/authgate/internal/envelope"
	"github.com/wefix/authgate/internal/logging"
	"github.com/wefix/authgate/internal/observability"
	"github.com/wefix/authgate/internal/store"
	"github.com/wefix/authgate/internal/store/memory"
	"github.com/wefix/authgate/internal/web"
	"github.com/wefix/authgate/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the authentication API and, unless --metrics-addr is empty,
the metrics and health endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
}

// runServeWithDeps runs the server until a signal arrives, ctx ends or a
// listener fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	setServeDefaults(deps)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "authgate",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	logger.Info("starting authgate", "config", cfg)

	if cfg.Store.Driver == config.DriverPostgres && cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	st, err := deps.StoreOpener(ctx, cfg, logger)
	if err != nil {
		return oops.With("store", cfg.Store.Driver).Wrapf(err, "open account store")
	}
	if st.Close != nil {
		defer st.Close()
	}

	handler, err := buildHandler(ctx, cfg, st.Accounts, deps, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := deps.APIServerFactory(cfg.HTTP.Addr, handler, logger)
	apiErrCh, err := api.Start()
	if err != nil {
		return oops.Wrapf(err, "start api server")
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	var obs Server
	if cfg.Metrics.Addr != "" {
		obs = deps.ObservabilityServerFactory(cfg.Metrics.Addr, st.Ready, logger)
		obsErrCh, err := obs.Start()
		if err != nil {
			stopServer(api, "api", logger)
			return oops.Wrapf(err, "start observability server")
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("authgate started")
	logger.Info("authgate ready", "api_addr", api.Addr())
	if deps.Ready != nil {
		deps.Ready(api.Addr())
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopServer(api, "api", logger)
	if obs != nil {
		stopServer(obs, "observability", logger)
	}
	logger.Info("shutdown complete")
	return nil
}

func setServeDefaults(deps *ServeDeps) {
	if deps.StoreOpener == nil {
		deps.StoreOpener = openStore
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.GoogleFactory == nil {
		deps.GoogleFactory = newGoogleVerifier
	}
	if deps.Hasher == nil {
		deps.Hasher = auth.NewArgon2idHasher()
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) Server {
			return web.NewServer(addr, handler, logger)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) Server {
			return observability.NewServer(addr, observability.NewRegistry(), ready, logger)
		}
	}
}

// autoMigrate applies pending migrations before the store is opened.
func autoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// openStore opens the account store named by cfg.Store.Driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AccountStore, error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using the in-memory account store; accounts are lost on exit")
		return &AccountStore{Accounts: memory.NewAccountRepository()}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")
	return &AccountStore{
		Accounts: store.NewAccountRepository(pool),
		Ready:    pool.Ping,
		Close:    pool.Close,
	}, nil
}

// newGoogleVerifier uses the configured userinfo endpoint, or discovers it
// from the issuer on the first Google authentication when none is set.
func newGoogleVerifier(_ context.Context, cfg config.Providers) (auth.IdentityVerifier, error) {
	opt := provider.WithTimeout(cfg.Timeout)
	if cfg.Google.UserInfoURL != "" {
		return provider.NewGoogle(cfg.Google.Issuer, cfg.Google.UserInfoURL, opt)
	}
	return provider.NewGoogleFromIssuer(cfg.Google.Issuer, opt), nil
}

// buildHandler wires the authentication components into the API handler.
func buildHandler(ctx context.Context, cfg *config.Config, accounts account.Repository, deps *ServeDeps, logger *slog.Logger) (http.Handler, error) {
	codec, err := envelope.NewCodec([]byte(cfg.Envelope.Secret), cfg.Envelope.Digest)
	if err != nil {
		return nil, err
	}
	issuer, err := auth.NewIssuer([]byte(cfg.Token.Secret), cfg.Token.Issuer)
	if err != nil {
		return nil, err
	}
	creds, err := auth.NewCredentialVerifier(accounts, deps.Hasher)
	if err != nil {
		return nil, err
	}
	resolver, err := auth.NewResolver(accounts, logger)
	if err != nil {
		return nil, err
	}
	github, err := provider.NewGitHub(cfg.Providers.GitHub.APIURL, provider.WithTimeout(cfg.Providers.Timeout))
	if err != nil {
		return nil, err
	}
	google, err := deps.GoogleFactory(ctx, cfg.Providers)
	if err != nil {
		return nil, err
	}

	gateway, err := auth.NewGateway(auth.GatewayConfig{
		Codec:    codec,
		Resolver: resolver,
		Issuer:   issuer,
		Strategies: []auth.Strategy{
			auth.NewEmailStrategy(creds),
			auth.NewSSOStrategy(github),
			auth.NewSSOStrategy(google),
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	registrar, err := auth.NewRegistrar(accounts, deps.Hasher, logger)
	if err != nil {
		return nil, err
	}

	return web.NewHandler(web.Config{
		Gateway:        gateway,
		Registrar:      registrar,
		Tokens:         issuer,
		Accounts:       accounts,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logger,
	})
}

func stopServer(s Server, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when errCh delivers a serve error. It
// returns when errCh closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
