// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/logging"
)

// Default timeout for seed command.
const defaultSeedTimeout = 60 * time.Second

// SeedFile is the document read by the seed command.
type SeedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// SeedAccount is one email account to create. The password comes from
// Password or, when PasswordEnv is set, from that environment variable.
type SeedAccount struct {
	Username    string `yaml:"username"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
}

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout time.Duration
}

// Swapped in tests.
var (
	seedStoreOpener = openStore
	seedHasher      = func() auth.PasswordHasher { return auth.NewArgon2idHasher() }
)

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Create email accounts from a YAML file",
		Long: `Creates the email accounts listed in FILE. Accounts whose username is
already taken are skipped, so the command can be run repeatedly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args[0], cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for the whole seed run (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, path string, cfg *seedConfig) error {
	seeds, err := readSeedFile(path)
	if err != nil {
		return err
	}

	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := conf.ValidateStore(); err != nil {
		return err
	}
	logger, err := logging.Setup(logging.Options{
		Service: "authgate",
		Version: version,
		Format:  conf.Log.Format,
		Level:   conf.Log.Level,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	// cmd.Context() carries SIGINT/SIGTERM cancellation.
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	st, err := seedStoreOpener(ctx, conf, logger)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "open account store").Wrap(err)
	}
	if st.Close != nil {
		defer st.Close()
	}

	registrar, err := auth.NewRegistrar(st.Accounts, seedHasher(), logger)
	if err != nil {
		return err
	}

	created, skipped := 0, 0
	for i, s := range seeds.Accounts {
		password := s.Password
		if s.PasswordEnv != "" {
			password = os.Getenv(s.PasswordEnv)
		}
		_, err := registrar.Register(ctx, auth.Registration{
			Username: s.Username,
			Email:    s.Email,
			Password: password,
		})
		switch {
		case err == nil:
			created++
			cmd.Printf("created %s\n", s.Username)
		case errors.Is(err, account.ErrAlreadyExists):
			skipped++
			cmd.Printf("skipped %s (already exists)\n", s.Username)
		default:
			return oops.Code("SEED_FAILED").
				With("index", i).
				With("username", s.Username).
				Wrap(err)
		}
	}

	cmd.Printf("Seed complete: %d created, %d skipped\n", created, skipped)
	return nil
}

// readSeedFile parses path, rejecting unknown keys.
func readSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("file", path).Wrap(err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var seeds SeedFile
	if err := dec.Decode(&seeds); err != nil {
		return nil, oops.Code("SEED_INVALID").With("file", path).Wrap(err)
	}
	if len(seeds.Accounts) == 0 {
		return nil, oops.Code("SEED_INVALID").With("file", path).Errorf("no accounts in %s", path)
	}
	return &seeds, nil
}
