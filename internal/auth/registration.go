// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
)

// Registration is a request to create an email account.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registrar creates email accounts.
type Registrar struct {
	accounts account.Repository
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewRegistrar creates a Registrar. A nil logger uses slog.Default().
func NewRegistrar(accounts account.Repository, hasher PasswordHasher, logger *slog.Logger) (*Registrar, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{accounts: accounts, hasher: hasher, logger: logger}, nil
}

// Register validates reg, hashes the password, and stores a new email
// account. A taken username returns ACCOUNT_USERNAME_TAKEN wrapping
// account.ErrAlreadyExists.
func (r *Registrar) Register(ctx context.Context, reg Registration) (*account.Account, error) {
	if err := account.ValidateUsername(reg.Username); err != nil {
		return nil, err
	}
	if err := account.ValidateEmail(reg.Email); err != nil {
		return nil, err
	}

	hash, salt, err := r.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}

	acct, err := account.NewEmailAccount(reg.Username, reg.Email, hash, salt)
	if err != nil {
		return nil, err
	}

	if err := r.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, account.ErrAlreadyExists) {
			return nil, oops.Code("ACCOUNT_USERNAME_TAKEN").
				With("username", reg.Username).
				Wrapf(account.ErrAlreadyExists, "username %q is taken", reg.Username)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "create email account").
			Wrap(err)
	}

	r.logger.InfoContext(ctx, "email account registered", "account", acct)
	return acct, nil
}
