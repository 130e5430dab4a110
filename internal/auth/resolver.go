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

// maxUsernameAttempts bounds how many derived usernames are tried when
// creating an SSO account whose preferred username is taken.
const maxUsernameAttempts = 5

// Resolver maps verified identities to accounts.
type Resolver struct {
	accounts account.Repository
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default().
func NewResolver(accounts account.Repository, logger *slog.Logger) (*Resolver, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("accounts repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{accounts: accounts, logger: logger}, nil
}

// Resolve returns the account for id.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (*account.Account, error) {
	switch {
	case id.Local != nil && id.External == nil:
		return r.ResolveLocal(id.Local), nil
	case id.External != nil && id.Local == nil:
		return r.ResolveExternal(ctx, id.External)
	default:
		return nil, oops.Code("AUTH_RESOLVE_FAILED").Errorf("identity must carry exactly one of local or external")
	}
}

// ResolveLocal returns acct unchanged. Local accounts are already resolved by
// the credential check.
func (r *Resolver) ResolveLocal(acct *account.Account) *account.Account {
	return acct
}

// ResolveExternal finds the SSO account linked to ext, creating it on first
// login. Concurrent first logins for the same identity resolve to the single
// account that won the insert.
func (r *Resolver) ResolveExternal(ctx context.Context, ext *ExternalIdentity) (*account.Account, error) {
	if ext == nil {
		return nil, oops.Code("AUTH_RESOLVE_FAILED").Errorf("external identity is required")
	}
	if !ext.Provider.Valid() || ext.ExternalID == "" {
		return nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("provider", string(ext.Provider)).
			Errorf("external identity is incomplete")
	}

	acct, err := r.lookup(ctx, ext)
	if err != nil || acct != nil {
		return acct, err
	}

	email := ext.Email
	if account.ValidateEmail(email) != nil {
		email = ""
	}

	base := account.DeriveUsername(ext.Login, ext.Email, ext.Provider, ext.ExternalID)
	for _, username := range account.UsernameCandidates(base, ext.Provider, maxUsernameAttempts) {
		candidate, err := account.NewSSOAccount(username, email, ext.Provider, ext.ExternalID)
		if err != nil {
			return nil, oops.Code("AUTH_RESOLVE_FAILED").
				With("operation", "build sso account").
				Wrap(err)
		}

		err = r.accounts.Create(ctx, candidate)
		if err == nil {
			r.logger.InfoContext(ctx, "sso account created",
				"account", candidate,
				"provider", string(ext.Provider),
			)
			return candidate, nil
		}
		if !errors.Is(err, account.ErrAlreadyExists) {
			return nil, oops.Code("AUTH_RESOLVE_FAILED").
				With("operation", "create sso account").
				With("provider", string(ext.Provider)).
				Wrap(err)
		}

		// Either a concurrent login created this identity, or the username
		// belongs to someone else.
		winner, err := r.lookup(ctx, ext)
		if err != nil || winner != nil {
			return winner, err
		}
		r.logger.DebugContext(ctx, "username taken, trying next candidate",
			"username", username,
			"provider", string(ext.Provider),
		)
	}

	return nil, oops.Code("AUTH_RESOLVE_FAILED").
		With("provider", string(ext.Provider)).
		With("attempts", maxUsernameAttempts).
		Errorf("no available username for external identity")
}

// lookup returns (nil, nil) when no account is linked to ext.
func (r *Resolver) lookup(ctx context.Context, ext *ExternalIdentity) (*account.Account, error) {
	acct, err := r.accounts.GetByExternalID(ctx, ext.Provider, ext.ExternalID)
	if err == nil {
		return acct, nil
	}
	if errors.Is(err, account.ErrNotFound) {
		return nil, nil
	}
	return nil, oops.Code("AUTH_RESOLVE_FAILED").
		With("operation", "get account by external id").
		With("provider", string(ext.Provider)).
		Wrap(err)
}
