// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package memory provides in-process storage implementations.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
)

type externalKey struct {
	provider   account.Provider
	externalID string
}

// AccountRepository is an in-memory account.Repository. Uniqueness checks and
// inserts happen under one lock, so concurrent creates of the same username
// or external identity admit exactly one winner.
type AccountRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*account.Account
	byUsername map[string]ulid.ULID
	byExternal map[externalKey]ulid.ULID
}

// NewAccountRepository creates an empty in-memory account repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:       make(map[ulid.ULID]*account.Account),
		byUsername: make(map[string]ulid.ULID),
		byExternal: make(map[externalKey]ulid.ULID),
	}
}

// Create stores a copy of acct.
func (r *AccountRepository) Create(_ context.Context, acct *account.Account) error {
	if err := acct.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[acct.ID]; ok {
		return oops.Code("ACCOUNT_ID_EXISTS").
			With("account_id", acct.ID.String()).
			Wrap(account.ErrAlreadyExists)
	}
	if acct.Kind == account.KindSSO {
		if _, ok := r.byExternal[externalKey{acct.Provider, acct.ExternalID}]; ok {
			return oops.Code("ACCOUNT_IDENTITY_EXISTS").
				With("provider", string(acct.Provider)).
				Wrap(account.ErrAlreadyExists)
		}
	}
	username := strings.ToLower(acct.Username)
	if _, ok := r.byUsername[username]; ok {
		return oops.Code("ACCOUNT_USERNAME_TAKEN").
			With("username", acct.Username).
			Wrap(account.ErrAlreadyExists)
	}

	stored := *acct
	r.byID[acct.ID] = &stored
	r.byUsername[username] = acct.ID
	if acct.Kind == account.KindSSO {
		r.byExternal[externalKey{acct.Provider, acct.ExternalID}] = acct.ID
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

// GetByUsername retrieves an account by username (case-insensitive).
func (r *AccountRepository) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(account.ErrNotFound)
	}
	return r.get(id)
}

// GetByExternalID retrieves the SSO account linked to a provider identity.
func (r *AccountRepository) GetByExternalID(_ context.Context, provider account.Provider, externalID string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExternal[externalKey{provider, externalID}]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("provider", string(provider)).
			Wrap(account.ErrNotFound)
	}
	return r.get(id)
}

// Len returns the number of stored accounts.
func (r *AccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// get returns a copy; callers must hold r.mu.
func (r *AccountRepository) get(id ulid.ULID) (*account.Account, error) {
	acct, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(account.ErrNotFound)
	}
	out := *acct
	return &out, nil
}
