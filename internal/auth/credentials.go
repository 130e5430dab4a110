// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
)

// dummyPasswordHash and dummySalt are verified when the account doesn't exist
// or has no password, so response time does not reveal which usernames exist.
// This is NOT a real credential - it will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const (
	dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	dummySalt         = "AAAAAAAAAAAAAAAAAAAAAA"
)

// CredentialVerifier checks username and password against stored email
// accounts.
type CredentialVerifier struct {
	accounts account.Repository
	hasher   PasswordHasher
}

// NewCredentialVerifier creates a CredentialVerifier.
func NewCredentialVerifier(accounts account.Repository, hasher PasswordHasher) (*CredentialVerifier, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	return &CredentialVerifier{accounts: accounts, hasher: hasher}, nil
}

// Verify returns the email account matching username and password.
//
// An unknown username, an SSO account, and a wrong password all return the
// same ReasonInvalidCredentials error.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (*account.Account, error) {
	acct, lookupErr := v.accounts.GetByUsername(ctx, username)

	targetHash, targetSalt := dummyPasswordHash, dummySalt
	hasPassword := false

	switch {
	case lookupErr == nil && acct.Kind == account.KindEmail:
		targetHash, targetSalt = acct.PasswordHash, acct.Salt
		hasPassword = true
	case lookupErr == nil, errors.Is(lookupErr, account.ErrNotFound):
	default:
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get account by username").
			Wrap(lookupErr)
	}

	// Always verify so both paths cost the same.
	valid, verifyErr := v.hasher.Verify(password, targetHash, targetSalt)
	if verifyErr != nil {
		if !hasPassword {
			return nil, ReasonInvalidCredentials.Err()
		}
		return nil, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			With("account_id", acct.ID.String()).
			Wrap(verifyErr)
	}

	if !hasPassword || !valid {
		return nil, ReasonInvalidCredentials.Err()
	}
	return acct, nil
}
