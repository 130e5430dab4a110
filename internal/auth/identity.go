// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"context"

	"github.com/wefix/authgate/internal/account"
)

// ExternalIdentity is a user identity asserted by an external provider.
// It is produced only by a successful IdentityVerifier.Verify.
type ExternalIdentity struct {
	Provider    account.Provider
	ExternalID  string
	Email       string
	DisplayName string
	Login       string
}

// IdentityVerifier exchanges a provider access token for the identity it
// belongs to.
//
// Verify returns an error coded ReasonInvalidToken when the provider rejects
// the token or answers with an unusable profile, and ReasonProviderUnavailable
// when the provider cannot be reached or fails.
type IdentityVerifier interface {
	Provider() account.Provider
	Verify(ctx context.Context, accessToken string) (*ExternalIdentity, error)
}

// Identity is the outcome of a strategy: either a local account already
// checked against its credentials, or an external identity to resolve.
// Exactly one field is set.
type Identity struct {
	Local    *account.Account
	External *ExternalIdentity
}
