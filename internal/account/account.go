// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package account defines the account domain model shared by the
// authentication flows and the storage layer.
//
// An Account is a tagged union discriminated by Kind. Email accounts carry a
// password hash and salt; SSO accounts carry the provider and the provider's
// identifier for the user. Accounts should be created through NewEmailAccount
// or NewSSOAccount, which assign the ID and creation time and validate the
// kind-specific fields.
package account

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Kind discriminates account variants.
type Kind string

// Account kinds.
const (
	KindEmail Kind = "email"
	KindSSO   Kind = "sso"
)

// Provider identifies an external identity provider.
type Provider string

// Supported providers.
const (
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderGoogle:
		return true
	default:
		return false
	}
}

// Account is a persisted user account.
type Account struct {
	ID        ulid.ULID
	Kind      Kind
	Username  string
	Email     string
	CreatedAt time.Time

	// Email accounts only.
	PasswordHash string
	Salt         string

	// SSO accounts only.
	Provider   Provider
	ExternalID string
}

// NewEmailAccount creates a validated email account with a new ID.
func NewEmailAccount(username, email, passwordHash, salt string) (*Account, error) {
	a := &Account{
		ID:           ulid.Make(),
		Kind:         KindEmail,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Salt:         salt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewSSOAccount creates a validated SSO account with a new ID.
// Email may be empty when the provider does not disclose one.
func NewSSOAccount(username, email string, provider Provider, externalID string) (*Account, error) {
	a := &Account{
		ID:         ulid.Make(),
		Kind:       KindSSO,
		Username:   username,
		Email:      email,
		Provider:   provider,
		ExternalID: externalID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the account's invariants for its kind.
func (a *Account) Validate() error {
	if a.ID.IsZero() {
		return oops.Code("ACCOUNT_INVALID").Errorf("account id cannot be zero")
	}
	if err := ValidateUsername(a.Username); err != nil {
		return err
	}

	switch a.Kind {
	case KindEmail:
		if err := ValidateEmail(a.Email); err != nil {
			return err
		}
		if a.PasswordHash == "" || a.Salt == "" {
			return oops.Code("ACCOUNT_INVALID").
				With("kind", string(a.Kind)).
				Errorf("email account requires password hash and salt")
		}
		if a.Provider != "" || a.ExternalID != "" {
			return oops.Code("ACCOUNT_INVALID").
				With("kind", string(a.Kind)).
				Errorf("email account cannot carry an external identity")
		}
	case KindSSO:
		if !a.Provider.Valid() {
			return oops.Code("ACCOUNT_INVALID").
				With("provider", string(a.Provider)).
				Errorf("unknown provider %q", a.Provider)
		}
		if a.ExternalID == "" {
			return oops.Code("ACCOUNT_INVALID").
				With("kind", string(a.Kind)).
				Errorf("sso account requires an external id")
		}
		if a.PasswordHash != "" || a.Salt != "" {
			return oops.Code("ACCOUNT_INVALID").
				With("kind", string(a.Kind)).
				Errorf("sso account cannot carry a password")
		}
		if a.Email != "" {
			if err := ValidateEmail(a.Email); err != nil {
				return err
			}
		}
	default:
		return unknownKind(a.Kind)
	}
	return nil
}

// View is the public projection of an account. It never contains the ID,
// password hash, or salt.
type View struct {
	Type      Kind      `json:"type"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Provider  Provider  `json:"provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// View returns the public projection of the account.
func (a *Account) View() (View, error) {
	v := View{
		Type:      a.Kind,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
	switch a.Kind {
	case KindEmail:
	case KindSSO:
		v.Provider = a.Provider
	default:
		return View{}, unknownKind(a.Kind)
	}
	return v, nil
}

// MarshalJSON renders the account as its View so secrets cannot leak through
// serialization.
func (a *Account) MarshalJSON() ([]byte, error) {
	v, err := a.View()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// LogValue implements slog.LogValuer.
func (a *Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", a.ID.String()),
		slog.String("kind", string(a.Kind)),
		slog.String("username", a.Username),
	)
}

func unknownKind(k Kind) error {
	return oops.Code("ACCOUNT_UNKNOWN_KIND").
		With("kind", string(k)).
		Errorf("unknown account kind %q", k)
}

// Repository manages account persistence.
//
// Implementations enforce uniqueness of the username (case-insensitive) and
// of (provider, external id) atomically, returning an error wrapping
// ErrAlreadyExists on conflict. Lookups that find nothing return an error
// wrapping ErrNotFound.
type Repository interface {
	// Create stores a new account.
	Create(ctx context.Context, acct *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByUsername retrieves an account by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByExternalID retrieves the SSO account linked to a provider identity.
	GetByExternalID(ctx context.Context, provider Provider, externalID string) (*Account, error)
}
