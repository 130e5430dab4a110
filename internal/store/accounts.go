// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
)

// Constraint names from the migrations.
const (
	constraintPrimaryKey         = "accounts_pkey"
	constraintProviderExternalID = "accounts_provider_external_id_key"
	constraintUsername           = "accounts_username_lower_key"
)

const insertAccount = `INSERT INTO accounts (id, kind, username, email, password_hash, salt, provider, external_id, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)`

const selectAccount = `SELECT id, kind, username, email,
COALESCE(password_hash, ''), COALESCE(salt, ''), COALESCE(provider, ''), COALESCE(external_id, ''), created_at
FROM accounts `

const (
	selectByID         = selectAccount + `WHERE id = $1`
	selectByUsername   = selectAccount + `WHERE lower(username) = lower($1)`
	selectByExternalID = selectAccount + `WHERE provider = $1 AND external_id = $2`
)

// AccountRepository implements account.Repository using PostgreSQL.
// Uniqueness is enforced by the table's constraints, so concurrent creates
// for the same username or identity leave exactly one row.
type AccountRepository struct {
	pool poolIface
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a repository backed by pool.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts acct. Conflicts wrap account.ErrAlreadyExists.
func (r *AccountRepository) Create(ctx context.Context, acct *account.Account) error {
	if err := acct.Validate(); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, insertAccount,
		acct.ID.String(),
		string(acct.Kind),
		acct.Username,
		acct.Email,
		acct.PasswordHash,
		acct.Salt,
		string(acct.Provider),
		acct.ExternalID,
		acct.CreatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return conflict(pgErr.ConstraintName, acct)
	}
	return oops.Code("ACCOUNT_CREATE_FAILED").
		With("username", acct.Username).
		Wrap(err)
}

func conflict(constraint string, acct *account.Account) error {
	switch constraint {
	case constraintPrimaryKey:
		return oops.Code("ACCOUNT_ID_EXISTS").
			With("id", acct.ID.String()).
			Wrap(account.ErrAlreadyExists)
	case constraintProviderExternalID:
		return oops.Code("ACCOUNT_IDENTITY_EXISTS").
			With("provider", string(acct.Provider)).
			Wrap(account.ErrAlreadyExists)
	default:
		return oops.Code("ACCOUNT_USERNAME_TAKEN").
			With("username", acct.Username).
			Wrap(account.ErrAlreadyExists)
	}
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	return r.get(ctx, "id", id.String(), selectByID, id.String())
}

// GetByUsername retrieves an account by username, ignoring case.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	return r.get(ctx, "username", username, selectByUsername, username)
}

// GetByExternalID retrieves the SSO account linked to a provider identity.
func (r *AccountRepository) GetByExternalID(ctx context.Context, provider account.Provider, externalID string) (*account.Account, error) {
	return r.get(ctx, "provider", string(provider), selectByExternalID, string(provider), externalID)
}

func (r *AccountRepository) get(ctx context.Context, key, value, query string, args ...any) (*account.Account, error) {
	acct, err := scanAccount(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With(key, value).Wrap(err)
	}
	return acct, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		id, kind, provider string
		createdAt          time.Time
		acct               account.Account
	)
	if err := row.Scan(&id, &kind, &acct.Username, &acct.Email,
		&acct.PasswordHash, &acct.Salt, &provider, &acct.ExternalID, &createdAt); err != nil {
		return nil, err
	}

	parsed, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", id).Wrap(err)
	}
	acct.ID = parsed
	acct.Kind = account.Kind(kind)
	acct.Provider = account.Provider(provider)
	acct.CreatedAt = createdAt.UTC()

	switch acct.Kind {
	case account.KindEmail, account.KindSSO:
	default:
		return nil, oops.Code("ACCOUNT_UNKNOWN_KIND").
			With("id", id).
			Errorf("unknown account kind %q", kind)
	}
	return &acct, nil
}
