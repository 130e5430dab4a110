// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"bytes"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
)

// MinTokenSecretLength is the shortest HS256 signing key the Issuer accepts.
const MinTokenSecretLength = 32

// AuthToken is a signed session token bound to one account.
type AuthToken struct {
	Value     string
	AccountID ulid.ULID
	IssuedAt  time.Time
}

// TokenClaims are the verified contents of an AuthToken.
type TokenClaims struct {
	AccountID ulid.ULID
	Username  string
	TokenID   string
	IssuedAt  time.Time
}

type sessionClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Issuer signs and parses stateless session tokens.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer creates an Issuer signing HS256 tokens with secret.
func NewIssuer(secret []byte, issuer string) (*Issuer, error) {
	if len(secret) < MinTokenSecretLength {
		return nil, oops.Code("TOKEN_INVALID_SECRET").
			With("min_length", MinTokenSecretLength).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if issuer == "" {
		return nil, oops.Code("TOKEN_INVALID_ISSUER").Errorf("token issuer cannot be empty")
	}
	return &Issuer{secret: bytes.Clone(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a new token for acct. Every call yields a distinct token.
func (i *Issuer) Issue(acct *account.Account) (*AuthToken, error) {
	if acct == nil || acct.ID.IsZero() {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").Errorf("account is required")
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	claims := sessionClaims{
		Name: acct.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   i.issuer,
			Subject:  acct.ID.String(),
			IssuedAt: jwt.NewNumericDate(issuedAt),
			ID:       ulid.Make().String(),
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}

	return &AuthToken{Value: value, AccountID: acct.ID, IssuedAt: issuedAt}, nil
}

// Parse verifies a token's signature, algorithm, and issuer and returns its
// claims.
func (i *Issuer) Parse(value string) (*TokenClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(value, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(err)
	}

	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").
			With("operation", "parse subject").
			Wrap(err)
	}

	out := &TokenClaims{
		AccountID: id,
		Username:  claims.Name,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
