// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package provider

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
)

// DefaultGoogleIssuer is Google's OpenID Connect issuer.
const DefaultGoogleIssuer = "https://accounts.google.com"

// Google verifies Google OAuth access tokens against the OpenID Connect
// userinfo endpoint.
type Google struct {
	issuer string
	fetch  *fetcher

	mu          sync.Mutex
	userinfoURL string
}

var _ auth.IdentityVerifier = (*Google)(nil)

var errNoUserInfoEndpoint = errors.New("issuer does not advertise a userinfo endpoint")

type googleUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

// NewGoogle creates a Google verifier from explicitly configured endpoints,
// skipping discovery.
func NewGoogle(issuer, userinfoURL string, opts ...Option) (*Google, error) {
	if userinfoURL == "" {
		return nil, oops.Code("PROVIDER_INVALID_CONFIG").
			With("provider", string(account.ProviderGoogle)).
			Errorf("userinfo endpoint is required")
	}
	g := NewGoogleFromIssuer(issuer, opts...)
	g.userinfoURL = userinfoURL
	return g, nil
}

// NewGoogleFromIssuer creates a Google verifier that discovers its userinfo
// endpoint from the issuer on the first Verify. A failed discovery is a
// ProviderUnavailable outcome for that call and is retried on the next.
func NewGoogleFromIssuer(issuer string, opts ...Option) *Google {
	if issuer == "" {
		issuer = DefaultGoogleIssuer
	}
	return &Google{
		issuer: issuer,
		fetch:  &fetcher{provider: account.ProviderGoogle, opts: buildOptions(opts)},
	}
}

// DiscoverGoogle creates a Google verifier and runs discovery immediately.
func DiscoverGoogle(ctx context.Context, issuer string, opts ...Option) (*Google, error) {
	g := NewGoogleFromIssuer(issuer, opts...)

	ctx, cancel := context.WithTimeout(ctx, g.fetch.opts.timeout)
	defer cancel()

	if _, err := g.endpoint(ctx); err != nil {
		return nil, oops.Code("PROVIDER_DISCOVERY_FAILED").
			With("provider", string(account.ProviderGoogle)).
			With("issuer", g.issuer).
			Wrap(err)
	}
	return g, nil
}

// endpoint returns the userinfo endpoint, discovering it once.
func (g *Google) endpoint(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.userinfoURL != "" {
		return g.userinfoURL, nil
	}
	p, err := oidc.NewProvider(oidc.ClientContext(ctx, g.fetch.opts.client), g.issuer)
	if err != nil {
		return "", err
	}
	if p.UserInfoEndpoint() == "" {
		return "", errNoUserInfoEndpoint
	}
	g.userinfoURL = p.UserInfoEndpoint()
	return g.userinfoURL, nil
}

// Provider returns account.ProviderGoogle.
func (g *Google) Provider() account.Provider {
	return account.ProviderGoogle
}

// UserInfoURL returns the endpoint tokens are verified against, or "" before
// discovery has succeeded.
func (g *Google) UserInfoURL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.userinfoURL
}

// Verify fetches the token owner's userinfo. The profile must carry a subject
// and an email that is not marked unverified.
func (g *Google) Verify(ctx context.Context, accessToken string) (id *auth.ExternalIdentity, err error) {
	defer func() { record(account.ProviderGoogle, err) }()

	err = g.fetch.do(ctx, accessToken, func(ctx context.Context, c *http.Client) error {
		url, err := g.endpoint(ctx)
		if err != nil {
			return g.fetch.unavailable(err, 0, "userinfo endpoint discovery failed")
		}

		var info googleUserInfo
		if err := g.fetch.getJSON(ctx, c, url, &info); err != nil {
			return err
		}
		if info.Subject == "" {
			return g.fetch.invalid(nil, http.StatusOK, "userinfo has no subject")
		}
		if info.Email == "" || (info.EmailVerified != nil && !*info.EmailVerified) {
			return g.fetch.invalid(nil, http.StatusOK, "userinfo has no verified email")
		}

		id = &auth.ExternalIdentity{
			Provider:    account.ProviderGoogle,
			ExternalID:  info.Subject,
			Email:       info.Email,
			DisplayName: firstNonEmpty(info.Name, info.Email),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}
