// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package provider implements auth.IdentityVerifier for external identity
// providers. Each verifier exchanges an access token for the user's profile
// and never performs the OAuth handshake itself.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"
	"golang.org/x/oauth2"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
)

// DefaultTimeout bounds a single verification, including every request it makes.
const DefaultTimeout = 10 * time.Second

// maxProfileBytes caps how much of a profile response is read.
const maxProfileBytes = 1 << 20

// Option configures a verifier.
type Option func(*options)

type options struct {
	client  *http.Client
	timeout time.Duration
}

// WithHTTPClient sets the base HTTP client. The bearer token is added by an
// oauth2 transport layered over the client's transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithTimeout bounds each verification. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{client: http.DefaultClient, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// fetcher performs authenticated JSON GETs against one provider and
// classifies failures.
type fetcher struct {
	provider account.Provider
	opts     options
	headers  map[string]string
}

// do runs fn with a context bounded by the verification timeout and an HTTP
// client that sends accessToken as a bearer token.
func (f *fetcher) do(ctx context.Context, accessToken string, fn func(ctx context.Context, c *http.Client) error) error {
	if accessToken == "" {
		return f.invalid(nil, 0, "access token is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.opts.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	return fn(ctx, client)
}

// getJSON fetches url and decodes the response into dst.
func (f *fetcher) getJSON(ctx context.Context, c *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return oops.Code("PROVIDER_REQUEST_FAILED").
			With("provider", string(f.provider)).
			With("url", url).
			Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return f.unavailable(err, 0, "request failed")
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	switch {
	case transientStatus(resp):
		return f.unavailable(nil, resp.StatusCode, "provider returned an error status")
	case resp.StatusCode != http.StatusOK:
		return f.invalid(nil, resp.StatusCode, "provider rejected the token")
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(dst); err != nil {
		if ctx.Err() != nil {
			return f.unavailable(ctx.Err(), resp.StatusCode, "reading profile timed out")
		}
		return f.invalid(err, resp.StatusCode, "malformed profile response")
	}
	return nil
}

// transientStatus reports whether resp is a provider-side fault rather than a
// rejection of the token. GitHub signals rate limits with a 403 that carries
// Retry-After or an exhausted X-RateLimit-Remaining.
func transientStatus(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("Retry-After") != "" || resp.Header.Get("X-RateLimit-Remaining") == "0"
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func (f *fetcher) invalid(cause error, status int, msg string) error {
	b := oops.Code(string(auth.ReasonInvalidToken)).With("provider", string(f.provider))
	if status != 0 {
		b = b.With("status", status)
	}
	if cause != nil {
		return b.Wrapf(cause, "%s", msg)
	}
	return b.Errorf("%s", msg)
}

func (f *fetcher) unavailable(cause error, status int, msg string) error {
	b := oops.Code(string(auth.ReasonProviderUnavailable)).With("provider", string(f.provider))
	if status != 0 {
		b = b.With("status", status)
	}
	if cause != nil {
		if errors.Is(cause, context.DeadlineExceeded) {
			b = b.With("timeout", f.opts.timeout.String())
		}
		return b.Wrapf(cause, "%s", msg)
	}
	return b.Errorf("%s", msg)
}

// record counts the verification outcome.
func record(p account.Provider, err error) {
	outcome := auth.OutcomeSuccess
	if err != nil {
		outcome = string(auth.Classify(err))
	}
	auth.RecordProviderVerification(string(p), outcome)
}
