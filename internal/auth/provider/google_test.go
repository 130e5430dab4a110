// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/auth/provider"
	"github.com/wefix/authgate/pkg/errutil"
)

func newGoogle(t *testing.T, userinfo http.HandlerFunc, opts ...provider.Option) *provider.Google {
	t.Helper()
	srv := httptest.NewServer(userinfo)
	t.Cleanup(srv.Close)
	g, err := provider.NewGoogle("https://accounts.example.com", srv.URL+"/userinfo",
		append([]provider.Option{provider.WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return g
}

func TestNewGoogle(t *testing.T) {
	g, err := provider.NewGoogle("", "https://openidconnect.googleapis.com/v1/userinfo")
	require.NoError(t, err)
	assert.Equal(t, account.ProviderGoogle, g.Provider())
	assert.Equal(t, "https://openidconnect.googleapis.com/v1/userinfo", g.UserInfoURL())

	_, err = provider.NewGoogle("", "")
	errutil.AssertErrorCode(t, err, "PROVIDER_INVALID_CONFIG")
}

// discoveryServer serves an OpenID configuration and userinfo endpoint. The
// discovery document is served only while available is true.
type discoveryServer struct {
	*httptest.Server
	mu        sync.Mutex
	available bool
	hits      int
}

func newDiscoveryServer(t *testing.T, available bool) *discoveryServer {
	t.Helper()
	d := &discoveryServer{available: available}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.hits++
		if !d.available {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                 d.URL,
			"authorization_endpoint": d.URL + "/auth",
			"token_endpoint":         d.URL + "/token",
			"jwks_uri":               d.URL + "/certs",
			"userinfo_endpoint":      d.URL + "/v1/userinfo",
		})
	})
	mux.HandleFunc("GET /v1/userinfo", requireBearer("tok", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"sub": "42", "email": "jane@example.com", "email_verified": true})
	}))
	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Close)
	return d
}

func (d *discoveryServer) setAvailable(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.available = v
}

func (d *discoveryServer) discoveryHits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits
}

func TestDiscoverGoogle(t *testing.T) {
	srv := newDiscoveryServer(t, true)

	g, err := provider.DiscoverGoogle(context.Background(), srv.URL, provider.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/v1/userinfo", g.UserInfoURL())
}

func TestDiscoverGoogle_Failure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := provider.DiscoverGoogle(context.Background(), srv.URL, provider.WithHTTPClient(srv.Client()))
	errutil.AssertErrorCode(t, err, "PROVIDER_DISCOVERY_FAILED")
}

func TestNewGoogleFromIssuer_DiscoversOnFirstVerify(t *testing.T) {
	srv := newDiscoveryServer(t, true)

	g := provider.NewGoogleFromIssuer(srv.URL, provider.WithHTTPClient(srv.Client()))
	assert.Empty(t, g.UserInfoURL())
	assert.Zero(t, srv.discoveryHits())

	for range 2 {
		id, err := g.Verify(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "42", id.ExternalID)
	}
	assert.Equal(t, 1, srv.discoveryHits(), "discovery result must be cached")
	assert.Equal(t, srv.URL+"/v1/userinfo", g.UserInfoURL())
}

func TestNewGoogleFromIssuer_DiscoveryFailureIsRetried(t *testing.T) {
	srv := newDiscoveryServer(t, false)
	g := provider.NewGoogleFromIssuer(srv.URL, provider.WithHTTPClient(srv.Client()))

	_, err := g.Verify(context.Background(), "tok")
	errutil.AssertErrorCode(t, err, string(auth.ReasonProviderUnavailable))

	srv.setAvailable(true)
	id, err := g.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", id.Email)
	assert.Equal(t, 2, srv.discoveryHits())
}

func TestNewGoogleFromIssuer_EmptyTokenSkipsDiscovery(t *testing.T) {
	srv := newDiscoveryServer(t, true)
	g := provider.NewGoogleFromIssuer(srv.URL, provider.WithHTTPClient(srv.Client()))

	_, err := g.Verify(context.Background(), "")
	errutil.AssertErrorCode(t, err, string(auth.ReasonInvalidToken))
	assert.Zero(t, srv.discoveryHits())
}

func TestGoogle_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("verified profile", func(t *testing.T) {
		g := newGoogle(t, requireBearer("valid-token-B", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"sub": "110169484474386276334", "email": "jane.doe@example.com", "email_verified": true, "name": "Jane Doe",
			})
		}))

		id, err := g.Verify(ctx, "valid-token-B")
		require.NoError(t, err)
		assert.Equal(t, &auth.ExternalIdentity{
			Provider:    account.ProviderGoogle,
			ExternalID:  "110169484474386276334",
			Email:       "jane.doe@example.com",
			DisplayName: "Jane Doe",
		}, id)
	})

	tests := []struct {
		name    string
		handler http.HandlerFunc
		reason  auth.Reason
	}{
		{
			name:    "expired token",
			handler: requireBearer("other", func(http.ResponseWriter, *http.Request) {}),
			reason:  auth.ReasonInvalidToken,
		},
		{
			name: "missing subject",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"email": "jane@example.com"})
			},
			reason: auth.ReasonInvalidToken,
		},
		{
			name: "missing email",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"sub": "1"})
			},
			reason: auth.ReasonInvalidToken,
		},
		{
			name: "unverified email",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"sub": "1", "email": "jane@example.com", "email_verified": false})
			},
			reason: auth.ReasonInvalidToken,
		},
		{
			name:    "service unavailable",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			reason:  auth.ReasonProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGoogle(t, tt.handler)
			id, err := g.Verify(ctx, "tok")
			assert.Nil(t, id)
			errutil.AssertErrorCode(t, err, string(tt.reason))
		})
	}
}

func TestGoogle_VerifyTimeout(t *testing.T) {
	g := newGoogle(t, hang, provider.WithTimeout(50*time.Millisecond))

	unavailable := auth.ProviderVerifications.WithLabelValues("google", string(auth.ReasonProviderUnavailable))
	before := testutil.ToFloat64(unavailable)

	_, err := g.Verify(context.Background(), "tok")
	errutil.AssertErrorCode(t, err, string(auth.ReasonProviderUnavailable))
	errutil.AssertErrorContext(t, err, "timeout", "50ms")
	assert.InDelta(t, before+1, testutil.ToFloat64(unavailable), 0)
}

func TestGoogle_VerifyHonorsCallerCancellation(t *testing.T) {
	g := newGoogle(t, hang)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Verify(ctx, "tok")
	errutil.AssertErrorCode(t, err, string(auth.ReasonProviderUnavailable))
}
