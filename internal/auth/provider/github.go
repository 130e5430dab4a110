// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package provider

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
)

// DefaultGitHubAPIURL is the public GitHub REST API.
const DefaultGitHubAPIURL = "https://api.github.com"

// GitHub verifies GitHub OAuth access tokens against the REST API.
type GitHub struct {
	apiURL string
	fetch  *fetcher
}

var _ auth.IdentityVerifier = (*GitHub)(nil)

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHub creates a GitHub verifier. An empty apiURL uses DefaultGitHubAPIURL.
func NewGitHub(apiURL string, opts ...Option) (*GitHub, error) {
	if apiURL == "" {
		apiURL = DefaultGitHubAPIURL
	}
	if !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		return nil, oops.Code("PROVIDER_INVALID_CONFIG").
			With("provider", string(account.ProviderGitHub)).
			Errorf("github api url must be absolute: %q", apiURL)
	}
	return &GitHub{
		apiURL: strings.TrimRight(apiURL, "/"),
		fetch: &fetcher{
			provider: account.ProviderGitHub,
			opts:     buildOptions(opts),
			headers: map[string]string{
				"Accept":               "application/vnd.github+json",
				"X-GitHub-Api-Version": "2022-11-28",
			},
		},
	}, nil
}

// Provider returns account.ProviderGitHub.
func (g *GitHub) Provider() account.Provider {
	return account.ProviderGitHub
}

// Verify fetches the token owner's profile. When the profile has no public
// email, the primary verified address is looked up separately; a token
// without the email scope still verifies, with an empty email.
func (g *GitHub) Verify(ctx context.Context, accessToken string) (id *auth.ExternalIdentity, err error) {
	defer func() { record(account.ProviderGitHub, err) }()

	err = g.fetch.do(ctx, accessToken, func(ctx context.Context, c *http.Client) error {
		var user githubUser
		if err := g.fetch.getJSON(ctx, c, g.apiURL+"/user", &user); err != nil {
			return err
		}
		if user.ID <= 0 {
			return g.fetch.invalid(nil, http.StatusOK, "profile has no user id")
		}

		email := user.Email
		if email == "" {
			primary, err := g.primaryEmail(ctx, c)
			if err != nil {
				return err
			}
			email = primary
		}

		id = &auth.ExternalIdentity{
			Provider:    account.ProviderGitHub,
			ExternalID:  strconv.FormatInt(user.ID, 10),
			Email:       email,
			DisplayName: firstNonEmpty(user.Name, user.Login),
			Login:       user.Login,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

func (g *GitHub) primaryEmail(ctx context.Context, c *http.Client) (string, error) {
	var emails []githubEmail
	if err := g.fetch.getJSON(ctx, c, g.apiURL+"/user/emails", &emails); err != nil {
		if auth.Classify(err) == auth.ReasonInvalidToken {
			return "", nil
		}
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
