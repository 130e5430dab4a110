// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/auth/mocks"
	"github.com/wefix/authgate/internal/store/memory"
	"github.com/wefix/authgate/pkg/errutil"
)

func octocat() *auth.ExternalIdentity {
	return &auth.ExternalIdentity{
		Provider:    account.ProviderGitHub,
		ExternalID:  "583231",
		Email:       "octocat@github.com",
		DisplayName: "The Octocat",
		Login:       "octocat",
	}
}

func TestNewResolver_NilRepository(t *testing.T) {
	r, err := auth.NewResolver(nil, nil)
	require.Error(t, err)
	assert.Nil(t, r)
}

func TestResolver_ResolveLocalIsIdentity(t *testing.T) {
	r, err := auth.NewResolver(memory.NewAccountRepository(), nil)
	require.NoError(t, err)

	acct, err := account.NewEmailAccount("alice", "alice@example.com", "$argon2id$hash", "c2FsdA")
	require.NoError(t, err)

	assert.Same(t, acct, r.ResolveLocal(acct))

	got, err := r.Resolve(context.Background(), auth.Identity{Local: acct})
	require.NoError(t, err)
	assert.Same(t, acct, got)
}

func TestResolver_ResolveRejectsAmbiguousIdentity(t *testing.T) {
	r, err := auth.NewResolver(memory.NewAccountRepository(), nil)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), auth.Identity{})
	errutil.AssertErrorCode(t, err, "AUTH_RESOLVE_FAILED")
}

func TestResolver_ResolveExternal(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account on first login", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		r, err := auth.NewResolver(repo, nil)
		require.NoError(t, err)

		acct, err := r.ResolveExternal(ctx, octocat())
		require.NoError(t, err)
		assert.Equal(t, account.KindSSO, acct.Kind)
		assert.Equal(t, account.ProviderGitHub, acct.Provider)
		assert.Equal(t, "583231", acct.ExternalID)
		assert.Equal(t, "octocat", acct.Username)
		assert.Equal(t, "octocat@github.com", acct.Email)
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("returns existing account on later logins", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		r, err := auth.NewResolver(repo, nil)
		require.NoError(t, err)

		first, err := r.ResolveExternal(ctx, octocat())
		require.NoError(t, err)
		second, err := r.ResolveExternal(ctx, octocat())
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("picks another username when taken by someone else", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		seedEmailAccount(t, repo, "octocat", "pw")
		r, err := auth.NewResolver(repo, nil)
		require.NoError(t, err)

		acct, err := r.ResolveExternal(ctx, octocat())
		require.NoError(t, err)
		assert.Equal(t, "octocat_github", acct.Username)
	})

	t.Run("drops an unusable email", func(t *testing.T) {
		r, err := auth.NewResolver(memory.NewAccountRepository(), nil)
		require.NoError(t, err)

		ext := octocat()
		ext.Email = "not an email"
		acct, err := r.ResolveExternal(ctx, ext)
		require.NoError(t, err)
		assert.Empty(t, acct.Email)
	})

	t.Run("same external id under another provider is a different account", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		r, err := auth.NewResolver(repo, nil)
		require.NoError(t, err)

		gh, err := r.ResolveExternal(ctx, octocat())
		require.NoError(t, err)
		ext := octocat()
		ext.Provider = account.ProviderGoogle
		g, err := r.ResolveExternal(ctx, ext)
		require.NoError(t, err)
		assert.NotEqual(t, gh.ID, g.ID)
		assert.Equal(t, 2, repo.Len())
	})

	t.Run("rejects incomplete identity", func(t *testing.T) {
		r, err := auth.NewResolver(memory.NewAccountRepository(), nil)
		require.NoError(t, err)

		_, err = r.ResolveExternal(ctx, &auth.ExternalIdentity{Provider: account.ProviderGitHub})
		errutil.AssertErrorCode(t, err, "AUTH_RESOLVE_FAILED")
		_, err = r.ResolveExternal(ctx, nil)
		errutil.AssertErrorCode(t, err, "AUTH_RESOLVE_FAILED")
	})
}

func TestResolver_LostRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockAccountRepository(t)
	winner, err := account.NewSSOAccount("octocat", "", account.ProviderGitHub, "583231")
	require.NoError(t, err)

	repo.EXPECT().GetByExternalID(ctx, account.ProviderGitHub, "583231").Return(nil, account.ErrNotFound).Once()
	repo.EXPECT().Create(ctx, mock.AnythingOfType("*account.Account")).Return(account.ErrAlreadyExists).Once()
	repo.EXPECT().GetByExternalID(ctx, account.ProviderGitHub, "583231").Return(winner, nil).Once()

	r, err := auth.NewResolver(repo, nil)
	require.NoError(t, err)

	got, err := r.ResolveExternal(ctx, octocat())
	require.NoError(t, err)
	assert.Same(t, winner, got)
}

func TestResolver_GivesUpAfterBoundedAttempts(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockAccountRepository(t)

	repo.EXPECT().GetByExternalID(ctx, account.ProviderGitHub, "583231").Return(nil, account.ErrNotFound)
	repo.EXPECT().Create(ctx, mock.AnythingOfType("*account.Account")).Return(account.ErrAlreadyExists).Times(5)

	r, err := auth.NewResolver(repo, nil)
	require.NoError(t, err)

	_, err = r.ResolveExternal(ctx, octocat())
	errutil.AssertErrorCode(t, err, "AUTH_RESOLVE_FAILED")
}

func TestResolver_StorageFailure(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockAccountRepository(t)
	repo.EXPECT().GetByExternalID(ctx, account.ProviderGitHub, "583231").Return(nil, errors.New("connection reset"))

	r, err := auth.NewResolver(repo, nil)
	require.NoError(t, err)

	_, err = r.ResolveExternal(ctx, octocat())
	require.Error(t, err)
	assert.Equal(t, auth.ReasonFailed, auth.Classify(err))
}

func TestResolver_ConcurrentFirstLoginsCreateOneAccount(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	repo := memory.NewAccountRepository()
	r, err := auth.NewResolver(repo, nil)
	require.NoError(t, err)

	const callers = 16
	results := make([]*account.Account, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = r.ResolveExternal(ctx, octocat())
		}()
	}
	close(start)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, repo.Len())
}
