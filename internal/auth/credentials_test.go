// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/auth/mocks"
	"github.com/wefix/authgate/internal/store/memory"
	"github.com/wefix/authgate/pkg/errutil"
)

// seedEmailAccount stores an email account whose password is hashed with the
// test parameters.
func seedEmailAccount(t *testing.T, repo account.Repository, username, password string) *account.Account {
	t.Helper()
	hash, salt, err := auth.NewArgon2idHasherWithParams(fastParams).Hash(password)
	require.NoError(t, err)
	acct, err := account.NewEmailAccount(username, username+"@example.com", hash, salt)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), acct))
	return acct
}

func TestNewCredentialVerifier_NilDependencies(t *testing.T) {
	_, err := auth.NewCredentialVerifier(nil, mocks.NewMockPasswordHasher(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts repository is required")

	_, err = auth.NewCredentialVerifier(mocks.NewMockAccountRepository(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password hasher is required")
}

func TestCredentialVerifier_Verify(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()
	alice := seedEmailAccount(t, repo, "alice", "correct")
	sso, err := account.NewSSOAccount("octocat", "", account.ProviderGitHub, "1")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, sso))

	verifier, err := auth.NewCredentialVerifier(repo, auth.NewArgon2idHasherWithParams(fastParams))
	require.NoError(t, err)

	t.Run("correct password returns the account", func(t *testing.T) {
		got, err := verifier.Verify(ctx, "alice", "correct")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("username lookup is case-insensitive", func(t *testing.T) {
		got, err := verifier.Verify(ctx, "ALICE", "correct")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	wrongPassword, errWrong := verifier.Verify(ctx, "alice", "wrong")
	unknownUser, errUnknown := verifier.Verify(ctx, "nobody", "correct")
	ssoUser, errSSO := verifier.Verify(ctx, "octocat", "anything")

	t.Run("wrong password is invalid credentials", func(t *testing.T) {
		assert.Nil(t, wrongPassword)
		errutil.AssertErrorCode(t, errWrong, string(auth.ReasonInvalidCredentials))
	})

	t.Run("unknown username is identical to wrong password", func(t *testing.T) {
		assert.Nil(t, unknownUser)
		errutil.AssertErrorCode(t, errUnknown, string(auth.ReasonInvalidCredentials))
		assert.Equal(t, errWrong.Error(), errUnknown.Error())
		assert.Equal(t, errutil.Code(errWrong), errutil.Code(errUnknown))
	})

	t.Run("sso account has no password", func(t *testing.T) {
		assert.Nil(t, ssoUser)
		assert.Equal(t, errWrong.Error(), errSSO.Error())
		assert.Equal(t, errutil.Code(errWrong), errutil.Code(errSSO))
	})

	t.Run("any incorrect password is rejected", func(t *testing.T) {
		for _, pw := range []string{"Correct", "correct ", "correc", "", "correctcorrect"} {
			_, err := verifier.Verify(ctx, "alice", pw)
			errutil.AssertErrorCode(t, err, string(auth.ReasonInvalidCredentials))
		}
	})
}

func TestCredentialVerifier_UnknownUserStillHashes(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockAccountRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)

	repo.EXPECT().GetByUsername(ctx, "nobody").Return(nil, account.ErrNotFound)
	hasher.EXPECT().Verify("pw", mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return(false, nil).Once()

	verifier, err := auth.NewCredentialVerifier(repo, hasher)
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, "nobody", "pw")
	errutil.AssertErrorCode(t, err, string(auth.ReasonInvalidCredentials))
}

func TestCredentialVerifier_StorageFailureIsNotInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockAccountRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)

	repo.EXPECT().GetByUsername(ctx, "alice").Return(nil, errors.New("connection refused"))

	verifier, err := auth.NewCredentialVerifier(repo, hasher)
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, "alice", "correct")
	require.Error(t, err)
	assert.Equal(t, auth.ReasonFailed, auth.Classify(err))
}

func TestCredentialVerifier_CorruptHashIsInternal(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()
	acct, err := account.NewEmailAccount("alice", "alice@example.com", "garbage", "c2FsdA")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, acct))

	verifier, err := auth.NewCredentialVerifier(repo, auth.NewArgon2idHasherWithParams(fastParams))
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, "alice", "correct")
	require.Error(t, err)
	assert.Equal(t, auth.ReasonFailed, auth.Classify(err))
}
