// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

//go:build integration

package store_test

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/store"
	"github.com/wefix/authgate/pkg/errutil"
)

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *store.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		_, err := pool.Exec(ctx, "TRUNCATE accounts")
		Expect(err).NotTo(HaveOccurred())
		repo = store.NewAccountRepository(pool)
	})

	Describe("Create and lookup", func() {
		It("round-trips an email account", func() {
			acct, err := account.NewEmailAccount("alice", "alice@example.com", "$argon2id$hash", "c2FsdA")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, acct)).To(Succeed())

			got, err := repo.GetByID(ctx, acct.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Username).To(Equal("alice"))
			Expect(got.PasswordHash).To(Equal("$argon2id$hash"))
			Expect(got.Salt).To(Equal("c2FsdA"))
			Expect(got.CreatedAt).To(BeTemporally("~", acct.CreatedAt, 0))
		})

		It("finds usernames regardless of case", func() {
			acct, err := account.NewEmailAccount("Alice", "alice@example.com", "$argon2id$hash", "c2FsdA")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, acct)).To(Succeed())

			got, err := repo.GetByUsername(ctx, "ALICE")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(acct.ID))
		})

		It("looks up SSO accounts by provider identity", func() {
			acct, err := account.NewSSOAccount("octocat", "", account.ProviderGitHub, "583231")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, acct)).To(Succeed())

			got, err := repo.GetByExternalID(ctx, account.ProviderGitHub, "583231")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Kind).To(Equal(account.KindSSO))
			Expect(got.PasswordHash).To(BeEmpty())

			_, err = repo.GetByExternalID(ctx, account.ProviderGoogle, "583231")
			Expect(err).To(MatchError(account.ErrNotFound))
		})

		It("reports missing accounts as not found", func() {
			_, err := repo.GetByID(ctx, ulid.Make())
			Expect(err).To(MatchError(account.ErrNotFound))
			Expect(errutil.Code(err)).To(Equal("ACCOUNT_NOT_FOUND"))
		})
	})

	Describe("uniqueness", func() {
		It("rejects a username differing only in case", func() {
			first, err := account.NewEmailAccount("alice", "alice@example.com", "$argon2id$hash", "c2FsdA")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, first)).To(Succeed())

			second, err := account.NewSSOAccount("ALICE", "", account.ProviderGoogle, "1")
			Expect(err).NotTo(HaveOccurred())
			err = repo.Create(ctx, second)
			Expect(err).To(MatchError(account.ErrAlreadyExists))
			Expect(errutil.Code(err)).To(Equal("ACCOUNT_USERNAME_TAKEN"))
		})

		It("rejects a second account for the same provider identity", func() {
			first, err := account.NewSSOAccount("octocat", "", account.ProviderGitHub, "583231")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, first)).To(Succeed())

			second, err := account.NewSSOAccount("octocat_github", "", account.ProviderGitHub, "583231")
			Expect(err).NotTo(HaveOccurred())
			err = repo.Create(ctx, second)
			Expect(err).To(MatchError(account.ErrAlreadyExists))
			Expect(errutil.Code(err)).To(Equal("ACCOUNT_IDENTITY_EXISTS"))
		})

		It("lets exactly one concurrent create win", func() {
			const callers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for range callers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					acct, err := account.NewSSOAccount("racer", "", account.ProviderGitHub, "42")
					Expect(err).NotTo(HaveOccurred())
					if err := repo.Create(ctx, acct); err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					} else {
						Expect(err).To(MatchError(account.ErrAlreadyExists))
					}
				}()
			}
			wg.Wait()
			Expect(successes).To(Equal(1))
		})
	})
})
