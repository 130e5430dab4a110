// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

//go:build integration

package main

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("Migrate command", func() {
	BeforeEach(func(ctx SpecContext) {
		resetDatabase(ctx)
	})

	It("applies, reports and rolls back the schema", func(ctx SpecContext) {
		out, err := runCLI("", "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("Current version: 0"))
		Expect(out).To(ContainSubstring("[pending] 000001_accounts"))

		out, err = runCLI("", "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("Migrations completed successfully"))

		out, err = runCLI("", "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("Schema is up to date"))

		out, err = runCLI("", "migrate", "down")
		Expect(err).NotTo(HaveOccurred(), out)

		var exists bool
		Expect(env.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'accounts')",
		).Scan(&exists)).To(Succeed())
		Expect(exists).To(BeFalse())
	})

	It("running up twice is harmless", func() {
		_, err := runCLI("", "migrate", "up")
		Expect(err).NotTo(HaveOccurred())
		out, err := runCLI("", "migrate")
		Expect(err).NotTo(HaveOccurred(), out)
	})
})

var _ = Describe("Seed command", func() {
	var seedPath string

	BeforeEach(func(ctx SpecContext) {
		resetDatabase(ctx)
		_, err := runCLI("", "migrate", "up")
		Expect(err).NotTo(HaveOccurred())

		seedPath = filepath.Join(GinkgoT().TempDir(), "seed.yaml")
		Expect(os.WriteFile(seedPath, []byte(`
accounts:
  - username: alice
    email: alice@example.com
    password: correct-horse
  - username: bob
    email: bob@example.com
    password: battery-staple
`), 0o600)).To(Succeed())
	})

	It("creates email accounts in postgres", func(ctx SpecContext) {
		out, err := runCLI("", "seed", seedPath)
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("Seed complete: 2 created, 0 skipped"))

		var kind, email string
		Expect(env.pool.QueryRow(ctx,
			"SELECT kind, email FROM accounts WHERE lower(username) = 'alice'",
		).Scan(&kind, &email)).To(Succeed())
		Expect(kind).To(Equal("email"))
		Expect(email).To(Equal("alice@example.com"))
	})

	It("is idempotent", func(ctx SpecContext) {
		_, err := runCLI("", "seed", seedPath)
		Expect(err).NotTo(HaveOccurred())

		out, err := runCLI("", "seed", seedPath)
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("Seed complete: 0 created, 2 skipped"))

		var count int
		Expect(env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(2))
	})
})
