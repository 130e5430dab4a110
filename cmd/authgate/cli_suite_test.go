// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

//go:build integration

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestCLI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CLI Integration Suite")
}

// testEnv holds the database shared by the CLI specs.
type testEnv struct {
	pool      *pgxpool.Pool
	container *postgres.PostgresContainer
	connStr   string
}

var env *testEnv

var _ = BeforeSuite(func(ctx SpecContext) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authgate_test"),
		postgres.WithUsername("authgate"),
		postgres.WithPassword("authgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	pool, err := pgxpool.New(ctx, connStr)
	Expect(err).NotTo(HaveOccurred())

	env = &testEnv{pool: pool, container: container, connStr: connStr}
}, NodeTimeout(2*time.Minute))

var _ = AfterSuite(func(ctx SpecContext) {
	if env == nil {
		return
	}
	env.pool.Close()
	Expect(env.container.Terminate(ctx)).To(Succeed())
})

// runCLI executes the root command in-process against the suite database.
func runCLI(stdin string, args ...string) (string, error) {
	configFile = ""
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--database-url", env.connStr, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetDatabase drops the schema so each spec starts from nothing.
func resetDatabase(ctx context.Context) {
	_, err := env.pool.Exec(ctx, "DROP TABLE IF EXISTS accounts, schema_migrations CASCADE")
	Expect(err).NotTo(HaveOccurred())
}
