// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package main is the entry point for the authgate server.
package main

import (
	"os"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = versionString()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
