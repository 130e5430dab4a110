// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Command gen-schema writes the JSON Schemas of the request payloads
// accepted by authgate into schemas/.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/envelope"
)

// payloads maps output file names to request types.
var payloads = map[string]reflect.Type{
	"email_request.schema.json": reflect.TypeFor[auth.EmailRequest](),
	"sso_request.schema.json":   reflect.TypeFor[auth.SSORequest](),
	"registration.schema.json":  reflect.TypeFor[auth.Registration](),
}

func main() {
	if err := generate("schemas"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generate(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for name, t := range payloads {
		schema, err := envelope.GenerateSchema(t)
		if err != nil {
			return fmt.Errorf("generating %s: %w", name, err)
		}
		outPath := filepath.Join(dir, name)
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
	return nil
}
