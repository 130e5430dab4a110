// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_WritesEverySchema(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schemas")
	require.NoError(t, generate(dir))

	for name := range payloads {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)

		var schema map[string]any
		require.NoError(t, json.Unmarshal(data, &schema), name)
		assert.Equal(t, "object", schema["type"], name)
		assert.Contains(t, schema, "properties", name)
	}
}

func TestGenerate_EmailRequestRequiresCredentials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generate(dir))

	data, err := os.ReadFile(filepath.Join(dir, "email_request.schema.json"))
	require.NoError(t, err)

	var schema struct {
		Required []string `json:"required"`
	}
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.ElementsMatch(t, []string{"username", "password"}, schema.Required)
}
