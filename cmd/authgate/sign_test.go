// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/envelope"
	"github.com/wefix/authgate/pkg/errutil"
)

func testCodec(t *testing.T, digest envelope.Digest) *envelope.Codec {
	t.Helper()
	codec, err := envelope.NewCodec([]byte(testEnvelopeSecret), digest)
	require.NoError(t, err)
	return codec
}

func TestSignCommand_FromStdin(t *testing.T) {
	t.Setenv("AUTHGATE_ENVELOPE__SECRET", testEnvelopeSecret)

	out, err := execute(t, `{"username": "alice", "password": "pw"}`, "sign", "--flow", "email")
	require.NoError(t, err)

	req, err := envelope.Decode[auth.EmailRequest](testCodec(t, envelope.DigestHMACSHA256), []byte(strings.TrimSpace(out)))
	require.NoError(t, err)
	assert.Equal(t, auth.EmailRequest{Username: "alice", Password: "pw"}, req)
}

func TestSignCommand_FromFileWithSHA512(t *testing.T) {
	t.Setenv("AUTHGATE_ENVELOPE__SECRET", testEnvelopeSecret)
	t.Setenv("AUTHGATE_ENVELOPE__DIGEST", string(envelope.DigestHMACSHA512))
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"gho_abc"}`), 0o600))

	out, err := execute(t, "", "sign", path, "--flow", "github")
	require.NoError(t, err)

	req, err := envelope.Decode[auth.SSORequest](testCodec(t, envelope.DigestHMACSHA512), []byte(strings.TrimSpace(out)))
	require.NoError(t, err)
	assert.Equal(t, "gho_abc", req.AccessToken)

	_, err = testCodec(t, envelope.DigestHMACSHA256).Open([]byte(strings.TrimSpace(out)))
	errutil.AssertErrorCode(t, err, envelope.CodeSignatureMismatch)
}

func TestSignCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		secret   string
		wantCode string
	}{
		{name: "missing secret", stdin: `{}`, args: []string{"sign"}, secret: "", wantCode: "CONFIG_INVALID"},
		{name: "invalid json", stdin: `{"username":`, args: []string{"sign"}, secret: testEnvelopeSecret, wantCode: "SIGN_INVALID_PAYLOAD"},
		{name: "unknown flow", stdin: `{}`, args: []string{"sign", "--flow", "saml"}, secret: testEnvelopeSecret, wantCode: "SIGN_UNKNOWN_FLOW"},
		{
			name:     "payload does not match flow",
			stdin:    `{"username":"alice"}`,
			args:     []string{"sign", "--flow", "email"},
			secret:   testEnvelopeSecret,
			wantCode: envelope.CodeMalformedPayload,
		},
		{
			name:     "missing file",
			args:     []string{"sign", "/nonexistent/payload.json"},
			secret:   testEnvelopeSecret,
			wantCode: "SIGN_READ_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTHGATE_ENVELOPE__SECRET", tt.secret)
			_, err := execute(t, tt.stdin, tt.args...)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestSignCommand_RejectsOversizedInput(t *testing.T) {
	t.Setenv("AUTHGATE_ENVELOPE__SECRET", testEnvelopeSecret)
	big := `"` + strings.Repeat("a", maxSignInput) + `"`

	_, err := execute(t, big, "sign")
	errutil.AssertErrorCode(t, err, "SIGN_INVALID_PAYLOAD")
	errutil.AssertErrorContext(t, err, "limit", maxSignInput)
}
