// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package envelope signs and verifies tamper-evident request payloads.
//
// An envelope travels as a JSON object with two base64 fields:
//
//	{"payload": "<base64 payload bytes>", "signature": "<base64 digest>"}
//
// The payload bytes are the encoding/json rendering of the request object and
// the signature is a keyed digest (HMAC) over exactly those bytes. The
// verifier never re-serializes the payload, so the signed bytes are the
// decoded bytes.
package envelope

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"hash"
	"io"

	"github.com/samber/oops"
)

// Error codes produced by the codec.
const (
	CodeMalformedEnvelope = "ENVELOPE_MALFORMED"
	CodeSignatureMismatch = "ENVELOPE_SIGNATURE_MISMATCH"
	CodeMalformedPayload  = "PAYLOAD_MALFORMED"
)

// Digest names a keyed digest scheme.
type Digest string

// Supported digest schemes.
const (
	DigestHMACSHA256 Digest = "hmac-sha256"
	DigestHMACSHA512 Digest = "hmac-sha512"
)

// MinSecretLength is the shortest shared secret the codec accepts.
const MinSecretLength = 16

// Envelope is a payload plus its integrity signature.
type Envelope struct {
	Payload   []byte `json:"payload"`
	Signature []byte `json:"signature"`
}

// Codec signs and opens envelopes with a shared secret.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	secret  []byte
	digest  Digest
	newHash func() hash.Hash
}

// NewCodec creates a codec for the given secret and digest scheme.
// An empty digest selects DigestHMACSHA256.
func NewCodec(secret []byte, digest Digest) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("ENVELOPE_INVALID_SECRET").
			With("min_length", MinSecretLength).
			Errorf("shared secret must be at least %d bytes", MinSecretLength)
	}

	var newHash func() hash.Hash
	switch digest {
	case DigestHMACSHA256, "":
		digest = DigestHMACSHA256
		newHash = sha256.New
	case DigestHMACSHA512:
		newHash = sha512.New
	default:
		return nil, oops.Code("ENVELOPE_INVALID_DIGEST").
			With("digest", string(digest)).
			Errorf("unsupported digest scheme %q", digest)
	}

	return &Codec{
		secret:  bytes.Clone(secret),
		digest:  digest,
		newHash: newHash,
	}, nil
}

// Digest returns the digest scheme in use.
func (c *Codec) Digest() Digest {
	return c.digest
}

// Sign serializes payload and computes its signature.
func (c *Codec) Sign(payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, oops.Code("ENVELOPE_SIGN_FAILED").
			With("operation", "marshal payload").
			Wrap(err)
	}
	return &Envelope{Payload: data, Signature: c.mac(data)}, nil
}

// Seal signs payload and returns the envelope in wire form.
func (c *Codec) Seal(payload any) ([]byte, error) {
	env, err := c.Sign(payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, oops.Code("ENVELOPE_SIGN_FAILED").
			With("operation", "marshal envelope").
			Wrap(err)
	}
	return raw, nil
}

// Open parses a wire envelope and verifies its signature.
// The returned payload has not been decoded yet.
func (c *Codec) Open(raw []byte) (Payload, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if len(env.Payload) == 0 {
		return nil, oops.Code(CodeMalformedEnvelope).Errorf("envelope payload is missing")
	}
	if len(env.Signature) == 0 {
		return nil, oops.Code(CodeMalformedEnvelope).Errorf("envelope signature is missing")
	}

	if !hmac.Equal(c.mac(env.Payload), env.Signature) {
		return nil, oops.Code(CodeSignatureMismatch).
			With("digest", string(c.digest)).
			Errorf("envelope signature does not match payload")
	}

	return Payload(env.Payload), nil
}

// parseEnvelope reads the wire object. Keys must match "payload" and
// "signature" exactly and appear at most once.
func parseEnvelope(raw []byte) (*Envelope, error) {
	malformed := func(err error) error {
		return oops.Code(CodeMalformedEnvelope).With("operation", "parse envelope").Wrap(err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil {
		return nil, malformed(err)
	} else if tok != json.Delim('{') {
		return nil, oops.Code(CodeMalformedEnvelope).Errorf("envelope is not a JSON object")
	}

	var env Envelope
	seen := make(map[string]bool, 2)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		key, _ := tok.(string)
		var dst *[]byte
		switch key {
		case "payload":
			dst = &env.Payload
		case "signature":
			dst = &env.Signature
		default:
			return nil, oops.Code(CodeMalformedEnvelope).With("field", key).Errorf("unknown envelope field %q", key)
		}
		if seen[key] {
			return nil, oops.Code(CodeMalformedEnvelope).With("field", key).Errorf("duplicate envelope field %q", key)
		}
		seen[key] = true
		if err := dec.Decode(dst); err != nil {
			return nil, malformed(err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, malformed(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, oops.Code(CodeMalformedEnvelope).Errorf("trailing data after envelope")
	}
	return &env, nil
}

// Decode opens raw and decodes the verified payload into a T.
func Decode[T any](c *Codec, raw []byte) (T, error) {
	var v T
	payload, err := c.Open(raw)
	if err != nil {
		return v, err
	}
	if err := payload.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}

func (c *Codec) mac(data []byte) []byte {
	m := hmac.New(c.newHash, c.secret)
	m.Write(data) //nolint:errcheck // hash.Hash.Write never returns an error
	return m.Sum(nil)
}
