// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"context"

	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/envelope"
)

// EmailRequest is the payload of the email flow.
type EmailRequest struct {
	Username string `json:"username" jsonschema:"minLength=1"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

// SSORequest is the payload of the SSO flows.
type SSORequest struct {
	AccessToken string `json:"access_token" jsonschema:"minLength=1"`
}

// Strategy performs the flow-specific step of an authentication: decoding
// the verified payload and establishing who the caller is.
type Strategy interface {
	Flow() Flow
	Identify(ctx context.Context, payload envelope.Payload) (Identity, error)
}

type emailStrategy struct {
	creds *CredentialVerifier
}

// NewEmailStrategy returns the Strategy for FlowEmail.
func NewEmailStrategy(creds *CredentialVerifier) Strategy {
	return &emailStrategy{creds: creds}
}

func (s *emailStrategy) Flow() Flow { return FlowEmail }

func (s *emailStrategy) Identify(ctx context.Context, payload envelope.Payload) (Identity, error) {
	var req EmailRequest
	if err := payload.Decode(&req); err != nil {
		return Identity{}, err
	}
	acct, err := s.creds.Verify(ctx, req.Username, req.Password)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Local: acct}, nil
}

type ssoStrategy struct {
	verifier IdentityVerifier
}

// NewSSOStrategy returns the Strategy for the flow named after the
// verifier's provider.
func NewSSOStrategy(verifier IdentityVerifier) Strategy {
	return &ssoStrategy{verifier: verifier}
}

func (s *ssoStrategy) Flow() Flow { return Flow(s.verifier.Provider()) }

func (s *ssoStrategy) Identify(ctx context.Context, payload envelope.Payload) (Identity, error) {
	var req SSORequest
	if err := payload.Decode(&req); err != nil {
		return Identity{}, err
	}

	ext, err := s.verifier.Verify(ctx, req.AccessToken)
	if err != nil {
		return Identity{}, err
	}
	if ext == nil || ext.Provider != s.verifier.Provider() {
		return Identity{}, oops.Code("AUTH_IDENTITY_MISMATCH").
			With("provider", string(s.verifier.Provider())).
			Errorf("verifier returned an identity for another provider")
	}
	return Identity{External: ext}, nil
}
