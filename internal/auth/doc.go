// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package auth implements the authentication gateway.
//
// # Flows
//
// Every inbound request is a signed envelope (see package envelope). The
// Gateway opens the envelope and hands the verified payload to the Strategy
// registered for the flow:
//   - FlowEmail - username and password, checked by CredentialVerifier
//   - FlowGitHub, FlowGoogle - a provider access token, checked by an
//     IdentityVerifier (see package provider)
//
// The Resolver maps the verified identity to an account, creating SSO
// accounts on first login, and the Issuer signs a stateless session token.
//
// # Errors
//
// Gateway failures carry exactly one Reason code and that reason's public
// message. Internal causes are logged and never returned.
//
// # Services
//
// Services are created with New* constructors that validate dependencies.
package auth
