// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"github.com/samber/oops"

	"github.com/wefix/authgate/internal/envelope"
	"github.com/wefix/authgate/pkg/errutil"
)

// Reason classifies an authentication failure. Its value is the oops code
// carried by errors of that class.
type Reason string

// Failure reasons.
const (
	ReasonMalformedEnvelope   Reason = envelope.CodeMalformedEnvelope
	ReasonSignatureMismatch   Reason = envelope.CodeSignatureMismatch
	ReasonMalformedPayload    Reason = envelope.CodeMalformedPayload
	ReasonInvalidCredentials  Reason = "AUTH_INVALID_CREDENTIALS"
	ReasonInvalidToken        Reason = "AUTH_INVALID_TOKEN"
	ReasonProviderUnavailable Reason = "AUTH_PROVIDER_UNAVAILABLE"
	ReasonFailed              Reason = "AUTH_FAILED"
)

// Message returns the fixed public message for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonMalformedEnvelope, ReasonSignatureMismatch, ReasonMalformedPayload:
		return "bad request"
	case ReasonInvalidCredentials:
		return "invalid credentials"
	default:
		return "authentication failed"
	}
}

// Err returns a fresh error carrying only the reason code and its public
// message.
func (r Reason) Err() error {
	return oops.Code(string(r)).New(r.Message())
}

// Classify maps any error to its failure reason. Errors without a reason
// code are ReasonFailed.
func Classify(err error) Reason {
	switch r := Reason(errutil.Code(err)); r {
	case ReasonMalformedEnvelope,
		ReasonSignatureMismatch,
		ReasonMalformedPayload,
		ReasonInvalidCredentials,
		ReasonInvalidToken,
		ReasonProviderUnavailable:
		return r
	default:
		return ReasonFailed
	}
}
