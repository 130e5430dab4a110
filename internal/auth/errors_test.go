// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/pkg/errutil"
)

func TestReason_Err(t *testing.T) {
	tests := []struct {
		reason  auth.Reason
		message string
	}{
		{auth.ReasonMalformedEnvelope, "bad request"},
		{auth.ReasonSignatureMismatch, "bad request"},
		{auth.ReasonMalformedPayload, "bad request"},
		{auth.ReasonInvalidCredentials, "invalid credentials"},
		{auth.ReasonInvalidToken, "authentication failed"},
		{auth.ReasonProviderUnavailable, "authentication failed"},
		{auth.ReasonFailed, "authentication failed"},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := tt.reason.Err()
			errutil.AssertErrorCode(t, err, string(tt.reason))
			assert.Equal(t, tt.message, err.Error())
			assert.Empty(t, oopsContext(err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, auth.ReasonFailed, auth.Classify(errors.New("boom")))
	assert.Equal(t, auth.ReasonFailed, auth.Classify(oops.Code("SOMETHING_ELSE").Errorf("x")))
	assert.Equal(t, auth.ReasonInvalidToken,
		auth.Classify(oops.Code(string(auth.ReasonInvalidToken)).Wrap(errors.New("401"))))
	assert.Equal(t, auth.ReasonProviderUnavailable,
		auth.Classify(fmt.Errorf("wrapped: %w", oops.Code(string(auth.ReasonProviderUnavailable)).Errorf("timeout"))))
}

func oopsContext(err error) map[string]any {
	if o, ok := oops.AsOops(err); ok {
		return o.Context()
	}
	return nil
}
