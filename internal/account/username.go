// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package account

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("ACCOUNT_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks that email is a bare RFC 5322 address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email %q is not a valid address", email)
	}
	return nil
}

// DeriveUsername builds a base username for a new SSO account from the
// provider login, falling back to the email local part and then to the
// provider and external id. The result always passes ValidateUsername.
func DeriveUsername(login, email string, provider Provider, externalID string) string {
	base := sanitizeUsername(login)
	if base == "" {
		local, _, _ := strings.Cut(email, "@")
		base = sanitizeUsername(local)
	}
	if base == "" {
		base = sanitizeUsername(string(provider) + "_" + externalID)
	}
	if base == "" || !isLetter(base[0]) {
		base = "user_" + base
	}
	if len(base) < MinUsernameLength {
		base += "_" + string(provider)
	}
	return truncate(strings.TrimRight(base, "_"), MaxUsernameLength)
}

// UsernameCandidates returns up to n usernames to try in order when the base
// is taken: base, base_<provider>, base_2, base_3, ...
func UsernameCandidates(base string, provider Provider, n int) []string {
	if n <= 0 {
		return nil
	}
	out := []string{base}
	if n > 1 {
		out = append(out, withSuffix(base, "_"+string(provider)))
	}
	for i := 2; len(out) < n; i++ {
		out = append(out, withSuffix(base, "_"+strconv.Itoa(i)))
	}
	return out
}

func withSuffix(base, suffix string) string {
	return truncate(base, MaxUsernameLength-len(suffix)) + suffix
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isLetter(c), c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		case c == '-', c == '.', c == '+', c == ' ':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
