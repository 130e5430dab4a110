// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package account

import "errors"

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("account not found")

// ErrAlreadyExists is returned when an account conflicts with an existing
// username or external identity.
var ErrAlreadyExists = errors.New("account already exists")
