// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"github.com/stacklok/keyhive/pkg/errors"
)

var (
	// ErrNotFound is returned when a requested resource does not exist
	// or belongs to another account.
	ErrNotFound = errors.NewNotFoundError("resource not found", nil)

	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.NewConflictError("resource already exists", nil)
)
