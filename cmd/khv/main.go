// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the keyhive CLI.
package main

import (
	"errors"
	"os"

	"github.com/stacklok/keyhive/cmd/khv/app"
	"github.com/stacklok/keyhive/pkg/logger"
	"github.com/stacklok/keyhive/pkg/storage/sqlite"
)

// Exit codes. Migration failures exit 2 so wrappers can tell a broken
// schema from the ordinary fatal errors exiting 1.
const (
	exitFatalError     = 1
	exitMigrationError = 2
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		if errors.Is(err, sqlite.ErrMigrationFailed) {
			os.Exit(exitMigrationError)
		}
		os.Exit(exitFatalError)
	}
}
