// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package vault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/keyhive/pkg/vault"
)

func TestStrength(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		secret string
		want   int
	}{
		{"empty", "", 0},
		{"short lowercase", "abc", 0},
		{"eight lowercase", "abcdefgh", 1},
		{"eight mixed case", "Abcdefgh", 2},
		{"mixed case with digit", "Abcdefg1", 3},
		{"long mixed with digit", "Abcdefghijk1", 4},
		{"everything", "Abcdefghijk1!", 4},
		{"digits only long", "123456789012", 3},
		{"symbols push short over", "Ab1!xyzq", 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, vault.Strength(tc.secret))
		})
	}
}
