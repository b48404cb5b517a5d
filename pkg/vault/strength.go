// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package vault

import "unicode"

// Strength scores a secret 0..4. The function is deterministic and stable
// across releases; stored strength columns and the health analysis both
// depend on it. One point each for: length of at least 8, length of at
// least 12, mixed upper and lower case, a digit, a non-alphanumeric
// character; capped at 4.
func Strength(secret string) int {
	if secret == "" {
		return 0
	}

	var score int
	if len(secret) >= 8 {
		score++
	}
	if len(secret) >= 12 {
		score++
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if hasUpper && hasLower {
		score++
	}
	if hasDigit {
		score++
	}
	if hasSymbol {
		score++
	}

	if score > 4 {
		score = 4
	}
	return score
}
