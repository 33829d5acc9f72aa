// SPDX-License-Identifier: MIT

package translate

import (
	"strings"

	iso639_3 "github.com/barbashov/iso639-3"
)

// The tracking store holds ISO-639-3 codes (e.g. "deu"); most providers take
// ISO-639-1 or provider-specific variants. These helpers normalize in both
// directions and tolerate already-normalized input.

// ToISO1 converts any known language code to its two-letter form. Unknown
// codes pass through lower-cased.
func ToISO1(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if lang := iso639_3.FromAnyCode(code); lang != nil && lang.Part1 != "" {
		return lang.Part1
	}
	if len(code) > 2 {
		return code[:2]
	}
	return code
}

// ToISO3 converts any known language code to its three-letter form. Unknown
// codes pass through lower-cased.
func ToISO3(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if lang := iso639_3.FromAnyCode(code); lang != nil && lang.Part3 != "" {
		return lang.Part3
	}
	return code
}

// SameLanguage reports whether two codes, possibly in different ISO forms,
// name the same language.
func SameLanguage(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return ToISO3(a) == ToISO3(b)
}
