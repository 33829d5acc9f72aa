// SPDX-License-Identifier: MIT

// Package sanitize derives stable, filesystem-safe artifact names from
// original media filenames.
package sanitize

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold decomposes characters and strips combining marks, so "Über" becomes "Uber".
var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Filename converts an arbitrary basename into the canonical safe form:
// ASCII-folded, lower-cased, runs of non-alphanumerics collapsed to a single
// underscore, trimmed. An empty stem collapses to "file". The extension is
// preserved lower-cased. The result only contains [a-z0-9_.] and the function
// is idempotent.
// Example: "Über File(1).mp3" → "uber_file_1.mp3"
func Filename(name string) string {
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	stem = sanitizePart(stem)
	if stem == "" {
		stem = "file"
	}

	ext = sanitizeExt(ext)
	return stem + ext
}

// Stem returns the sanitized stem of name without its extension. Artifact
// directories are derived from this.
func Stem(name string) string {
	safe := Filename(name)
	return strings.TrimSuffix(safe, filepath.Ext(safe))
}

func sanitizePart(s string) string {
	folded, _, err := transform.String(fold, s)
	if err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var result strings.Builder
	lastWasSep := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			result.WriteRune(r)
			lastWasSep = false
		case r > unicode.MaxASCII:
			// unmappable after folding: dropped, not a separator
		default:
			if !lastWasSep {
				result.WriteRune('_')
				lastWasSep = true
			}
		}
	}

	return strings.Trim(result.String(), "_")
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	var result strings.Builder
	for _, r := range strings.ToLower(ext) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return ""
	}
	return "." + result.String()
}
