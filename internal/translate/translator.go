// SPDX-License-Identifier: MIT

// Package translate produces per-language translation text and re-timed
// subtitles: the provider adapters, chunking, language routing, the chunk
// cache and the translation engine.
package translate

import (
	"context"
)

// Formality levels for providers that support it.
type Formality string

const (
	FormalityDefault Formality = "default"
	FormalityMore    Formality = "more"
	FormalityLess    Formality = "less"
)

// Options tunes one translation request.
type Options struct {
	Formality Formality
}

// Translator is the shared capability over all provider variants. The engine
// depends on this interface, never a concrete variant.
type Translator interface {
	Name() string
	Supports(sourceLang, targetLang string) bool
	MaxChunkChars() int
	SupportsFormality() bool
	Translate(ctx context.Context, text, targetLang, sourceLang string, opts Options) (string, error)
}

// The RTL target in the supported language set. It gets special routing (not
// every provider supports it as a target) and optional LLM polishing.
const rtlTarget = "he"

// IsRTLTarget reports whether lang is the right-to-left target language.
func IsRTLTarget(lang string) bool {
	return ToISO1(lang) == rtlTarget
}

// ContainsRTL reports whether s holds at least one character from the Hebrew
// Unicode block.
func ContainsRTL(s string) bool {
	for _, r := range s {
		if r >= 0x0590 && r <= 0x05FF {
			return true
		}
	}
	return false
}
