// SPDX-License-Identifier: MIT

// Package subtitle builds, parses and re-times SRT subtitles. The writer is
// hand-rolled because the on-disk format is a bit-exact contract; parsing of
// existing files goes through astisub.
package subtitle

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Cue limits: a cue closes when the next word would push its text past
// MaxCueChars or its span past MaxCueDuration seconds. A single long word may
// exceed the character bound on its own.
const (
	MaxCueChars    = 40
	MaxCueDuration = 5.0
)

// Word is one transcribed token with absolute timing.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Cue is one subtitle block.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// CuesFromWords groups a word stream into cues. Indices start at 1. A nil or
// empty word list yields no cues.
func CuesFromWords(words []Word) []Cue {
	var cues []Cue
	var cur *Cue

	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if cur == nil {
			cues = append(cues, Cue{Index: len(cues) + 1, Start: w.Start, End: w.End, Text: text})
			cur = &cues[len(cues)-1]
			continue
		}

		candidate := cur.Text + " " + text
		if utf8.RuneCountInString(candidate) > MaxCueChars || w.Start-cur.Start > MaxCueDuration {
			cues = append(cues, Cue{Index: len(cues) + 1, Start: w.Start, End: w.End, Text: text})
			cur = &cues[len(cues)-1]
			continue
		}

		cur.Text = candidate
		if w.End > cur.End {
			cur.End = w.End
		}
	}
	return cues
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int(seconds)
	ms := int((seconds-float64(whole))*1000 + 0.5)
	if ms >= 1000 {
		whole++
		ms -= 1000
	}
	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Render serializes cues to SRT: blocks separated by one blank line, each
// block index, time range, text. Zero cues render to an empty file.
func Render(cues []Cue) string {
	if len(cues) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", c.Index, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
	return b.String()
}
