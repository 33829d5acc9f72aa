// SPDX-License-Identifier: MIT

package subtitle

import (
	"strings"
	"unicode/utf8"
)

// Retime distributes translated text across the original cues, preserving
// every cue's index and time range. When the text splits into at least as
// many sentences as there are cues, sentences are allocated proportionally
// to the original cue text lengths; otherwise the text is cut at
// length-proportional offsets snapped to whitespace.
func Retime(orig []Cue, translated string) []Cue {
	translated = strings.TrimSpace(translated)
	if len(orig) == 0 {
		return nil
	}

	pieces := sentenceAllocation(orig, translated)
	if pieces == nil {
		pieces = proportionalSplit(orig, translated)
	}

	out := make([]Cue, len(orig))
	for i, c := range orig {
		text := pieces[len(pieces)-1] // pad with the last piece
		if i < len(pieces) {
			text = pieces[i]
		}
		out[i] = Cue{Index: c.Index, Start: c.Start, End: c.End, Text: text}
	}
	return out
}

// sentenceAllocation groups sentences into len(orig) pieces weighted by the
// original cue lengths. Returns nil when the text has fewer sentences than
// cues.
func sentenceAllocation(orig []Cue, translated string) []string {
	sentences := SplitSentences(translated, ".!?")
	if len(sentences) < len(orig) {
		sentences = SplitSentences(translated, ".!?,;:")
	}
	if len(sentences) < len(orig) {
		return nil
	}

	weights := cueWeights(orig)
	n := len(orig)
	pieces := make([]string, 0, n)
	next := 0
	cumulative := 0.0
	for i := 0; i < n; i++ {
		cumulative += weights[i]
		// Sentences up to the cumulative weight boundary; always at least one,
		// and leave enough for the remaining cues.
		end := int(cumulative*float64(len(sentences)) + 0.5)
		if end < next+1 {
			end = next + 1
		}
		if remaining := n - i - 1; end > len(sentences)-remaining {
			end = len(sentences) - remaining
		}
		if i == n-1 {
			end = len(sentences)
		}
		pieces = append(pieces, strings.TrimSpace(strings.Join(sentences[next:end], " ")))
		next = end
	}
	return pieces
}

// proportionalSplit cuts the text at offsets proportional to the original cue
// lengths, snapping each cut to the nearest whitespace so words stay whole.
func proportionalSplit(orig []Cue, translated string) []string {
	runes := []rune(translated)
	total := len(runes)
	if total == 0 {
		return make([]string, len(orig))
	}

	weights := cueWeights(orig)
	pieces := make([]string, 0, len(orig))
	start := 0
	cumulative := 0.0
	for i := range orig {
		cumulative += weights[i]
		end := int(cumulative*float64(total) + 0.5)
		if i == len(orig)-1 {
			end = total
		}
		if end < start {
			end = start
		}
		if end > total {
			end = total
		}
		if i < len(orig)-1 {
			end = snapToWhitespace(runes, end)
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[start:end])))
		start = end
	}
	return pieces
}

// SplitSentences splits text on the delimiter set, keeping the delimiter with
// its sentence. Runs of delimiters stay together ("..." does not produce
// empty sentences).
func SplitSentences(text, delims string) []string {
	var out []string
	var cur strings.Builder
	inDelim := false
	for _, r := range text {
		isDelim := strings.ContainsRune(delims, r)
		if inDelim && !isDelim {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
		cur.WriteRune(r)
		inDelim = isDelim
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func cueWeights(orig []Cue) []float64 {
	total := 0
	for _, c := range orig {
		total += utf8.RuneCountInString(c.Text)
	}
	weights := make([]float64, len(orig))
	for i, c := range orig {
		if total == 0 {
			weights[i] = 1.0 / float64(len(orig))
		} else {
			weights[i] = float64(utf8.RuneCountInString(c.Text)) / float64(total)
		}
	}
	return weights
}

func snapToWhitespace(runes []rune, pos int) int {
	if pos <= 0 || pos >= len(runes) {
		return pos
	}
	// Walk outward from pos to the nearest space.
	for d := 0; d < len(runes); d++ {
		if pos-d > 0 && isSpace(runes[pos-d]) {
			return pos - d
		}
		if pos+d < len(runes) && isSpace(runes[pos+d]) {
			return pos + d
		}
	}
	return pos
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
