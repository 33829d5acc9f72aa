// SPDX-License-Identifier: MIT

package translate

import (
	"strings"
)

// Chunk is one translatable piece of a larger text, together with the
// separator that joined it to the piece before it. Recording the separator
// lets translated chunks be reassembled without inventing boundaries that
// were never in the source.
type Chunk struct {
	Text string
	Sep  string
}

// SplitChunks breaks text into pieces no longer than maxChars. Blank-line
// boundaries are preferred; a single paragraph still over the limit is split
// at the last space before the limit, or mid-run when it has none.
func SplitChunks(text string, maxChars int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []Chunk{{Text: text}}
	}

	var chunks []Chunk
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, Chunk{Text: cur.String(), Sep: "\n\n"})
			cur.Reset()
		}
	}
	for _, para := range SplitParagraphs(text) {
		if cur.Len() > 0 && cur.Len()+2+len(para) > maxChars {
			flush()
		}
		if len(para) > maxChars {
			flush()
			chunks = append(chunks, hardSplit(para, maxChars)...)
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	if len(chunks) > 0 {
		chunks[0].Sep = ""
	}
	return chunks
}

// JoinChunks reassembles per-chunk texts with the separators recorded at
// split time. texts must be parallel to chunks.
func JoinChunks(chunks []Chunk, texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		if i > 0 {
			b.WriteString(chunks[i].Sep)
		}
		b.WriteString(t)
	}
	return b.String()
}

// SplitParagraphs splits on blank lines, dropping empty paragraphs.
func SplitParagraphs(text string) []string {
	parts := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hardSplit cuts one oversized paragraph, preferring the last whitespace
// before the limit so pieces rejoin with the separator they were cut at. A
// paragraph with no whitespace is cut mid-run and rejoins seamlessly.
func hardSplit(s string, maxChars int) []Chunk {
	var out []Chunk
	runes := []rune(s)
	sep := "\n\n" // the paragraph boundary in front of the first piece
	// maxChars is a byte bound from the provider; runes keep multibyte
	// characters whole at the cost of slightly smaller chunks.
	for len(runes) > 0 {
		if len(runes) <= maxChars {
			out = append(out, Chunk{Text: string(runes), Sep: sep})
			break
		}
		cut, next := maxChars, ""
		for i := maxChars; i > 1; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' {
				cut, next = i-1, string(runes[i-1])
				break
			}
		}
		out = append(out, Chunk{Text: string(runes[:cut]), Sep: sep})
		sep = next
		if next != "" {
			cut++
		}
		runes = runes[cut:]
	}
	return out
}
