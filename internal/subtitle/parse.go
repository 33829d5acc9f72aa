// SPDX-License-Identifier: MIT

package subtitle

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astisub"
)

// ParseSRT reads an SRT document into cues. Empty input yields zero cues.
func ParseSRT(data []byte) ([]Cue, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	subs, err := astisub.ReadFromSRT(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse srt: %w", err)
	}

	cues := make([]Cue, 0, len(subs.Items))
	for i, item := range subs.Items {
		lines := make([]string, 0, len(item.Lines))
		for _, l := range item.Lines {
			lines = append(lines, l.String())
		}
		cues = append(cues, Cue{
			Index: i + 1,
			Start: item.StartAt.Seconds(),
			End:   item.EndAt.Seconds(),
			Text:  strings.Join(lines, " "),
		})
	}
	return cues, nil
}
