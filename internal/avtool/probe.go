// SPDX-License-Identifier: MIT

package avtool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProbeDuration returns the media duration in seconds via ffprobe.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-print_format", "json",
		path,
	}

	stdout, stderr, err := t.Run(ctx, t.FFprobePath, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %s: %w", path, stderrTail(stderr), ErrProbeFailed)
	}

	var data struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(stdout, &data); err != nil {
		return 0, fmt.Errorf("parse ffprobe output for %s: %v: %w", path, err, ErrProbeFailed)
	}
	if data.Format.Duration == "" {
		return 0, fmt.Errorf("no duration in ffprobe output for %s: %w", path, ErrProbeFailed)
	}

	seconds, err := strconv.ParseFloat(data.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %v: %w", data.Format.Duration, err, ErrProbeFailed)
	}
	return seconds, nil
}
