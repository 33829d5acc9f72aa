// SPDX-License-Identifier: MIT

package avtool

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/skeidel/voxpipe/internal/log"
)

// SplitOpts bounds the segments produced by SplitAudio.
type SplitOpts struct {
	MaxSizeBytes      int64
	MaxSegmentSeconds int
	Encode            ExtractOpts
}

// Segment is one slice of a long audio file. StartSeconds is the absolute
// offset of the slice within the source.
type Segment struct {
	Path            string
	Index           int
	StartSeconds    float64
	DurationSeconds float64
}

// SegmentCount computes how many segments a file of size bytes and duration
// seconds needs: ceil(size/maxBytes), widened so no segment exceeds
// maxSegmentSeconds.
func SegmentCount(size, maxBytes int64, duration float64, maxSegmentSeconds int) int {
	if maxBytes <= 0 {
		return 1
	}
	count := int(math.Ceil(float64(size) / float64(maxBytes)))
	if count < 1 {
		count = 1
	}
	if maxSegmentSeconds > 0 && duration > 0 {
		if duration/float64(count) > float64(maxSegmentSeconds) {
			count = int(math.Ceil(duration / float64(maxSegmentSeconds)))
		}
	}
	return count
}

// SplitAudio cuts src into ordered, re-encoded segments under destDir. The
// caller owns destDir; partial segments are left behind on failure.
func (t *Tool) SplitAudio(ctx context.Context, src, destDir string, o SplitOpts) ([]Segment, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %v: %w", src, err, ErrSplitFailed)
	}

	duration, err := t.ProbeDuration(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("probe for split: %v: %w", err, ErrSplitFailed)
	}

	count := SegmentCount(info.Size(), o.MaxSizeBytes, duration, o.MaxSegmentSeconds)
	segDuration := duration / float64(count)
	encode := o.Encode.withDefaults()

	segments := make([]Segment, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * segDuration
		// Last segment runs to the end of the source; ffmpeg stops at EOF.
		length := segDuration
		if i == count-1 {
			length = duration - start
		}

		segPath := filepath.Join(destDir, fmt.Sprintf("segment_%03d.mp3", i))
		args := []string{
			"-y",
			"-i", src,
			"-ss", ffmpegTime(start),
			"-t", ffmpegTime(length),
			"-acodec", encode.Codec,
			"-b:a", encode.Bitrate,
			"-ar", strconv.Itoa(encode.SampleRate),
			segPath,
		}
		if _, stderr, err := t.Run(ctx, t.FFmpegPath, args...); err != nil {
			return nil, fmt.Errorf("ffmpeg segment %d of %s: %s: %w", i, src, stderrTail(stderr), ErrSplitFailed)
		}

		segments = append(segments, Segment{
			Path:            segPath,
			Index:           i,
			StartSeconds:    start,
			DurationSeconds: length,
		})
	}

	logger := log.WithComponent("avtool")
	logger.Info().
		Str(log.FieldPath, src).
		Int(log.FieldSegments, len(segments)).
		Msg("audio split into segments")
	return segments, nil
}
