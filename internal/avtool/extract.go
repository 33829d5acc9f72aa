// SPDX-License-Identifier: MIT

package avtool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skeidel/voxpipe/internal/log"
)

// ExtractOpts configures audio extraction and segment re-encoding.
type ExtractOpts struct {
	Codec      string // e.g. libmp3lame
	Bitrate    string // e.g. 192k
	SampleRate int    // e.g. 44100
}

// DefaultExtractOpts is the normalized format every extracted or re-encoded
// audio artifact uses.
func DefaultExtractOpts() ExtractOpts {
	return ExtractOpts{Codec: "libmp3lame", Bitrate: "192k", SampleRate: 44100}
}

// ExtractAudio pulls the audio track out of a video source into dest,
// overwriting any previous artifact. ffmpeg writes to a sibling temp path
// that is renamed into place, so a concurrent reader never sees a
// half-written artifact.
func (t *Tool) ExtractAudio(ctx context.Context, src, dest string, o ExtractOpts) error {
	o = o.withDefaults()
	tmp := partialPath(dest)
	args := []string{
		"-y",
		"-i", src,
		"-vn",
		"-acodec", o.Codec,
		"-b:a", o.Bitrate,
		"-ar", strconv.Itoa(o.SampleRate),
		tmp,
	}

	_, stderr, err := t.Run(ctx, t.FFmpegPath, args...)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg extract %s: %s: %w", src, stderrTail(stderr), ErrExtractionFailed)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize extract %s: %w", dest, err)
	}

	logger := log.WithComponent("avtool")
	logger.Debug().
		Str(log.FieldPath, dest).
		Msg("audio extracted")
	return nil
}

// partialPath keeps the extension so ffmpeg still infers the output format.
func partialPath(dest string) string {
	ext := filepath.Ext(dest)
	return strings.TrimSuffix(dest, ext) + ".partial" + ext
}

// Preprocess re-encodes audio for problem files: loudness normalization,
// mono, 44.1 kHz, high-quality MP3.
func (t *Tool) Preprocess(ctx context.Context, src, dest string) error {
	args := []string{
		"-y",
		"-i", src,
		"-af", "loudnorm",
		"-ac", "1",
		"-ar", "44100",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		dest,
	}
	_, stderr, err := t.Run(ctx, t.FFmpegPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg preprocess %s: %s: %w", src, stderrTail(stderr), ErrExtractionFailed)
	}
	return nil
}

// RepairAudio attempts an error-tolerant decode and re-encode of a corrupt
// source. If that fails, it extracts raw PCM and re-encodes from that.
func (t *Tool) RepairAudio(ctx context.Context, src, dest string) error {
	args := []string{
		"-y",
		"-err_detect", "ignore_err",
		"-i", src,
		"-acodec", "libmp3lame",
		"-b:a", "192k",
		"-ar", "44100",
		dest,
	}
	if _, _, err := t.Run(ctx, t.FFmpegPath, args...); err == nil {
		return nil
	}

	// Last resort: decode whatever survives to raw PCM, then encode that.
	rawArgs := []string{
		"-y",
		"-err_detect", "ignore_err",
		"-i", src,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "44100",
		dest + ".pcm",
	}
	if _, stderr, err := t.Run(ctx, t.FFmpegPath, rawArgs...); err != nil {
		return fmt.Errorf("ffmpeg raw-pcm repair %s: %s: %w", src, stderrTail(stderr), ErrExtractionFailed)
	}

	encodeArgs := []string{
		"-y",
		"-f", "s16le",
		"-ac", "1",
		"-ar", "44100",
		"-i", dest + ".pcm",
		"-acodec", "libmp3lame",
		"-b:a", "192k",
		dest,
	}
	if _, stderr, err := t.Run(ctx, t.FFmpegPath, encodeArgs...); err != nil {
		return fmt.Errorf("ffmpeg re-encode %s: %s: %w", src, stderrTail(stderr), ErrExtractionFailed)
	}
	return nil
}

func (o ExtractOpts) withDefaults() ExtractOpts {
	d := DefaultExtractOpts()
	if o.Codec == "" {
		o.Codec = d.Codec
	}
	if o.Bitrate == "" {
		o.Bitrate = d.Bitrate
	}
	if o.SampleRate == 0 {
		o.SampleRate = d.SampleRate
	}
	return o
}
