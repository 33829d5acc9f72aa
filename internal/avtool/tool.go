// SPDX-License-Identifier: MIT

// Package avtool wraps the external ffmpeg/ffprobe toolchain: duration
// probing, audio extraction from video and size-bounded audio splitting.
package avtool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/skeidel/voxpipe/internal/log"
)

// Sentinel errors per toolchain capability.
var (
	ErrProbeFailed      = errors.New("probe failed")
	ErrExtractionFailed = errors.New("audio extraction failed")
	ErrSplitFailed      = errors.New("audio split failed")
)

// RunFunc executes one toolchain command and returns stdout and stderr.
// Injected in tests.
type RunFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Tool invokes ffmpeg and ffprobe as subprocesses.
type Tool struct {
	FFmpegPath  string
	FFprobePath string
	Run         RunFunc
}

// New returns a Tool shelling out to the given binaries. Empty paths default
// to looking them up on PATH.
func New(ffmpegPath, ffprobePath string) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Tool{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Run:         runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		logger := log.WithComponent("avtool")
		logger.Debug().
			Str("bin", name).
			Err(err).
			Str("stderr", stderrTail(stderr.Bytes())).
			Msg("toolchain command failed")
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// stderrTail keeps the last few lines of diagnostics; ffmpeg output can run
// to megabytes on long inputs.
func stderrTail(stderr []byte) string {
	const maxLines = 8
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

// ffmpegTime formats seconds as HH:MM:SS.mmm for -ss/-t arguments.
func ffmpegTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int(seconds)
	ms := int((seconds - float64(whole)) * 1000)
	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
