// SPDX-License-Identifier: MIT

package avtool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentCount(t *testing.T) {
	const mb = 1 << 20
	tests := []struct {
		name       string
		size       int64
		maxBytes   int64
		duration   float64
		maxSegSecs int
		want       int
	}{
		{"exactly at limit stays single", 25 * mb, 25 * mb, 600, 600, 1},
		{"one byte over splits in two", 25*mb + 1, 25 * mb, 600, 600, 2},
		{"80MB at 25MB limit, duration widens", 80 * mb, 25 * mb, 2700, 600, 5},
		{"duration bound widens count", 30 * mb, 25 * mb, 3000, 600, 5},
		{"small file", 2 * mb, 25 * mb, 120, 600, 1},
		{"zero duration", 80 * mb, 25 * mb, 0, 600, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentCount(tt.size, tt.maxBytes, tt.duration, tt.maxSegSecs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFFmpegTime(t *testing.T) {
	assert.Equal(t, "00:00:00.000", ffmpegTime(0))
	assert.Equal(t, "00:10:00.000", ffmpegTime(600))
	assert.Equal(t, "01:15:30.500", ffmpegTime(4530.5))
	assert.Equal(t, "00:00:00.000", ffmpegTime(-3))
}

func TestProbeDuration(t *testing.T) {
	tool := New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Contains(t, args, "format=duration")
		return []byte(`{"format":{"duration":"2700.480000"}}`), nil, nil
	}

	d, err := tool.ProbeDuration(context.Background(), "/media/a.mp3")
	require.NoError(t, err)
	assert.InDelta(t, 2700.48, d, 0.001)
}

func TestProbeDurationFailure(t *testing.T) {
	tool := New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("not a media file"), errors.New("exit status 1")
	}

	_, err := tool.ProbeDuration(context.Background(), "/etc/passwd")
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestProbeDurationNoDuration(t *testing.T) {
	tool := New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"format":{}}`), nil, nil
	}

	_, err := tool.ProbeDuration(context.Background(), "/media/a.mp3")
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestExtractAudioArgs(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "v.mp3")
	var got []string
	tool := New("ffmpeg", "ffprobe")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "ffmpeg", name)
		got = args
		return nil, nil, os.WriteFile(args[len(args)-1], []byte("mp3"), 0o644)
	}

	err := tool.ExtractAudio(context.Background(), "/in/v.mp4", dest, ExtractOpts{})
	require.NoError(t, err)
	assert.Contains(t, got, "-vn")
	assert.Contains(t, got, "libmp3lame")
	assert.Contains(t, got, "192k")

	// ffmpeg targets the temp path; the finished artifact is renamed into
	// place and the temp path is gone.
	assert.Equal(t, partialPath(dest), got[len(got)-1])
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	_, err = os.Stat(partialPath(dest))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractAudioFailure(t *testing.T) {
	tool := New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("Invalid data found when processing input"), errors.New("exit status 1")
	}

	err := tool.ExtractAudio(context.Background(), "/in/bad.mp4", "/out/bad.mp3", ExtractOpts{})
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "Invalid data")
}

func TestExtractAudioFailureLeavesNoArtifact(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bad.mp3")
	tool := New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		// ffmpeg dies partway through with a truncated output on disk.
		_ = os.WriteFile(args[len(args)-1], []byte("trunc"), 0o644)
		return nil, []byte("Invalid data found when processing input"), errors.New("exit status 1")
	}

	err := tool.ExtractAudio(context.Background(), "/in/bad.mp4", dest, ExtractOpts{})
	require.ErrorIs(t, err, ErrExtractionFailed)
	_, serr := os.Stat(dest)
	assert.True(t, os.IsNotExist(serr))
	_, serr = os.Stat(partialPath(dest))
	assert.True(t, os.IsNotExist(serr))
}

func TestSplitAudio(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "long.mp3")
	// 60 MB of zeros; only the size matters, the runner is fake.
	require.NoError(t, os.WriteFile(src, make([]byte, 60<<20), 0o644))

	destDir := t.TempDir()
	var cuts [][]string
	tool := New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		if name == tool.FFprobePath {
			return []byte(`{"format":{"duration":"1800.0"}}`), nil, nil
		}
		cuts = append(cuts, args)
		return nil, nil, nil
	}

	segs, err := tool.SplitAudio(context.Background(), src, destDir, SplitOpts{
		MaxSizeBytes:      25 << 20,
		MaxSegmentSeconds: 600,
	})
	require.NoError(t, err)
	require.Len(t, segs, 3)
	require.Len(t, cuts, 3)

	assert.Equal(t, 0.0, segs[0].StartSeconds)
	assert.InDelta(t, 600.0, segs[1].StartSeconds, 0.001)
	assert.InDelta(t, 1200.0, segs[2].StartSeconds, 0.001)
	for i, seg := range segs {
		assert.Equal(t, i, seg.Index)
		assert.Contains(t, seg.Path, destDir)
	}
	// Ordered, absolute offsets.
	for i := 1; i < len(segs); i++ {
		assert.Greater(t, segs[i].StartSeconds, segs[i-1].StartSeconds)
	}
}

func TestSplitAudioSegmentFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "long.mp3")
	require.NoError(t, os.WriteFile(src, make([]byte, 30<<20), 0o644))

	tool := New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		if name == tool.FFprobePath {
			return []byte(`{"format":{"duration":"1200.0"}}`), nil, nil
		}
		return nil, []byte("disk full"), errors.New("exit status 1")
	}

	_, err := tool.SplitAudio(context.Background(), src, t.TempDir(), SplitOpts{MaxSizeBytes: 25 << 20, MaxSegmentSeconds: 600})
	assert.ErrorIs(t, err, ErrSplitFailed)
}
