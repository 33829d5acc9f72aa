// SPDX-License-Identifier: MIT

package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeidel/voxpipe/internal/avtool"
	"github.com/skeidel/voxpipe/internal/config"
	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/store"
)

func newScanner(t *testing.T) *Scanner {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "t.db"), []string{"en"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tool := avtool.New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"format":{"duration":"42.5"}}`), nil, nil
	}

	cfg := config.Default()
	cfg.TargetLanguages = []string{"en"}

	return &Scanner{Store: st, Layout: layout.New(t.TempDir()), Tool: tool, Conf: cfg}
}

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("media bytes"), 0o644))
	return path
}

func TestAddRegistersFile(t *testing.T) {
	s := newScanner(t)
	ctx := context.Background()

	path := writeMedia(t, t.TempDir(), "Zeitzeuge Ä 01.mp3")
	id, err := s.Add(ctx, path)
	require.NoError(t, err)

	m, err := s.Store.GetMedia(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "zeitzeuge_a_01.mp3", m.SafeFilename)
	assert.Equal(t, model.MediaAudio, m.MediaType)
	assert.Equal(t, int64(len("media bytes")), m.FileSize)
	assert.Len(t, m.Checksum, 64, "sha256 hex digest")
	require.NotNil(t, m.DurationSeconds)
	assert.InDelta(t, 42.5, *m.DurationSeconds, 0.001)

	// Source is materialized into the artifact directory.
	_, err = os.Lstat(s.Layout.SourcePath("zeitzeuge_a_01", ".mp3"))
	assert.NoError(t, err)
}

func TestAddVideoType(t *testing.T) {
	s := newScanner(t)
	path := writeMedia(t, t.TempDir(), "interview.mp4")

	id, err := s.Add(context.Background(), path)
	require.NoError(t, err)

	m, err := s.Store.GetMedia(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.MediaVideo, m.MediaType)
}

func TestAddUnsupportedExtension(t *testing.T) {
	s := newScanner(t)
	path := writeMedia(t, t.TempDir(), "notes.txt")

	_, err := s.Add(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestAddDuplicateReturnsExistingID(t *testing.T) {
	s := newScanner(t)
	ctx := context.Background()
	path := writeMedia(t, t.TempDir(), "once.mp3")

	id1, err := s.Add(ctx, path)
	require.NoError(t, err)

	id2, err := s.Add(ctx, path)
	assert.ErrorIs(t, err, store.ErrDuplicatePath)
	assert.Equal(t, id1, id2)
}

func TestAddDisambiguatesStemCollisions(t *testing.T) {
	s := newScanner(t)
	ctx := context.Background()

	// Three distinct sources that all sanitize to the stem "interview_01".
	a := writeMedia(t, t.TempDir(), "Interview 01.mp3")
	b := writeMedia(t, t.TempDir(), "interview_01.mp3")
	c := writeMedia(t, t.TempDir(), "interview-01.mp4")

	idA, err := s.Add(ctx, a)
	require.NoError(t, err)
	idB, err := s.Add(ctx, b)
	require.NoError(t, err)
	idC, err := s.Add(ctx, c)
	require.NoError(t, err)

	mA, err := s.Store.GetMedia(ctx, idA)
	require.NoError(t, err)
	mB, err := s.Store.GetMedia(ctx, idB)
	require.NoError(t, err)
	mC, err := s.Store.GetMedia(ctx, idC)
	require.NoError(t, err)

	// Each file keeps its own artifact directory.
	assert.Equal(t, "interview_01.mp3", mA.SafeFilename)
	assert.Equal(t, "interview_01_2.mp3", mB.SafeFilename)
	assert.Equal(t, "interview_01_3.mp4", mC.SafeFilename)

	for _, stem := range []string{"interview_01", "interview_01_2"} {
		_, err := os.Lstat(s.Layout.SourcePath(stem, ".mp3"))
		assert.NoError(t, err, "source materialized under %s", stem)
	}
}

func TestStemInUseMatchesWholeStemOnly(t *testing.T) {
	s := newScanner(t)
	ctx := context.Background()

	_, err := s.Add(ctx, writeMedia(t, t.TempDir(), "tape.mp3"))
	require.NoError(t, err)

	taken, err := s.Store.StemInUse(ctx, "tape")
	require.NoError(t, err)
	assert.True(t, taken)

	// Prefixes and extensions of a taken stem stay available.
	for _, stem := range []string{"tap", "tape2", "tape_"} {
		taken, err := s.Store.StemInUse(ctx, stem)
		require.NoError(t, err)
		assert.False(t, taken, "%s must not collide with tape", stem)
	}
}

func TestScanCounts(t *testing.T) {
	s := newScanner(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b.mp4")
	writeMedia(t, dir, "readme.md")
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	writeMedia(t, sub, "c.wav")

	res, err := s.Scan(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Failed)

	// Rescanning the same tree adds nothing.
	res, err = s.Scan(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Equal(t, 4, res.Skipped)
}

func TestWatcherRegistersDroppedFile(t *testing.T) {
	s := newScanner(t)
	w := &Watcher{Scanner: s, Debounce: 20 * time.Millisecond}

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()

	// Let the watcher settle, then drop a file.
	time.Sleep(50 * time.Millisecond)
	path := writeMedia(t, dir, "dropped.mp3")

	require.Eventually(t, func() bool {
		_, err := s.Store.GetByPath(context.Background(), path)
		return err == nil
	}, 3*time.Second, 25*time.Millisecond, "dropped file shows up in the store")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
