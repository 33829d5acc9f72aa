// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeidel/voxpipe/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), []string{"en", "de", "he"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addTestMedia(t *testing.T, s *Store, path string) string {
	t.Helper()
	id, err := s.AddMedia(context.Background(), NewMedia{
		OriginalPath: path,
		SafeFilename: "interview_01.mp3",
		MediaType:    model.MediaAudio,
		FileSize:     2 << 20,
	})
	require.NoError(t, err)
	return id
}

func TestAddMediaCreatesStatusRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := addTestMedia(t, s, "/media/interview 01.mp3")

	st, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OverallPending, st.Overall)
	assert.Equal(t, model.StageNotStarted, st.Transcription)
	assert.Equal(t, 0, st.Attempts)
	assert.Len(t, st.Translation, 3)
	for _, lang := range []string{"en", "de", "he"} {
		assert.Equal(t, model.StageNotStarted, st.Translation[lang])
	}
	assert.Nil(t, st.StartedAt)
	assert.Nil(t, st.CompletedAt)
}

func TestAddMediaDuplicatePath(t *testing.T) {
	s := newTestStore(t)

	first := addTestMedia(t, s, "/media/a.mp3")
	id, err := s.AddMedia(context.Background(), NewMedia{
		OriginalPath: "/media/a.mp3",
		SafeFilename: "a.mp3",
		MediaType:    model.MediaAudio,
	})
	require.ErrorIs(t, err, ErrDuplicatePath)
	assert.Equal(t, first, id)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	inProgress := model.StageInProgress
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &inProgress}))

	st, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageInProgress, st.Transcription)
	assert.Equal(t, 1, st.Attempts)
	require.NotNil(t, st.StartedAt)
	startedAt := *st.StartedAt

	completed := model.StageCompleted
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &completed}))

	st, err = s.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageCompleted, st.Transcription)
	assert.Equal(t, 2, st.Attempts)
	require.NotNil(t, st.CompletedAt)
	require.NotNil(t, st.StartedAt)
	assert.Equal(t, startedAt, *st.StartedAt, "started_at set only on first in_progress")
}

func TestUpdateStatusAttemptsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	prev := 0
	for i := 0; i < 5; i++ {
		inProgress := model.StageInProgress
		require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &inProgress}))
		st, err := s.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Greater(t, st.Attempts, prev)
		prev = st.Attempts
	}
}

func TestUpdateStatusTranslationLanguage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{
		Translation: map[string]model.StageStatus{"he": model.StageInProgress},
	}))

	st, err := s.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageInProgress, st.Translation["he"])
	assert.Equal(t, model.StageNotStarted, st.Translation["en"])
	assert.Equal(t, 1, st.Attempts)
}

func TestUpdateStatusUnknownFile(t *testing.T) {
	s := newTestStore(t)
	completed := model.StageCompleted
	err := s.UpdateStatus(context.Background(), "no-such-id", model.StatusUpdate{Transcription: &completed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMediaMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	dur := 123.5
	lang := "deu"
	require.NoError(t, s.UpdateMediaMetadata(ctx, id, model.MediaMetadata{
		DurationSeconds:  &dur,
		DetectedLanguage: &lang,
	}))

	m, err := s.GetMedia(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m.DurationSeconds)
	assert.Equal(t, 123.5, *m.DurationSeconds)
	assert.Equal(t, "deu", m.DetectedLanguage)

	assert.ErrorIs(t, s.UpdateMediaMetadata(ctx, "missing", model.MediaMetadata{DetectedLanguage: &lang}), ErrNotFound)
}

func TestGetByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	m, err := s.GetByPath(ctx, "/media/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, id, m.FileID)

	_, err = s.GetByPath(ctx, "/media/other.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingForStageTranslationRequiresTranscript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	items, err := s.ListPendingForStage(ctx, model.TranslationStage("en"), 10)
	require.NoError(t, err)
	assert.Empty(t, items, "translation must wait for transcription")

	completed := model.StageCompleted
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &completed}))

	items, err = s.ListPendingForStage(ctx, model.TranslationStage("en"), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].Media.FileID)
	assert.Equal(t, model.TranslationStage("en"), items[0].Stage)
}

func TestListPendingForStageTranscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	items, err := s.ListPendingForStage(ctx, model.StageTranscription, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].Media.FileID)

	// Failed files are re-eligible; in_progress and completed are not.
	failed := model.StageFailed
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &failed}))
	items, err = s.ListPendingForStage(ctx, model.StageTranscription, 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	inProgress := model.StageInProgress
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &inProgress}))
	items, err = s.ListPendingForStage(ctx, model.StageTranscription, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListStalled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	inProgress := model.StageInProgress
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &inProgress}))

	// Fresh in_progress is not stalled.
	stalled, err := s.ListStalled(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stalled)

	// Backdate the row past the threshold.
	_, err = s.db.Exec(`UPDATE processing_status SET last_updated = ? WHERE file_id = ?`,
		fmtTime(time.Now().Add(-time.Hour)), id)
	require.NoError(t, err)

	stalled, err = s.ListStalled(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, id, stalled[0].FileID)
	assert.Equal(t, model.StageTranscription, stalled[0].Stage)
}

func TestErrorLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	require.NoError(t, s.LogError(ctx, id, model.StageTranscription, "provider down", "503"))
	require.NoError(t, s.LogError(ctx, id, model.TranslationStage("he"), "chunk failed", ""))

	entries, err := s.ListErrors(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.TranslationStage("he"), entries[0].ProcessStage, "newest first")

	counts, err := s.ErrorCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[id])

	require.NoError(t, s.ClearErrors(ctx, id, model.StageTranscription))
	entries, err = s.ListErrors(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.TranslationStage("he"), entries[0].ProcessStage)
}

func TestRecordQuality(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	require.NoError(t, s.RecordQuality(ctx, model.QualityEvaluation{
		FileID:   id,
		Language: "he",
		Model:    "gpt-4o",
		Score:    8.5,
		Issues:   []string{"minor phrasing"},
		Comment:  "good",
	}))

	evals, err := s.ListQuality(ctx, id)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, 8.5, evals[0].Score)
	assert.Equal(t, []string{"minor phrasing"}, evals[0].Issues)
}

func TestSummaryStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := addTestMedia(t, s, "/media/a.mp3")
	addTestMedia(t, s, "/media/b.mp3")

	completed := model.StageCompleted
	require.NoError(t, s.UpdateStatus(ctx, a, model.StatusUpdate{Transcription: &completed}))
	require.NoError(t, s.LogError(ctx, a, model.StageTranscription, "warn", ""))

	sum, err := s.SummaryStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalFiles)
	assert.Equal(t, 1, sum.Transcription["completed"])
	assert.Equal(t, 1, sum.Transcription["not_started"])
	assert.Equal(t, 2, sum.Translation["he"]["not_started"])
	assert.Equal(t, 1, sum.ErrorCount)
}

func TestListForTranscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := addTestMedia(t, s, "/media/a.mp3")
	b := addTestMedia(t, s, "/media/b.mp3")

	files, err := s.ListForTranscription(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, files, 2, "fresh files are listed")

	completed := model.StageCompleted
	require.NoError(t, s.UpdateStatus(ctx, a, model.StatusUpdate{Transcription: &completed}))
	failed := model.StageFailed
	require.NoError(t, s.UpdateStatus(ctx, b, model.StatusUpdate{Transcription: &failed}))

	files, err = s.ListForTranscription(ctx, 10)
	require.NoError(t, err)
	require.Len(t, files, 1, "completed files drop out, failed ones stay")
	assert.Equal(t, b, files[0].FileID)
}

func TestListUnknownLanguage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := addTestMedia(t, s, "/media/a.mp3")

	files, err := s.ListUnknownLanguage(ctx)
	require.NoError(t, err)
	assert.Empty(t, files, "only transcribed files qualify")

	completed := model.StageCompleted
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &completed}))

	files, err = s.ListUnknownLanguage(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	lang := "deu"
	require.NoError(t, s.UpdateMediaMetadata(ctx, id, model.MediaMetadata{DetectedLanguage: &lang}))
	files, err = s.ListUnknownLanguage(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}
