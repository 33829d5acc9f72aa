// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skeidel/voxpipe/internal/avtool"
	"github.com/skeidel/voxpipe/internal/config"
	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/provider"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/transcribe"
	"github.com/skeidel/voxpipe/internal/translate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSpeech struct {
	calls int32
	err   error
}

func (f *fakeSpeech) Transcribe(_ context.Context, _ string, _ transcribe.Options) (*transcribe.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Result{Text: "hallo welt", DetectedLanguage: "deu"}, nil
}

type fakeText struct {
	calls int32
}

func (f *fakeText) Name() string              { return "fake" }
func (f *fakeText) Supports(_, _ string) bool { return true }
func (f *fakeText) MaxChunkChars() int        { return 4500 }
func (f *fakeText) SupportsFormality() bool   { return false }
func (f *fakeText) Translate(_ context.Context, text, targetLang, _ string, _ translate.Options) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return "[" + targetLang + "] " + text, nil
}

type orchFixture struct {
	orch   *Orchestrator
	store  *store.Store
	lay    layout.Layout
	speech *fakeSpeech
	text   *fakeText
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "t.db"), []string{"en"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	lay := layout.New(t.TempDir())
	tool := avtool.New("", "")
	tool.Run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		if name == tool.FFprobePath {
			return []byte(`{"format":{"duration":"120.0"}}`), nil, nil
		}
		out := args[len(args)-1]
		return nil, nil, os.WriteFile(out, []byte("audio"), 0o644)
	}

	speech := &fakeSpeech{}
	text := &fakeText{}

	cfg := config.Default()
	cfg.TargetLanguages = []string{"en"}
	cfg.TranscriptionWorkers = 2
	cfg.TranslationWorkers = 2
	cfg.BatchSize = 5

	reg := translate.NewRegistry(ctx, config.Credentials{}, cfg)
	reg.Register(text)

	orch := &Orchestrator{
		Store: st,
		Transcribe: &transcribe.Engine{
			Store:  st,
			Layout: lay,
			Tool:   tool,
			Client: speech,
			Conf: transcribe.Config{
				Model:             "scribe_v1",
				DefaultLanguage:   "deu",
				MaxAudioBytes:     25 << 20,
				MaxSegmentSeconds: 600,
				MaxRetries:        1,
				APITimeout:        time.Second,
				ExtractFormat:     "mp3",
			},
		},
		Translate: &translate.Engine{
			Store:    st,
			Layout:   lay,
			Registry: reg,
			Conf: translate.Config{
				DefaultProvider: "fake",
				DefaultTarget:   "en",
				MaxRetries:      1,
			},
		},
		Conf:            cfg,
		PollInterval:    5 * time.Millisecond,
		FailureCooldown: time.Hour,
		Once:            true,
	}
	return &orchFixture{orch: orch, store: st, lay: lay, speech: speech, text: text}
}

func (fx *orchFixture) addAudio(t *testing.T, name string) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, make([]byte, 1<<20), 0o644))
	id, err := fx.store.AddMedia(context.Background(), store.NewMedia{
		OriginalPath: src,
		SafeFilename: name,
		MediaType:    model.MediaAudio,
		FileSize:     1 << 20,
	})
	require.NoError(t, err)
	return id
}

func TestOrchestratorDrainsBacklog(t *testing.T) {
	fx := newOrchFixture(t)
	ctx := context.Background()

	id1 := fx.addAudio(t, "interview_01.mp3")
	id2 := fx.addAudio(t, "interview_02.mp3")

	require.NoError(t, fx.orch.Run(ctx))

	for _, id := range []string{id1, id2} {
		st, err := fx.store.GetStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StageCompleted, st.Transcription)
		assert.Equal(t, model.StageCompleted, st.Translation["en"])
		assert.Equal(t, model.OverallCompleted, st.Overall)
	}

	data, err := os.ReadFile(fx.lay.TranslationPath("interview_01", "en"))
	require.NoError(t, err)
	assert.Equal(t, "[en] hallo welt", string(data))
}

func TestOrchestratorFailureCooldown(t *testing.T) {
	fx := newOrchFixture(t)
	fx.speech.err = fmt.Errorf("bad audio: %w", provider.ErrPermanent)
	ctx := context.Background()

	id := fx.addAudio(t, "broken.mp3")

	// Once-mode must terminate even though the file keeps failing.
	require.NoError(t, fx.orch.Run(ctx))

	st, err := fx.store.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, st.Transcription)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fx.speech.calls),
		"a failed file stays out of the queue for the cooldown window")
	assert.Zero(t, atomic.LoadInt32(&fx.text.calls), "translation never starts without a transcript")
}

func TestClaimKeepsAudioStagesApart(t *testing.T) {
	o := &Orchestrator{
		inflight:        map[string]struct{}{},
		cooldown:        map[string]time.Time{},
		FailureCooldown: time.Hour,
	}

	// Extraction and transcription both write the same file's audio track:
	// while one pool holds the file the other must not get it.
	require.True(t, o.claim(model.StageExtraction, "f1"))
	assert.False(t, o.claim(model.StageTranscription, "f1"))
	assert.False(t, o.claim(model.StageExtraction, "f1"))
	assert.True(t, o.claim(model.TranslationStage("en"), "f1"),
		"translation reads finished artifacts and is independent")

	o.release(model.StageExtraction, "f1", nil)
	assert.True(t, o.claim(model.StageTranscription, "f1"))

	// A failure cools the whole audio pair down, not just the failing stage.
	o.release(model.StageTranscription, "f1", fmt.Errorf("boom"))
	assert.False(t, o.claim(model.StageExtraction, "f1"))
	assert.False(t, o.claimable([]store.Item{{Stage: model.StageTranscription, Media: model.MediaFile{FileID: "f1"}}}))
}

func TestOrchestratorStopsOnCancel(t *testing.T) {
	fx := newOrchFixture(t)
	fx.orch.Once = false
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- fx.orch.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after cancel")
	}
}
