// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/subtitle"
)

const testStem = "zeitzeuge_01"

const testOrigSRT = `1
00:00:00,000 --> 00:00:02,000
erster teil hier

2
00:00:02,500 --> 00:00:04,500
zweiter teil folgt
`

type fakeDetector struct {
	fn func(text string) (string, bool)
}

func (d fakeDetector) Detect(text string) (string, bool) { return d.fn(text) }

type mapCache struct {
	m map[string]string
}

func (c *mapCache) Get(provider, source, target, chunk string) (string, bool) {
	v, ok := c.m[provider+"|"+source+"|"+target+"|"+chunk]
	return v, ok
}

func (c *mapCache) Put(provider, source, target, chunk, translated string) {
	c.m[provider+"|"+source+"|"+target+"|"+chunk] = translated
}

func (c *mapCache) Close() error { return nil }

type translateFixture struct {
	engine *Engine
	store  *store.Store
	media  model.MediaFile
}

func newTranslateFixture(t *testing.T, transcript string, transcribed bool, providers ...Translator) *translateFixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "t.db"), []string{"en", "he"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	id, err := st.AddMedia(ctx, store.NewMedia{
		OriginalPath:     "/media/zeitzeuge 01.mp3",
		SafeFilename:     testStem + ".mp3",
		MediaType:        model.MediaAudio,
		FileSize:         1024,
		DetectedLanguage: "deu",
	})
	require.NoError(t, err)

	if transcribed {
		completed := model.StageCompleted
		require.NoError(t, st.UpdateStatus(ctx, id, model.StatusUpdate{Transcription: &completed}))
	}

	media, err := st.GetMedia(ctx, id)
	require.NoError(t, err)

	lay := layout.New(t.TempDir())
	require.NoError(t, layout.WriteFileAtomic(lay.TranscriptPath(testStem), []byte(transcript)))
	require.NoError(t, layout.WriteFileAtomic(lay.OrigSRTPath(testStem), []byte(testOrigSRT)))

	eng := &Engine{
		Store:    st,
		Layout:   lay,
		Registry: newTestRegistry(providers...),
		Conf: Config{
			DefaultProvider: providers[0].Name(),
			DefaultTarget:   "en",
			MaxRetries:      2,
		},
	}
	return &translateFixture{engine: eng, store: st, media: *media}
}

func TestEngineWritesArtifacts(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	fx := newTranslateFixture(t, "hallo welt wie geht es", true, fake)
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	assert.Equal(t, 1, fake.calls)

	txt, err := os.ReadFile(fx.engine.Layout.TranslationPath(testStem, "en"))
	require.NoError(t, err)
	assert.Equal(t, "[en] hallo welt wie geht es", string(txt))

	raw, err := os.ReadFile(fx.engine.Layout.SubtitlePath(testStem, "en"))
	require.NoError(t, err)
	cues, err := subtitle.ParseSRT(raw)
	require.NoError(t, err)
	require.Len(t, cues, 2, "cue count and timing come from the source subtitle")
	assert.Equal(t, 1, cues[0].Index)
	assert.InDelta(t, 0.0, cues[0].Start, 0.001)
	assert.InDelta(t, 4.5, cues[1].End, 0.001)

	st, err := fx.store.GetStatus(ctx, fx.media.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCompleted, st.Translation["en"])
	assert.NotEqual(t, model.OverallCompleted, st.Overall, "hebrew target still outstanding")
}

func TestEngineOverallPromotion(t *testing.T) {
	fake := &fakeTranslator{name: "llm", rtlOK: true}
	fx := newTranslateFixture(t, "hallo welt", true, fake)
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	require.NoError(t, fx.engine.Process(ctx, fx.media, "he"))

	st, err := fx.store.GetStatus(ctx, fx.media.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCompleted, st.Translation["en"])
	assert.Equal(t, model.StageCompleted, st.Translation["he"])
	assert.Equal(t, model.OverallCompleted, st.Overall)
	assert.NotNil(t, st.CompletedAt)
}

func TestEngineParagraphPassThrough(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	transcript := "This is already English.\n\nSo is this paragraph."
	fx := newTranslateFixture(t, transcript, true, fake)
	fx.engine.Detector = fakeDetector{fn: func(string) (string, bool) { return "en", true }}
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	assert.Equal(t, 0, fake.calls, "all-target-language input makes no provider calls")

	txt, err := os.ReadFile(fx.engine.Layout.TranslationPath(testStem, "en"))
	require.NoError(t, err)
	assert.Equal(t, transcript, string(txt))
}

func TestEngineMixedParagraphRouting(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	transcript := "Already English here.\n\nhallo das ist deutsch"
	fx := newTranslateFixture(t, transcript, true, fake)
	fx.engine.Detector = fakeDetector{fn: func(text string) (string, bool) {
		if strings.Contains(text, "hallo") {
			return "de", true
		}
		return "en", true
	}}
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	assert.Equal(t, 1, fake.calls, "only the non-English paragraph is translated")

	txt, err := os.ReadFile(fx.engine.Layout.TranslationPath(testStem, "en"))
	require.NoError(t, err)
	assert.Equal(t, "Already English here.\n\n[en] hallo das ist deutsch", string(txt))
}

func TestEngineFallbackRoute(t *testing.T) {
	primary := &fakeTranslator{name: "deepl"}
	ms := &fakeTranslator{name: "microsoft", rtlOK: true}
	fx := newTranslateFixture(t, "hallo welt", true, primary, ms)
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "he"))
	assert.Equal(t, []string{"en"}, primary.targets, "primary translates to the pivot language")
	assert.Equal(t, []string{"he"}, ms.targets, "fallback finishes the hop")

	txt, err := os.ReadFile(fx.engine.Layout.TranslationPath(testStem, "he"))
	require.NoError(t, err)
	assert.Equal(t, "[he] [en] hallo welt", string(txt))
}

func TestEnginePreconditionNotTranscribed(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	fx := newTranslateFixture(t, "hallo welt", false, fake)
	ctx := context.Background()

	err := fx.engine.Process(ctx, fx.media, "en")
	require.Error(t, err)
	assert.Equal(t, 0, fake.calls, "no provider calls before the precondition holds")

	st, err := fx.store.GetStatus(ctx, fx.media.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, st.Translation["en"])

	entries, err := fx.store.ListErrors(ctx, fx.media.FileID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.TranslationStage("en"), entries[0].ProcessStage)
}

func TestEngineEmptyTranscriptFailsFast(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	fx := newTranslateFixture(t, "   \n  ", true, fake)
	ctx := context.Background()

	err := fx.engine.Process(ctx, fx.media, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
	assert.Equal(t, 0, fake.calls)
}

func TestEngineMissingSourceSubtitleFails(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	fx := newTranslateFixture(t, "hallo welt", true, fake)
	require.NoError(t, os.Remove(fx.engine.Layout.OrigSRTPath(testStem)))
	ctx := context.Background()

	// A completed translation promises text and subtitle; when the subtitle
	// cannot be produced the stage fails instead of completing.
	err := fx.engine.Process(ctx, fx.media, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subtitle")

	st, err := fx.store.GetStatus(ctx, fx.media.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, st.Translation["en"])

	entries, err := fx.store.ListErrors(ctx, fx.media.FileID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestEngineIdempotentSkip(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	fx := newTranslateFixture(t, "hallo welt", true, fake)
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	assert.Equal(t, 1, fake.calls, "second run with force=false makes no provider calls")
}

func TestEngineCacheHitSkipsProvider(t *testing.T) {
	fake := &fakeTranslator{name: "deepl"}
	fx := newTranslateFixture(t, "hallo welt", true, fake)
	fx.engine.Cache = &mapCache{m: map[string]string{}}
	fx.engine.Conf.Force = true
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	require.NoError(t, fx.engine.Process(ctx, fx.media, "en"))
	assert.Equal(t, 1, fake.calls, "re-run is served from the chunk cache")
}

type fakePolishCompleter struct {
	out string
	err error
}

func (f *fakePolishCompleter) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.out}},
		},
	}, nil
}

func TestEnginePolishReplacesDraft(t *testing.T) {
	fake := &fakeTranslator{name: "llm", rtlOK: true}
	fx := newTranslateFixture(t, "hallo welt", true, fake)
	fx.engine.Polisher = &Polisher{
		Client:   &fakePolishCompleter{out: "שלום עולם"},
		Model:    "gpt-4o",
		Glossary: []GlossaryEntry{{Source: "Welt", Target: "עולם"}},
	}
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "he"))

	txt, err := os.ReadFile(fx.engine.Layout.TranslationPath(testStem, "he"))
	require.NoError(t, err)
	assert.Equal(t, "שלום עולם", string(txt))
}

func TestEnginePolishFailureKeepsDraft(t *testing.T) {
	fake := &fakeTranslator{name: "llm", rtlOK: true}
	fx := newTranslateFixture(t, "hallo welt", true, fake)
	fx.engine.Polisher = &Polisher{
		Client: &fakePolishCompleter{err: assert.AnError},
		Model:  "gpt-4o",
	}
	ctx := context.Background()

	require.NoError(t, fx.engine.Process(ctx, fx.media, "he"))

	txt, err := os.ReadFile(fx.engine.Layout.TranslationPath(testStem, "he"))
	require.NoError(t, err)
	assert.Equal(t, "[he] hallo welt", string(txt), "draft survives a failed polish pass")
}
