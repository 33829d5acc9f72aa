// SPDX-License-Identifier: MIT

package translate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/provider"
	"github.com/skeidel/voxpipe/internal/sanitize"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/subtitle"
)

// Config tunes the translation engine.
type Config struct {
	DefaultProvider string
	// ProviderOverride forces a provider for every file; normally empty.
	ProviderOverride string
	// DefaultTarget is the Western target that gets paragraph routing ("en").
	DefaultTarget string
	Force         bool
	MaxRetries    int
	ChunkPause    time.Duration
	Formality     Formality
}

// Engine produces the translation text and re-timed subtitle for one
// (file, target language) pair and keeps the tracking store in sync.
type Engine struct {
	Store    *store.Store
	Layout   layout.Layout
	Registry *Registry
	Detector Detector
	Cache    Cache
	Polisher *Polisher
	Conf     Config
}

// Process runs the full translation of one file into one target language.
func (e *Engine) Process(ctx context.Context, m model.MediaFile, lang string) error {
	stage := model.TranslationStage(lang)
	ctx = log.ContextWithFileID(ctx, m.FileID)
	ctx = log.ContextWithStage(ctx, string(stage))
	logger := log.WithComponentFromContext(ctx, "translate")

	status, err := e.Store.GetStatus(ctx, m.FileID)
	if err != nil {
		return err
	}
	if status.Translation[lang] == model.StageCompleted && !e.Conf.Force {
		logger.Debug().Msg("translation already completed, skipping")
		return nil
	}

	stem := sanitize.Stem(m.SafeFilename)
	transcript, err := e.readTranscript(status, stem)
	if err != nil {
		e.fail(ctx, m.FileID, lang, err)
		return err
	}

	if err := e.setStage(ctx, m.FileID, lang, model.StageInProgress); err != nil {
		return err
	}

	out, err := e.translate(ctx, m, transcript, lang)
	if err != nil {
		e.fail(ctx, m.FileID, lang, err)
		return err
	}

	if err := layout.WriteFileAtomic(e.Layout.TranslationPath(stem, lang), []byte(out)); err != nil {
		err = fmt.Errorf("write translation: %w", err)
		e.fail(ctx, m.FileID, lang, err)
		return err
	}

	if err := e.writeSubtitle(stem, lang, out); err != nil {
		err = fmt.Errorf("write subtitle: %w", err)
		e.fail(ctx, m.FileID, lang, err)
		return err
	}

	if err := e.setStage(ctx, m.FileID, lang, model.StageCompleted); err != nil {
		return err
	}
	if err := e.Store.ClearErrors(ctx, m.FileID, stage); err != nil {
		logger.Warn().Err(err).Msg("failed to clear stage errors")
	}
	if err := e.promoteOverall(ctx, m.FileID); err != nil {
		logger.Warn().Err(err).Msg("failed to promote overall status")
	}

	logger.Info().Str(log.FieldLang, lang).Msg("translation completed")
	return nil
}

// readTranscript enforces the stage precondition: transcription completed and
// the transcript artifact present and non-empty.
func (e *Engine) readTranscript(status *model.ProcessingStatus, stem string) (string, error) {
	if status.Transcription != model.StageCompleted {
		return "", fmt.Errorf("transcription not completed (status %s)", status.Transcription)
	}
	data, err := os.ReadFile(e.Layout.TranscriptPath(stem)) // #nosec G304 -- layout-derived path
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("transcript file is empty")
	}
	return text, nil
}

func (e *Engine) translate(ctx context.Context, m model.MediaFile, transcript, lang string) (string, error) {
	chosen := e.Conf.ProviderOverride
	if chosen == "" {
		chosen = e.Conf.DefaultProvider
	}

	source := m.DetectedLanguage // may be empty: provider auto-detects
	route, err := e.Registry.Resolve(chosen, source, lang)
	if err != nil {
		return "", err
	}
	if route.Fallback != nil {
		logger := log.WithComponentFromContext(ctx, "translate")
		logger.Info().
			Str(log.FieldProvider, route.Primary.Name()).
			Str("fallback", route.Fallback.Name()).
			Str("intermediate", route.Intermediate).
			Msg("target not supported by primary, routing through intermediate")
	}

	var out string
	if e.paragraphRoutingEnabled(lang) {
		out, err = e.translateParagraphs(ctx, route, transcript, lang, source)
	} else {
		out, err = e.routeTranslate(ctx, route, transcript, lang, source)
	}
	if err != nil {
		return "", err
	}

	if IsRTLTarget(lang) && e.Polisher != nil {
		polished, perr := e.Polisher.Polish(ctx, transcript, out, lang)
		if perr != nil {
			// The draft stands; polish is best-effort.
			logger := log.WithComponentFromContext(ctx, "translate")
			logger.Warn().Err(perr).Msg("polish pass failed, keeping draft")
		} else {
			out = polished
		}
	}
	return out, nil
}

// paragraphRoutingEnabled: only into the default Western target, and only
// when a detector is available.
func (e *Engine) paragraphRoutingEnabled(lang string) bool {
	return e.Detector != nil && e.Conf.DefaultTarget != "" && SameLanguage(lang, e.Conf.DefaultTarget)
}

// translateParagraphs passes through paragraphs already in the target
// language and translates the rest, preserving paragraph structure.
func (e *Engine) translateParagraphs(ctx context.Context, route Route, text, lang, source string) (string, error) {
	paras := SplitParagraphs(text)
	out := make([]string, 0, len(paras))
	for _, para := range paras {
		if detected, ok := e.Detector.Detect(para); ok && SameLanguage(detected, lang) {
			out = append(out, para)
			continue
		}
		translated, err := e.routeTranslate(ctx, route, para, lang, source)
		if err != nil {
			return "", err
		}
		out = append(out, translated)
	}
	return strings.Join(out, "\n\n"), nil
}

// routeTranslate executes the one- or two-hop route.
func (e *Engine) routeTranslate(ctx context.Context, route Route, text, lang, source string) (string, error) {
	if route.Fallback == nil {
		return e.translateVia(ctx, route.Primary, text, lang, source)
	}
	mid, err := e.translateVia(ctx, route.Primary, text, route.Intermediate, source)
	if err != nil {
		return "", fmt.Errorf("intermediate hop: %w", err)
	}
	return e.translateVia(ctx, route.Fallback, mid, lang, route.Intermediate)
}

// translateVia chunks text for one provider and translates chunk by chunk
// with cache, retry and a short inter-chunk pause. Any chunk failure fails
// the whole text.
func (e *Engine) translateVia(ctx context.Context, t Translator, text, lang, source string) (string, error) {
	chunks := SplitChunks(text, t.MaxChunkChars())
	outs := make([]string, 0, len(chunks))

	opts := Options{}
	if t.SupportsFormality() {
		opts.Formality = e.Conf.Formality
	}

	for i, chunk := range chunks {
		if cached, ok := e.cacheGet(t.Name(), source, lang, chunk.Text); ok {
			outs = append(outs, cached)
			continue
		}

		policy := provider.DefaultPolicy(e.Conf.MaxRetries)
		translated, err := provider.Do(ctx, policy, t.Name(), func(ctx context.Context) (string, error) {
			return t.Translate(ctx, chunk.Text, lang, source, opts)
		})
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d via %s: %w", i+1, len(chunks), t.Name(), err)
		}
		outs = append(outs, translated)
		e.cachePut(t.Name(), source, lang, chunk.Text, translated)

		if i < len(chunks)-1 && e.Conf.ChunkPause > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.Conf.ChunkPause):
			}
		}
	}
	return JoinChunks(chunks, outs), nil
}

// writeSubtitle re-times the source-language SRT with the translated text.
func (e *Engine) writeSubtitle(stem, lang, translated string) error {
	data, err := os.ReadFile(e.Layout.OrigSRTPath(stem)) // #nosec G304 -- layout-derived path
	if err != nil {
		return fmt.Errorf("read source srt: %w", err)
	}
	cues, err := subtitle.ParseSRT(data)
	if err != nil {
		return err
	}
	retimed := subtitle.Retime(cues, strings.ReplaceAll(translated, "\n\n", " "))
	return layout.WriteFileAtomic(e.Layout.SubtitlePath(stem, lang), []byte(subtitle.Render(retimed)))
}

// promoteOverall flips overall_status to completed when transcription and
// every configured target are done.
func (e *Engine) promoteOverall(ctx context.Context, fileID string) error {
	status, err := e.Store.GetStatus(ctx, fileID)
	if err != nil {
		return err
	}
	if status.Transcription != model.StageCompleted {
		return nil
	}
	for _, target := range e.Store.Targets() {
		if status.Translation[target] != model.StageCompleted {
			return nil
		}
	}
	completed := model.OverallCompleted
	return e.Store.UpdateStatus(ctx, fileID, model.StatusUpdate{Overall: &completed})
}

func (e *Engine) cacheGet(provider, source, lang, chunk string) (string, bool) {
	if e.Cache == nil {
		return "", false
	}
	return e.Cache.Get(provider, source, lang, chunk)
}

func (e *Engine) cachePut(provider, source, lang, chunk, translated string) {
	if e.Cache != nil {
		e.Cache.Put(provider, source, lang, chunk, translated)
	}
}

func (e *Engine) setStage(ctx context.Context, fileID, lang string, st model.StageStatus) error {
	return e.Store.UpdateStatus(ctx, fileID, model.StatusUpdate{
		Translation: map[string]model.StageStatus{lang: st},
	})
}

func (e *Engine) fail(ctx context.Context, fileID, lang string, cause error) {
	logger := log.WithComponentFromContext(ctx, "translate")
	logger.Error().Err(cause).Str(log.FieldLang, lang).Msg("translation failed")

	stage := model.TranslationStage(lang)
	if err := e.Store.LogError(ctx, fileID, stage, cause.Error(), ""); err != nil {
		logger.Warn().Err(err).Msg("failed to log stage error")
	}
	if err := e.setStage(ctx, fileID, lang, model.StageFailed); err != nil {
		logger.Warn().Err(err).Msg("failed to mark stage failed")
	}
}
