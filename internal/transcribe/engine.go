// SPDX-License-Identifier: MIT

package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skeidel/voxpipe/internal/avtool"
	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/provider"
	"github.com/skeidel/voxpipe/internal/sanitize"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/subtitle"
)

// Config tunes the transcription engine.
type Config struct {
	Model             string
	DefaultLanguage   string // ISO-639-3 fallback hint, e.g. "deu"
	ForceLanguage     string // overrides everything when set
	AutoDetect        bool   // omit the hint and let the provider detect
	ForceReprocess    bool
	Diarize           bool
	MaxAudioBytes     int64
	MaxSegmentSeconds int
	MaxRetries        int
	APITimeout        time.Duration
	SegmentPause      time.Duration
	ExtractFormat     string
	ExtractQuality    string
}

// Engine produces transcript, timings JSON and source-language SRT for one
// file and keeps the tracking store in sync.
type Engine struct {
	Store  *store.Store
	Layout layout.Layout
	Tool   *avtool.Tool
	Client Transcriber
	Conf   Config
}

// Process runs the full transcription for one media file.
func (e *Engine) Process(ctx context.Context, m model.MediaFile) error {
	ctx = log.ContextWithFileID(ctx, m.FileID)
	ctx = log.ContextWithStage(ctx, string(model.StageTranscription))
	logger := log.WithComponentFromContext(ctx, "transcribe")

	stem := sanitize.Stem(m.SafeFilename)
	transcriptPath := e.Layout.TranscriptPath(stem)

	if !e.Conf.ForceReprocess && fileNonEmpty(transcriptPath) {
		logger.Debug().Str(log.FieldPath, transcriptPath).Msg("transcript exists, skipping")
		status, err := e.Store.GetStatus(ctx, m.FileID)
		if err != nil {
			return err
		}
		if status.Transcription == model.StageCompleted {
			// Nothing to repair; a status write here would bump the attempt
			// counters for work that never ran.
			return nil
		}
		return e.markCompleted(ctx, m.FileID)
	}

	if err := e.setStage(ctx, m.FileID, model.StageInProgress); err != nil {
		return err
	}

	result, err := e.run(ctx, m, stem)
	if err != nil {
		e.fail(ctx, m.FileID, err)
		return err
	}

	if result.DetectedLanguage != "" {
		lang := result.DetectedLanguage
		if err := e.Store.UpdateMediaMetadata(ctx, m.FileID, model.MediaMetadata{DetectedLanguage: &lang}); err != nil {
			logger.Warn().Err(err).Msg("failed to persist detected language")
		}
	}

	if err := e.markCompleted(ctx, m.FileID); err != nil {
		return err
	}
	if err := e.Store.ClearErrors(ctx, m.FileID, model.StageTranscription); err != nil {
		logger.Warn().Err(err).Msg("failed to clear stage errors")
	}

	logger.Info().
		Str(log.FieldPath, transcriptPath).
		Str("detected_language", result.DetectedLanguage).
		Msg("transcription completed")
	return nil
}

// EnsureAudio makes the transcribable audio artifact exist: for audio sources
// the materialized original, for video sources the extracted track.
// Idempotent; used directly by the extraction pool.
func (e *Engine) EnsureAudio(ctx context.Context, m model.MediaFile) (string, error) {
	stem := sanitize.Stem(m.SafeFilename)
	ext := filepath.Ext(m.SafeFilename)

	if m.MediaType == model.MediaAudio {
		return e.Layout.MaterializeSource(m.OriginalPath, stem, ext)
	}

	audioPath := e.Layout.AudioPath(stem, e.Conf.ExtractFormat)
	if fileNonEmpty(audioPath) {
		return audioPath, nil
	}
	if _, err := e.Layout.MaterializeSource(m.OriginalPath, stem, ext); err != nil {
		return "", err
	}
	err := e.Tool.ExtractAudio(ctx, m.OriginalPath, audioPath, avtool.ExtractOpts{
		Bitrate: e.Conf.ExtractQuality,
	})
	if err != nil {
		return "", err
	}
	return audioPath, nil
}

func (e *Engine) run(ctx context.Context, m model.MediaFile, stem string) (*Result, error) {
	audioPath, err := e.EnsureAudio(ctx, m)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}

	opts := Options{
		Model:          e.Conf.Model,
		LanguageCode:   e.languageHint(m),
		Diarize:        e.Conf.Diarize,
		WordTimestamps: true,
		Timeout:        e.Conf.APITimeout,
	}

	var merged Result
	var segmentResults []*Result

	if info.Size() <= e.Conf.MaxAudioBytes {
		res, err := e.callProvider(ctx, audioPath, opts)
		if err != nil {
			return nil, err
		}
		merged = *res
		segmentResults = []*Result{res}
	} else {
		merged, segmentResults, err = e.transcribeSegmented(ctx, audioPath, info.Size(), opts)
		if err != nil {
			return nil, err
		}
	}

	if err := e.writeArtifacts(stem, &merged, segmentResults); err != nil {
		return nil, err
	}
	return &merged, nil
}

// transcribeSegmented splits the audio, transcribes each slice sequentially
// and stitches text and word timings back together in segment order.
func (e *Engine) transcribeSegmented(ctx context.Context, audioPath string, size int64, opts Options) (Result, []*Result, error) {
	logger := log.WithComponentFromContext(ctx, "transcribe")

	scratch, err := os.MkdirTemp("", "voxpipe-segments-*")
	if err != nil {
		return Result{}, nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	segments, err := e.Tool.SplitAudio(ctx, audioPath, scratch, avtool.SplitOpts{
		MaxSizeBytes:      e.Conf.MaxAudioBytes,
		MaxSegmentSeconds: e.Conf.MaxSegmentSeconds,
		Encode:            avtool.ExtractOpts{Bitrate: e.Conf.ExtractQuality},
	})
	if err != nil {
		return Result{}, nil, err
	}

	logger.Info().
		Int(log.FieldSegments, len(segments)).
		Int64(log.FieldSizeBytes, size).
		Msg("transcribing in segments")

	var merged Result
	results := make([]*Result, 0, len(segments))
	texts := make([]string, 0, len(segments))

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return Result{}, nil, err
		}

		res, err := e.callProvider(ctx, seg.Path, opts)
		if err != nil {
			return Result{}, nil, fmt.Errorf("segment %d: %w", seg.Index, err)
		}

		// Shift word timings to absolute offsets before stitching.
		for w := range res.Words {
			res.Words[w].Start += seg.StartSeconds
			res.Words[w].End += seg.StartSeconds
		}
		merged.Words = append(merged.Words, res.Words...)
		texts = append(texts, strings.TrimSpace(res.Text))
		results = append(results, res)

		if merged.DetectedLanguage == "" && res.DetectedLanguage != "" {
			merged.DetectedLanguage = res.DetectedLanguage
			merged.LanguageProbability = res.LanguageProbability
		}

		if i < len(segments)-1 && e.Conf.SegmentPause > 0 {
			select {
			case <-ctx.Done():
				return Result{}, nil, ctx.Err()
			case <-time.After(e.Conf.SegmentPause):
			}
		}
	}

	merged.Text = strings.Join(texts, " ")
	return merged, results, nil
}

func (e *Engine) callProvider(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	policy := provider.DefaultPolicy(e.Conf.MaxRetries)
	return provider.Do(ctx, policy, "transcription", func(ctx context.Context) (*Result, error) {
		return e.Client.Transcribe(ctx, audioPath, opts)
	})
}

func (e *Engine) writeArtifacts(stem string, merged *Result, segmentResults []*Result) error {
	if err := layout.WriteFileAtomic(e.Layout.TranscriptPath(stem), []byte(merged.Text)); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	// Raw per-segment responses, kept for audit.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(segmentResults); err != nil {
		return fmt.Errorf("encode segments json: %w", err)
	}
	if err := layout.WriteFileAtomic(e.Layout.SegmentsJSONPath(stem), buf.Bytes()); err != nil {
		return fmt.Errorf("write segments json: %w", err)
	}

	srt := subtitle.Render(subtitle.CuesFromWords(merged.Words))
	if err := layout.WriteFileAtomic(e.Layout.OrigSRTPath(stem), []byte(srt)); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// languageHint resolves the effective language hint for the provider call.
func (e *Engine) languageHint(m model.MediaFile) string {
	if e.Conf.ForceLanguage != "" {
		return e.Conf.ForceLanguage
	}
	if e.Conf.AutoDetect {
		return ""
	}
	if m.DetectedLanguage != "" {
		return m.DetectedLanguage
	}
	return e.Conf.DefaultLanguage
}

func (e *Engine) setStage(ctx context.Context, fileID string, st model.StageStatus) error {
	return e.Store.UpdateStatus(ctx, fileID, model.StatusUpdate{Transcription: &st})
}

func (e *Engine) markCompleted(ctx context.Context, fileID string) error {
	completed := model.StageCompleted
	return e.Store.UpdateStatus(ctx, fileID, model.StatusUpdate{Transcription: &completed})
}

func (e *Engine) fail(ctx context.Context, fileID string, cause error) {
	logger := log.WithComponentFromContext(ctx, "transcribe")
	logger.Error().Err(cause).Msg("transcription failed")

	if err := e.Store.LogError(ctx, fileID, model.StageTranscription, cause.Error(), errorDetails(cause)); err != nil {
		logger.Warn().Err(err).Msg("failed to log stage error")
	}
	if err := e.setStage(ctx, fileID, model.StageFailed); err != nil {
		logger.Warn().Err(err).Msg("failed to mark stage failed")
	}
}

func errorDetails(err error) string {
	switch {
	case errors.Is(err, provider.ErrPermanent):
		return "permanent provider error"
	case errors.Is(err, provider.ErrTransient):
		return "transient provider error, retries exhausted"
	case errors.Is(err, provider.ErrRateLimit):
		return "rate limited, retries exhausted"
	case errors.Is(err, provider.ErrTimeout):
		return "timed out"
	default:
		return ""
	}
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
