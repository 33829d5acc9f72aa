// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skeidel/voxpipe/internal/avtool"
	"github.com/skeidel/voxpipe/internal/config"
	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/sanitize"
	"github.com/skeidel/voxpipe/internal/store"
)

// ProblemKind classifies why a file needs intervention.
type ProblemKind string

const (
	ProblemFailedRepeatedly ProblemKind = "failed_multiple_times"
	ProblemStalled          ProblemKind = "stalled"
	ProblemEmptyOutput      ProblemKind = "empty_output"
	ProblemInvalidAudio     ProblemKind = "invalid_audio"
	ProblemTimeout          ProblemKind = "timeout"
)

// Problem is one diagnosed file/stage pair.
type Problem struct {
	FileID string
	Stage  model.Stage
	Kind   ProblemKind
	Detail string
}

const (
	problemAttempts     = 3
	problemStalledAfter = 24 * time.Hour
	minTranscriptBytes  = 10
	identifyLimit       = 1000
)

// Doctor diagnoses files the normal retry path cannot recover and applies the
// matching treatment: audio repair, preprocessing, artifact reset or
// segmentation into child files.
type Doctor struct {
	Store  *store.Store
	Layout layout.Layout
	Tool   *avtool.Tool
	Conf   config.Config
}

// Identify scans the tracked files and returns everything that looks like a
// problem case. Diagnosis only; nothing is modified.
func (d *Doctor) Identify(ctx context.Context) ([]Problem, error) {
	var problems []Problem

	files, err := d.Store.ListByStatus(ctx,
		[]model.OverallStatus{model.OverallPending, model.OverallInProgress, model.OverallFailed},
		identifyLimit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	for _, m := range files {
		st, err := d.Store.GetStatus(ctx, m.FileID)
		if err != nil {
			return nil, err
		}

		if st.Transcription == model.StageCompleted {
			stem := sanitize.Stem(m.SafeFilename)
			if fi, err := os.Stat(d.Layout.TranscriptPath(stem)); err == nil && fi.Size() < minTranscriptBytes {
				problems = append(problems, Problem{
					FileID: m.FileID,
					Stage:  model.StageTranscription,
					Kind:   ProblemEmptyOutput,
					Detail: fmt.Sprintf("transcript is %d bytes", fi.Size()),
				})
			}
		}

		for _, stage := range failedStages(st) {
			p, err := d.diagnoseFailure(ctx, m, st, stage)
			if err != nil {
				return nil, err
			}
			problems = append(problems, p)
		}
	}

	stalled, err := d.Store.ListStalled(ctx, problemStalledAfter)
	if err != nil {
		return nil, fmt.Errorf("list stalled: %w", err)
	}
	for _, st := range stalled {
		problems = append(problems, Problem{
			FileID: st.FileID,
			Stage:  st.Stage,
			Kind:   ProblemStalled,
			Detail: fmt.Sprintf("in_progress since %s", st.LastUpdated.Format(time.RFC3339)),
		})
	}
	return problems, nil
}

func failedStages(st *model.ProcessingStatus) []model.Stage {
	var stages []model.Stage
	if st.Transcription == model.StageFailed {
		stages = append(stages, model.StageTranscription)
	}
	for lang, s := range st.Translation {
		if s == model.StageFailed {
			stages = append(stages, model.TranslationStage(lang))
		}
	}
	return stages
}

// diagnoseFailure looks at the error history of one failed stage and picks
// the most specific classification.
func (d *Doctor) diagnoseFailure(ctx context.Context, m model.MediaFile, st *model.ProcessingStatus, stage model.Stage) (Problem, error) {
	p := Problem{FileID: m.FileID, Stage: stage, Kind: ProblemFailedRepeatedly}

	entries, err := d.Store.ListErrors(ctx, m.FileID, 5)
	if err != nil {
		return p, err
	}
	for _, e := range entries {
		if e.ProcessStage != stage {
			continue
		}
		msg := strings.ToLower(e.ErrorMessage)
		switch {
		case strings.Contains(msg, "invalid"), strings.Contains(msg, "could not decode"),
			strings.Contains(msg, "moov atom"), strings.Contains(msg, "corrupt"):
			p.Kind = ProblemInvalidAudio
		case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
			p.Kind = ProblemTimeout
		}
		if p.Detail == "" {
			p.Detail = e.ErrorMessage
		}
	}

	if p.Kind == ProblemFailedRepeatedly && st.Attempts < problemAttempts {
		p.Detail = fmt.Sprintf("%d attempts (below threshold but failed)", st.Attempts)
	}
	return p, nil
}

// Treat applies the matching intervention for one problem and resets the
// stage so the orchestrator retries the file.
func (d *Doctor) Treat(ctx context.Context, p Problem) error {
	logger := log.WithComponentFromContext(ctx, "doctor")
	logger.Info().
		Str(log.FieldFileID, p.FileID).
		Str(log.FieldStage, string(p.Stage)).
		Str("kind", string(p.Kind)).
		Msg("treating problem file")

	switch p.Kind {
	case ProblemStalled, ProblemTimeout:
		return d.resetStage(ctx, p.FileID, p.Stage)

	case ProblemEmptyOutput:
		m, err := d.Store.GetMedia(ctx, p.FileID)
		if err != nil {
			return err
		}
		stem := sanitize.Stem(m.SafeFilename)
		if err := os.Remove(d.Layout.TranscriptPath(stem)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove empty transcript: %w", err)
		}
		return d.resetStage(ctx, p.FileID, model.StageTranscription)

	case ProblemInvalidAudio:
		return d.repairAudio(ctx, p.FileID)

	case ProblemFailedRepeatedly:
		m, err := d.Store.GetMedia(ctx, p.FileID)
		if err != nil {
			return err
		}
		if p.Stage == model.StageTranscription && d.needsSegmentation(*m) {
			return d.Segment(ctx, *m)
		}
		if p.Stage == model.StageTranscription {
			if err := d.preprocessAudio(ctx, *m); err != nil {
				return err
			}
		}
		return d.resetStage(ctx, p.FileID, p.Stage)

	default:
		return fmt.Errorf("unknown problem kind %q", p.Kind)
	}
}

func (d *Doctor) resetStage(ctx context.Context, fileID string, stage model.Stage) error {
	notStarted := model.StageNotStarted
	update := model.StatusUpdate{}
	if lang, ok := stage.IsTranslation(); ok {
		update.Translation = map[string]model.StageStatus{lang: notStarted}
	} else {
		update.Transcription = &notStarted
	}
	return d.Store.UpdateStatus(ctx, fileID, update)
}

func (d *Doctor) audioPath(m model.MediaFile) string {
	stem := sanitize.Stem(m.SafeFilename)
	if m.MediaType == model.MediaVideo {
		return d.Layout.AudioPath(stem, d.Conf.ExtractAudioFormat)
	}
	return d.Layout.SourcePath(stem, strings.TrimPrefix(filepath.Ext(m.SafeFilename), "."))
}

// repairAudio rewrites the audio artifact with error-tolerant decoding and
// resets transcription.
func (d *Doctor) repairAudio(ctx context.Context, fileID string) error {
	m, err := d.Store.GetMedia(ctx, fileID)
	if err != nil {
		return err
	}

	src := d.audioPath(*m)
	repaired := src + ".repaired.mp3"
	if err := d.Tool.RepairAudio(ctx, src, repaired); err != nil {
		return fmt.Errorf("repair audio: %w", err)
	}
	if err := os.Rename(repaired, src); err != nil {
		return fmt.Errorf("swap repaired audio: %w", err)
	}
	return d.resetStage(ctx, fileID, model.StageTranscription)
}

// preprocessAudio normalizes loudness, channels and sample rate in place.
func (d *Doctor) preprocessAudio(ctx context.Context, m model.MediaFile) error {
	src := d.audioPath(m)
	cleaned := src + ".clean.mp3"
	if err := d.Tool.Preprocess(ctx, src, cleaned); err != nil {
		return fmt.Errorf("preprocess audio: %w", err)
	}
	if err := os.Rename(cleaned, src); err != nil {
		return fmt.Errorf("swap preprocessed audio: %w", err)
	}
	return nil
}

func (d *Doctor) needsSegmentation(m model.MediaFile) bool {
	if m.Segmented || m.ParentID != "" {
		return false
	}
	if m.FileSize > 2*d.Conf.MaxAudioBytes() {
		return true
	}
	return m.DurationSeconds != nil && *m.DurationSeconds > 2*float64(d.Conf.MaxSegmentSeconds)
}

// Segment splits a repeatedly failing long recording into independently
// tracked child files. The parent is marked segmented and leaves the
// transcription queue; the children enter it as ordinary files.
func (d *Doctor) Segment(ctx context.Context, m model.MediaFile) error {
	logger := log.WithComponentFromContext(ctx, "doctor")
	stem := sanitize.Stem(m.SafeFilename)

	segs, err := d.Tool.SplitAudio(ctx, d.audioPath(m), d.Layout.Dir(stem), avtool.SplitOpts{
		MaxSizeBytes:      d.Conf.MaxAudioBytes(),
		MaxSegmentSeconds: d.Conf.MaxSegmentSeconds,
		Encode: avtool.ExtractOpts{Bitrate: d.Conf.ExtractAudioQuality},
	})
	if err != nil {
		return fmt.Errorf("split audio: %w", err)
	}

	for _, seg := range segs {
		info, err := os.Stat(seg.Path)
		if err != nil {
			return fmt.Errorf("stat segment: %w", err)
		}
		dur := seg.DurationSeconds
		childName := fmt.Sprintf("%s_part%02d.%s", stem, seg.Index+1, d.Conf.ExtractAudioFormat)
		id, err := d.Store.AddMedia(ctx, store.NewMedia{
			OriginalPath:     seg.Path,
			SafeFilename:     childName,
			MediaType:        model.MediaAudio,
			FileSize:         info.Size(),
			DurationSeconds:  &dur,
			DetectedLanguage: m.DetectedLanguage,
			ParentID:         m.FileID,
		})
		if err != nil {
			return fmt.Errorf("add segment %d: %w", seg.Index, err)
		}
		logger.Info().
			Str(log.FieldFileID, id).
			Str("parent_id", m.FileID).
			Int("segment", seg.Index+1).
			Msg("segment registered as child file")
	}

	segmented := true
	if err := d.Store.UpdateMediaMetadata(ctx, m.FileID, model.MediaMetadata{Segmented: &segmented}); err != nil {
		return err
	}
	// qa_failed is terminal: the parent stops being schedulable without
	// pretending its own transcription succeeded.
	qaFailed := model.StageQAFailed
	return d.Store.UpdateStatus(ctx, m.FileID, model.StatusUpdate{Transcription: &qaFailed})
}
