// SPDX-License-Identifier: MIT

// Package audit reconciles the tracking store against the artifacts on disk:
// it classifies every expected artifact and can repair the disagreements it
// finds, either by resetting a stage for reprocessing or by repairing the
// recorded status.
package audit

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/skeidel/voxpipe/internal/layout"
	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
	"github.com/skeidel/voxpipe/internal/sanitize"
	"github.com/skeidel/voxpipe/internal/store"
	"github.com/skeidel/voxpipe/internal/translate"
)

// Classification is the verdict for one artifact.
type Classification string

const (
	ClassValid       Classification = "valid"
	ClassPlaceholder Classification = "placeholder"
	ClassMissing     Classification = "missing"
	ClassOrphaned    Classification = "orphaned"
	ClassCorrupted   Classification = "corrupted"
	ClassEmpty       Classification = "empty"
)

// Finding is one classified artifact.
type Finding struct {
	FileID string
	Stage  model.Stage
	Class  Classification
	Path   string
	Detail string
}

// NeedsFix reports whether the finding describes a disagreement.
func (f Finding) NeedsFix() bool {
	return f.Class != ClassValid
}

// Literal placeholder markers left behind by interrupted or mocked runs,
// matched case-insensitively, plus the bracketed "[<LANG> TRANSLATION]" form.
var (
	placeholderMarkers = []string{
		"<<<placeholder>>>",
		"translation pending",
		"to be translated",
	}
	placeholderPattern = regexp.MustCompile(`(?i)\[[a-z]+ translation\]`)
)

const auditListLimit = 10000

// Auditor scans tracked files and their artifacts.
type Auditor struct {
	Store  *store.Store
	Layout layout.Layout
}

// Run classifies every expected artifact of every tracked file, then walks
// the output root for artifact directories no tracked file accounts for.
// Findings with class valid are included so callers can report totals;
// nothing is modified.
func (a *Auditor) Run(ctx context.Context) ([]Finding, error) {
	files, err := a.Store.ListByStatus(ctx, []model.OverallStatus{
		model.OverallPending, model.OverallInProgress, model.OverallCompleted, model.OverallFailed,
	}, auditListLimit)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	var findings []Finding
	tracked := make(map[string]struct{}, len(files))
	for _, m := range files {
		tracked[sanitize.Stem(m.SafeFilename)] = struct{}{}
		status, err := a.Store.GetStatus(ctx, m.FileID)
		if err != nil {
			return nil, err
		}
		findings = append(findings, a.auditFile(m, status)...)
	}

	untracked, err := a.untrackedDirs(tracked)
	if err != nil {
		return nil, err
	}
	return append(findings, untracked...), nil
}

// untrackedDirs flags artifact directories under the output root that belong
// to no tracked file. They have no status row to repair, so Fix reports them
// and leaves them alone.
func (a *Auditor) untrackedDirs(tracked map[string]struct{}) ([]Finding, error) {
	entries, err := os.ReadDir(a.Layout.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output root: %w", err)
	}

	var findings []Finding
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := tracked[e.Name()]; ok {
			continue
		}
		findings = append(findings, Finding{
			Class:  ClassOrphaned,
			Path:   a.Layout.Dir(e.Name()),
			Detail: "artifact directory has no tracked file",
		})
	}
	return findings, nil
}

func (a *Auditor) auditFile(m model.MediaFile, status *model.ProcessingStatus) []Finding {
	stem := sanitize.Stem(m.SafeFilename)
	var findings []Finding

	findings = append(findings, a.classifyText(
		m.FileID, model.StageTranscription, a.Layout.TranscriptPath(stem),
		status.Transcription == model.StageCompleted, ""))

	for lang, st := range status.Translation {
		stage := model.TranslationStage(lang)
		completed := st == model.StageCompleted
		findings = append(findings, a.classifyText(
			m.FileID, stage, a.Layout.TranslationPath(stem, lang), completed, lang))

		// The subtitle is derived from the text; it only counts as missing
		// when the stage claims completion.
		if completed {
			if _, err := os.Stat(a.Layout.SubtitlePath(stem, lang)); os.IsNotExist(err) {
				findings = append(findings, Finding{
					FileID: m.FileID,
					Stage:  stage,
					Class:  ClassMissing,
					Path:   a.Layout.SubtitlePath(stem, lang),
					Detail: "subtitle missing for completed translation",
				})
			}
		}
	}
	return findings
}

// classifyText is the verdict for one text artifact given whether its stage
// claims completion. lang is non-empty for translation artifacts.
func (a *Auditor) classifyText(fileID string, stage model.Stage, path string, completed bool, lang string) Finding {
	f := Finding{FileID: fileID, Stage: stage, Path: path, Class: ClassValid}

	data, err := os.ReadFile(path) // #nosec G304 -- layout-derived path
	switch {
	case os.IsNotExist(err):
		if completed {
			f.Class = ClassMissing
			f.Detail = "artifact missing for completed stage"
		}
		return f
	case err != nil:
		f.Class = ClassCorrupted
		f.Detail = err.Error()
		return f
	}

	// Content checks come first: a bad artifact is bad whether or not the
	// stage claims completion. Only a sound artifact can repair a status.
	text := strings.TrimSpace(string(data))
	switch {
	case text == "":
		f.Class = ClassEmpty
		f.Detail = "artifact is empty"
	case !utf8.Valid(data):
		f.Class = ClassCorrupted
		f.Detail = "artifact is not valid UTF-8"
	case hasPlaceholder(text):
		f.Class = ClassPlaceholder
		f.Detail = "placeholder marker in translation"
	case lang != "" && translate.IsRTLTarget(lang) && !translate.ContainsRTL(text):
		f.Class = ClassPlaceholder
		f.Detail = "no Hebrew characters in Hebrew translation"
	case !completed:
		f.Class = ClassOrphaned
		f.Detail = "artifact present for incomplete stage"
	}
	return f
}

func hasPlaceholder(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return placeholderPattern.MatchString(text)
}

// Fix repairs every finding that needs it and returns how many fixes were
// applied. With dryRun only the count is computed. Every fix is a status
// write through the store's update path; artifacts themselves are never
// touched. A placeholder or bad artifact goes back to not_started so the
// pipeline overwrites it; a missing artifact for a completed stage is a
// failure the pipeline must explain, so the stage goes to failed.
func (a *Auditor) Fix(ctx context.Context, findings []Finding, dryRun bool) (int, error) {
	logger := log.WithComponentFromContext(ctx, "audit")
	applied := 0

	for _, f := range findings {
		if !f.NeedsFix() {
			continue
		}
		if f.FileID == "" {
			// Untracked directory: no status row to repair, only report.
			logger.Warn().Str(log.FieldPath, f.Path).Msg("untracked artifact directory, leaving in place")
			continue
		}
		applied++
		if dryRun {
			continue
		}

		logger.Info().
			Str(log.FieldFileID, f.FileID).
			Str(log.FieldStage, string(f.Stage)).
			Str("class", string(f.Class)).
			Str(log.FieldPath, f.Path).
			Msg("fixing finding")

		var err error
		switch f.Class {
		case ClassOrphaned:
			// The artifact is there and plausible; the status is what lies.
			err = a.setStage(ctx, f.FileID, f.Stage, model.StageCompleted)
		case ClassMissing:
			err = a.setStage(ctx, f.FileID, f.Stage, model.StageFailed)
		case ClassPlaceholder, ClassCorrupted, ClassEmpty:
			err = a.resetStage(ctx, f.FileID, f.Stage)
		}
		if err != nil {
			return applied, fmt.Errorf("fix %s for %s: %w", f.Class, f.FileID, err)
		}
	}
	return applied, nil
}

// resetStage sends a stage back to not_started and reopens the file.
func (a *Auditor) resetStage(ctx context.Context, fileID string, stage model.Stage) error {
	inProgress := model.OverallInProgress
	notStarted := model.StageNotStarted
	update := model.StatusUpdate{Overall: &inProgress}
	if lang, ok := stage.IsTranslation(); ok {
		update.Translation = map[string]model.StageStatus{lang: notStarted}
	} else {
		update.Transcription = &notStarted
	}
	return a.Store.UpdateStatus(ctx, fileID, update)
}

func (a *Auditor) setStage(ctx context.Context, fileID string, stage model.Stage, st model.StageStatus) error {
	update := model.StatusUpdate{}
	if lang, ok := stage.IsTranslation(); ok {
		update.Translation = map[string]model.StageStatus{lang: st}
	} else {
		update.Transcription = &st
	}
	return a.Store.UpdateStatus(ctx, fileID, update)
}
