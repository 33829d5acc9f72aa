// SPDX-License-Identifier: MIT

package model

import "strings"

// OverallStatus is the file-level lifecycle visible to operators.
type OverallStatus string

const (
	OverallPending    OverallStatus = "pending"
	OverallInProgress OverallStatus = "in_progress"
	OverallCompleted  OverallStatus = "completed"
	OverallFailed     OverallStatus = "failed"
)

// IsTerminal returns true if the status is a final state.
func (s OverallStatus) IsTerminal() bool {
	switch s {
	case OverallCompleted, OverallFailed:
		return true
	}
	return false
}

// Valid reports whether s is a member of the overall status set.
func (s OverallStatus) Valid() bool {
	switch s {
	case OverallPending, OverallInProgress, OverallCompleted, OverallFailed:
		return true
	}
	return false
}

// StageStatus is the per-stage lifecycle for transcription and each translation.
type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
	StageQAFailed   StageStatus = "qa_failed"
)

// IsTerminal returns true if the status is a final state.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageQAFailed:
		return true
	}
	return false
}

// Valid reports whether s is a member of the stage status set.
func (s StageStatus) Valid() bool {
	switch s {
	case StageNotStarted, StageInProgress, StageCompleted, StageFailed, StageQAFailed:
		return true
	}
	return false
}

// MediaType distinguishes audio-only sources from video sources that need extraction.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// Stage is a short tag identifying one processing step for status tracking and
// error logging. Translation stages carry their target language suffix.
type Stage string

const (
	StageDiscovery     Stage = "discovery"
	StageExtraction    Stage = "extraction"
	StageTranscription Stage = "transcription"
)

const translationStagePrefix = "translation_"

// TranslationStage returns the stage tag for one target language.
func TranslationStage(lang string) Stage {
	return Stage(translationStagePrefix + lang)
}

// IsTranslation reports whether the stage is a translation stage and returns
// its target language.
func (s Stage) IsTranslation() (string, bool) {
	if strings.HasPrefix(string(s), translationStagePrefix) {
		return strings.TrimPrefix(string(s), translationStagePrefix), true
	}
	return "", false
}
