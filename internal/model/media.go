// SPDX-License-Identifier: MIT

// Package model holds the entities tracked by the pipeline and the enums of
// their state machines.
package model

import "time"

// MediaFile is one recording under management. Immutable after discovery
// except for post-probe metadata and an explicit safe_filename migration.
type MediaFile struct {
	FileID           string
	OriginalPath     string
	SafeFilename     string
	FileSize         int64
	DurationSeconds  *float64
	Checksum         string
	MediaType        MediaType
	DetectedLanguage string
	ParentID         string // set on child rows created by long-audio segmentation
	Segmented        bool   // marker on a parent that was split into children
	CreatedAt        time.Time
}

// ProcessingStatus tracks the per-stage state for one MediaFile. Translation
// holds one entry per configured target language.
type ProcessingStatus struct {
	FileID        string
	Overall       OverallStatus
	Transcription StageStatus
	Translation   map[string]StageStatus
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastUpdated   time.Time
	Attempts      int
}

// ErrorLogEntry is one recorded failure for a file and stage.
type ErrorLogEntry struct {
	ErrorID      int64
	FileID       string
	ProcessStage Stage
	ErrorMessage string
	ErrorDetails string
	Timestamp    time.Time
}

// QualityEvaluation is one LLM scoring of a finished translation.
type QualityEvaluation struct {
	EvalID      int64
	FileID      string
	Language    string
	Model       string
	Score       float64
	Issues      []string
	Comment     string
	EvaluatedAt time.Time
}

// StatusUpdate is the explicit update descriptor for UpdateStatus. Nil fields
// are untouched; Translation entries update only the named languages.
type StatusUpdate struct {
	Overall       *OverallStatus
	Transcription *StageStatus
	Translation   map[string]StageStatus
	CompletedAt   *time.Time
}

// Empty reports whether the update carries no changes.
func (u StatusUpdate) Empty() bool {
	return u.Overall == nil && u.Transcription == nil && len(u.Translation) == 0 && u.CompletedAt == nil
}

// MediaMetadata is the whitelisted set of mutable MediaFile fields.
type MediaMetadata struct {
	FileSize         *int64
	DurationSeconds  *float64
	Checksum         *string
	DetectedLanguage *string
	SafeFilename     *string
	Segmented        *bool
}
