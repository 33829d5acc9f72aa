// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldFileID        = "file_id"
	FieldCorrelationID = "correlation_id"

	// Pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldLang      = "lang"
	FieldProvider  = "provider"
	FieldAttempt   = "attempt"
	FieldWorker    = "worker"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Media / artifact fields
	FieldPath       = "path"
	FieldSizeBytes  = "size_bytes"
	FieldDurationMS = "duration_ms"
	FieldSegments   = "segments"
)
