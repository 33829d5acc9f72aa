// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across pipeline spans.
const (
	FileIDKey   = "media.file_id"
	StageKey    = "media.stage"
	LangKey     = "media.lang"
	ProviderKey = "media.provider"
	AttemptKey  = "media.attempt"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// StageAttributes builds the span attributes for one pipeline item.
func StageAttributes(fileID, stage string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(FileIDKey, fileID),
		attribute.String(StageKey, stage),
		attribute.Int(AttemptKey, attempt),
	}
}

// ProviderAttributes builds the span attributes for one backend request.
func ProviderAttributes(provider, lang string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProviderKey, provider),
		attribute.String(LangKey, lang),
	}
}

// ErrorAttributes marks a span as failed with a coarse error type.
func ErrorAttributes(errType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errType),
	}
}
