// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/model"
)

// NewMedia carries the discovery-time attributes of a media file.
type NewMedia struct {
	OriginalPath     string
	SafeFilename     string
	MediaType        model.MediaType
	FileSize         int64
	DurationSeconds  *float64
	Checksum         string
	DetectedLanguage string
	ParentID         string
}

// AddMedia inserts a MediaFile together with its initial ProcessingStatus and
// one not_started translation row per configured target, in one transaction.
// Returns ErrDuplicatePath when the original path is already tracked.
func (s *Store) AddMedia(ctx context.Context, m NewMedia) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT file_id FROM media_files WHERE original_path = ?`, m.OriginalPath).Scan(&existing)
	if err == nil {
		return existing, fmt.Errorf("path %s: %w", m.OriginalPath, ErrDuplicatePath)
	}
	if err != sql.ErrNoRows {
		return "", classify(err)
	}

	fileID := uuid.NewString()
	now := fmtTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var duration any
	if m.DurationSeconds != nil {
		duration = *m.DurationSeconds
	}
	var parent any
	if m.ParentID != "" {
		parent = m.ParentID
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO media_files (file_id, original_path, safe_filename, file_size, duration_seconds,
		checksum, media_type, detected_language, parent_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fileID, m.OriginalPath, m.SafeFilename, m.FileSize, duration,
		m.Checksum, string(m.MediaType), m.DetectedLanguage, parent, now)
	if err != nil {
		return "", classify(err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO processing_status (file_id, overall_status, transcription_status, last_updated, attempts)
	VALUES (?, 'pending', 'not_started', ?, 0)`, fileID, now)
	if err != nil {
		return "", classify(err)
	}

	for _, lang := range s.targets {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO translation_status (file_id, language, status, last_updated)
		VALUES (?, ?, 'not_started', ?)`, fileID, lang, now)
		if err != nil {
			return "", classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", classify(err)
	}

	logger := log.WithComponent("store")
	logger.Debug().
		Str(log.FieldFileID, fileID).
		Str(log.FieldPath, m.OriginalPath).
		Msg("media file added")
	return fileID, nil
}

// UpdateMediaMetadata applies the whitelisted mutable fields. Nil fields are
// untouched. Returns ErrNotFound for an unknown file.
func (s *Store) UpdateMediaMetadata(ctx context.Context, fileID string, m model.MediaMetadata) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	if m.FileSize != nil {
		sets = append(sets, "file_size = ?")
		args = append(args, *m.FileSize)
	}
	if m.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = ?")
		args = append(args, *m.DurationSeconds)
	}
	if m.Checksum != nil {
		sets = append(sets, "checksum = ?")
		args = append(args, *m.Checksum)
	}
	if m.DetectedLanguage != nil {
		sets = append(sets, "detected_language = ?")
		args = append(args, *m.DetectedLanguage)
	}
	if m.SafeFilename != nil {
		sets = append(sets, "safe_filename = ?")
		args = append(args, *m.SafeFilename)
	}
	if m.Segmented != nil {
		sets = append(sets, "segmented = ?")
		args = append(args, boolToInt(*m.Segmented))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, fileID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE media_files SET "+strings.Join(sets, ", ")+" WHERE file_id = ?", args...)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	return nil
}

// StemInUse reports whether any tracked file's artifacts live under stem.
// Safe filenames are "<stem>" or "<stem>.<ext>".
func (s *Store) StemInUse(ctx context.Context, stem string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM media_files
	WHERE safe_filename = ?
		OR (substr(safe_filename, 1, ?) = ? AND substr(safe_filename, ?, 1) = '.')`,
		stem, len(stem), stem, len(stem)+1).Scan(&n)
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

// GetMedia returns the MediaFile for fileID.
func (s *Store) GetMedia(ctx context.Context, fileID string) (*model.MediaFile, error) {
	return s.scanMedia(s.db.QueryRowContext(ctx, selectMedia+" WHERE file_id = ?", fileID))
}

// GetByPath returns the MediaFile tracked at originalPath.
func (s *Store) GetByPath(ctx context.Context, originalPath string) (*model.MediaFile, error) {
	return s.scanMedia(s.db.QueryRowContext(ctx, selectMedia+" WHERE original_path = ?", originalPath))
}

const selectMedia = `
	SELECT file_id, original_path, safe_filename, file_size, duration_seconds,
		checksum, media_type, detected_language, COALESCE(parent_id, ''), segmented, created_at
	FROM media_files`

func (s *Store) scanMedia(row *sql.Row) (*model.MediaFile, error) {
	var m model.MediaFile
	var duration sql.NullFloat64
	var mediaType, createdAt string
	var segmented int

	err := row.Scan(&m.FileID, &m.OriginalPath, &m.SafeFilename, &m.FileSize, &duration,
		&m.Checksum, &mediaType, &m.DetectedLanguage, &m.ParentID, &segmented, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}

	if duration.Valid {
		d := duration.Float64
		m.DurationSeconds = &d
	}
	m.MediaType = model.MediaType(mediaType)
	m.Segmented = segmented != 0
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
