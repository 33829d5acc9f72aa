// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/skeidel/voxpipe/internal/model"
)

// UpdateStatus applies an explicit status update in one transaction over both
// status tables. Every call bumps attempts and last_updated; started_at is
// set on the first transition into in_progress and completed_at on terminal
// transitions unless supplied by the caller.
func (s *Store) UpdateStatus(ctx context.Context, fileID string, u model.StatusUpdate) error {
	if u.Empty() {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var startedAt sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT started_at FROM processing_status WHERE file_id = ?`, fileID).Scan(&startedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	if err != nil {
		return classify(err)
	}

	now := fmtTime(time.Now())

	sets := []string{"last_updated = ?", "attempts = attempts + 1"}
	args := []any{now}

	enteringInProgress := false
	enteringTerminal := false
	if u.Overall != nil {
		sets = append(sets, "overall_status = ?")
		args = append(args, string(*u.Overall))
		enteringInProgress = enteringInProgress || *u.Overall == model.OverallInProgress
		enteringTerminal = enteringTerminal || u.Overall.IsTerminal()
	}
	if u.Transcription != nil {
		sets = append(sets, "transcription_status = ?")
		args = append(args, string(*u.Transcription))
		enteringInProgress = enteringInProgress || *u.Transcription == model.StageInProgress
		enteringTerminal = enteringTerminal || u.Transcription.IsTerminal()
	}
	for _, st := range u.Translation {
		enteringInProgress = enteringInProgress || st == model.StageInProgress
		enteringTerminal = enteringTerminal || st.IsTerminal()
	}

	if enteringInProgress && !startedAt.Valid {
		sets = append(sets, "started_at = ?")
		args = append(args, now)
	}
	switch {
	case u.CompletedAt != nil:
		sets = append(sets, "completed_at = ?")
		args = append(args, fmtTime(*u.CompletedAt))
	case enteringTerminal:
		sets = append(sets, "completed_at = ?")
		args = append(args, now)
	}
	args = append(args, fileID)

	_, err = tx.ExecContext(ctx,
		"UPDATE processing_status SET "+strings.Join(sets, ", ")+" WHERE file_id = ?", args...)
	if err != nil {
		return classify(err)
	}

	for lang, st := range u.Translation {
		res, err := tx.ExecContext(ctx, `
		UPDATE translation_status SET status = ?, last_updated = ? WHERE file_id = ? AND language = ?`,
			string(st), now, fileID, lang)
		if err != nil {
			return classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classify(err)
		}
		if n == 0 {
			// Language added to the target set after this file was tracked.
			_, err = tx.ExecContext(ctx, `
			INSERT INTO translation_status (file_id, language, status, last_updated) VALUES (?, ?, ?, ?)`,
				fileID, lang, string(st), now)
			if err != nil {
				return classify(err)
			}
		}
	}

	return classify(tx.Commit())
}

// GetStatus returns the full ProcessingStatus including translation states.
func (s *Store) GetStatus(ctx context.Context, fileID string) (*model.ProcessingStatus, error) {
	var ps model.ProcessingStatus
	var overall, transcription, lastUpdated string
	var started, completed sql.NullString

	err := s.db.QueryRowContext(ctx, `
	SELECT file_id, overall_status, transcription_status, started_at, completed_at, last_updated, attempts
	FROM processing_status WHERE file_id = ?`, fileID).Scan(
		&ps.FileID, &overall, &transcription, &started, &completed, &lastUpdated, &ps.Attempts)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}

	ps.Overall = model.OverallStatus(overall)
	ps.Transcription = model.StageStatus(transcription)
	ps.StartedAt = parseTimePtr(started)
	ps.CompletedAt = parseTimePtr(completed)
	ps.LastUpdated = parseTime(lastUpdated)

	ps.Translation = map[string]model.StageStatus{}
	rows, err := s.db.QueryContext(ctx,
		`SELECT language, status FROM translation_status WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var lang, st string
		if err := rows.Scan(&lang, &st); err != nil {
			return nil, classify(err)
		}
		ps.Translation[lang] = model.StageStatus(st)
	}
	return &ps, rows.Err()
}

// Item is one unit of schedulable work: a media file plus the stage it is
// pending for.
type Item struct {
	Media model.MediaFile
	Stage model.Stage
}

// ListPendingForStage returns up to limit files ready for the named stage.
// Translation stages only surface files whose transcription is completed and
// whose own stage is not_started or failed. Transcription surfaces any file
// at not_started or failed, audio and video alike: a video source still
// lacking its audio track gets it extracted inline. Extraction is a pre-pass
// over video sources that have not started transcription; the orchestrator
// keeps the two stages off the same file at the same time.
func (s *Store) ListPendingForStage(ctx context.Context, stage model.Stage, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 10
	}

	var query string
	var args []any
	switch {
	case stage == model.StageExtraction:
		query = selectMedia + `
		JOIN processing_status ps USING (file_id)
		WHERE media_type = 'video' AND ps.transcription_status = 'not_started'
			AND ps.overall_status IN ('pending', 'failed')
		ORDER BY created_at LIMIT ?`
		args = []any{limit}
	case stage == model.StageTranscription:
		query = selectMedia + `
		JOIN processing_status ps USING (file_id)
		WHERE ps.transcription_status IN ('not_started', 'failed')
		ORDER BY created_at LIMIT ?`
		args = []any{limit}
	default:
		lang, ok := stage.IsTranslation()
		if !ok {
			return nil, fmt.Errorf("stage %q is not schedulable", stage)
		}
		query = selectMedia + `
		JOIN processing_status ps USING (file_id)
		JOIN translation_status ts USING (file_id)
		WHERE ps.transcription_status = 'completed'
			AND ts.language = ? AND ts.status IN ('not_started', 'failed')
		ORDER BY created_at LIMIT ?`
		args = []any{lang, limit}
	}

	media, err := s.listMedia(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(media))
	for i, m := range media {
		items[i] = Item{Media: m, Stage: stage}
	}
	return items, nil
}

// ListForTranscription returns files whose transcription has not succeeded yet.
func (s *Store) ListForTranscription(ctx context.Context, limit int) ([]model.MediaFile, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.listMedia(ctx, selectMedia+`
	JOIN processing_status ps USING (file_id)
	WHERE ps.transcription_status IN ('not_started', 'failed')
	ORDER BY created_at LIMIT ?`, limit)
}

// ListByStatus returns files whose overall status is in statuses.
func (s *Store) ListByStatus(ctx context.Context, statuses []model.OverallStatus, limit int) ([]model.MediaFile, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, limit)
	return s.listMedia(ctx, selectMedia+`
	JOIN processing_status ps USING (file_id)
	WHERE ps.overall_status IN (`+placeholders+`)
	ORDER BY created_at LIMIT ?`, args...)
}

// ListUnknownLanguage returns transcribed files with no detected language.
func (s *Store) ListUnknownLanguage(ctx context.Context) ([]model.MediaFile, error) {
	return s.listMedia(ctx, selectMedia+`
	JOIN processing_status ps USING (file_id)
	WHERE ps.transcription_status = 'completed' AND detected_language = ''
	ORDER BY created_at`)
}

// StalledStage is one stage found in_progress past the stall threshold.
type StalledStage struct {
	FileID      string
	Stage       model.Stage
	LastUpdated time.Time
}

// ListStalled finds stages stuck in_progress whose last_updated is older than
// the threshold.
func (s *Store) ListStalled(ctx context.Context, olderThan time.Duration) ([]StalledStage, error) {
	cutoff := fmtTime(time.Now().Add(-olderThan))

	var out []StalledStage
	rows, err := s.db.QueryContext(ctx, `
	SELECT file_id, last_updated FROM processing_status
	WHERE transcription_status = 'in_progress' AND last_updated < ?`, cutoff)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, updated string
		if err := rows.Scan(&id, &updated); err != nil {
			return nil, classify(err)
		}
		out = append(out, StalledStage{FileID: id, Stage: model.StageTranscription, LastUpdated: parseTime(updated)})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	trRows, err := s.db.QueryContext(ctx, `
	SELECT file_id, language, last_updated FROM translation_status
	WHERE status = 'in_progress' AND last_updated < ?`, cutoff)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = trRows.Close() }()
	for trRows.Next() {
		var id, lang, updated string
		if err := trRows.Scan(&id, &lang, &updated); err != nil {
			return nil, classify(err)
		}
		out = append(out, StalledStage{FileID: id, Stage: model.TranslationStage(lang), LastUpdated: parseTime(updated)})
	}
	return out, trRows.Err()
}

func (s *Store) listMedia(ctx context.Context, query string, args ...any) ([]model.MediaFile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.MediaFile
	for rows.Next() {
		var m model.MediaFile
		var duration sql.NullFloat64
		var mediaType, createdAt string
		var segmented int
		if err := rows.Scan(&m.FileID, &m.OriginalPath, &m.SafeFilename, &m.FileSize, &duration,
			&m.Checksum, &mediaType, &m.DetectedLanguage, &m.ParentID, &segmented, &createdAt); err != nil {
			return nil, classify(err)
		}
		if duration.Valid {
			d := duration.Float64
			m.DurationSeconds = &d
		}
		m.MediaType = model.MediaType(mediaType)
		m.Segmented = segmented != 0
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
