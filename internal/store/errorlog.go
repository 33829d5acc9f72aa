// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"strings"
	"time"

	"github.com/skeidel/voxpipe/internal/model"
)

// LogError records one failure for a file and stage.
func (s *Store) LogError(ctx context.Context, fileID string, stage model.Stage, message, details string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO error_log (file_id, process_stage, error_message, error_details, timestamp)
	VALUES (?, ?, ?, ?, ?)`,
		fileID, string(stage), message, details, fmtTime(time.Now()))
	return classify(err)
}

// ClearErrors deletes error log entries. Empty fileID widens to every file;
// empty stage widens to every stage.
func (s *Store) ClearErrors(ctx context.Context, fileID string, stage model.Stage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if fileID != "" {
		where = append(where, "file_id = ?")
		args = append(args, fileID)
	}
	if stage != "" {
		where = append(where, "process_stage = ?")
		args = append(args, string(stage))
	}
	query := "DELETE FROM error_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return classify(err)
}

// ListErrors returns error log entries, newest first. Empty fileID lists all.
func (s *Store) ListErrors(ctx context.Context, fileID string, limit int) ([]model.ErrorLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
	SELECT error_id, file_id, process_stage, error_message, error_details, timestamp
	FROM error_log`
	args := []any{}
	if fileID != "" {
		query += " WHERE file_id = ?"
		args = append(args, fileID)
	}
	query += " ORDER BY error_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ErrorLogEntry
	for rows.Next() {
		var e model.ErrorLogEntry
		var stage, ts string
		if err := rows.Scan(&e.ErrorID, &e.FileID, &stage, &e.ErrorMessage, &e.ErrorDetails, &ts); err != nil {
			return nil, classify(err)
		}
		e.ProcessStage = model.Stage(stage)
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ErrorCounts returns the number of logged errors per file.
func (s *Store) ErrorCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, COUNT(*) FROM error_log GROUP BY file_id`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, classify(err)
		}
		out[id] = n
	}
	return out, rows.Err()
}
