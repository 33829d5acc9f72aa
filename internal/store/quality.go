// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skeidel/voxpipe/internal/model"
)

// RecordQuality stores one LLM scoring of a finished translation. Issues are
// serialized as a JSON array.
func (s *Store) RecordQuality(ctx context.Context, q model.QualityEvaluation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	issues, err := json.Marshal(q.Issues)
	if err != nil {
		return err
	}
	evaluatedAt := q.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO quality_evaluations (file_id, language, model, score, issues, comment, evaluated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.FileID, q.Language, q.Model, q.Score, string(issues), q.Comment, fmtTime(evaluatedAt))
	return classify(err)
}

// ListQuality returns quality evaluations for a file, newest first.
func (s *Store) ListQuality(ctx context.Context, fileID string) ([]model.QualityEvaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT eval_id, file_id, language, model, score, issues, comment, evaluated_at
	FROM quality_evaluations WHERE file_id = ? ORDER BY eval_id DESC`, fileID)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.QualityEvaluation
	for rows.Next() {
		var q model.QualityEvaluation
		var issues, evaluatedAt string
		if err := rows.Scan(&q.EvalID, &q.FileID, &q.Language, &q.Model, &q.Score, &issues, &q.Comment, &evaluatedAt); err != nil {
			return nil, classify(err)
		}
		_ = json.Unmarshal([]byte(issues), &q.Issues)
		q.EvaluatedAt = parseTime(evaluatedAt)
		out = append(out, q)
	}
	return out, rows.Err()
}
