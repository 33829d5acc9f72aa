// SPDX-License-Identifier: MIT

package store

import (
	"context"
)

// Summary aggregates per-stage counts for the status command and the ops
// endpoint.
type Summary struct {
	TotalFiles    int                       `json:"total_files"`
	TotalBytes    int64                     `json:"total_bytes"`
	Overall       map[string]int            `json:"overall"`
	Transcription map[string]int            `json:"transcription"`
	Translation   map[string]map[string]int `json:"translation"` // lang -> status -> count
	ErrorCount    int                       `json:"error_count"`
}

// SummaryStatistics computes aggregate counts across the whole corpus.
func (s *Store) SummaryStatistics(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		Overall:       map[string]int{},
		Transcription: map[string]int{},
		Translation:   map[string]map[string]int{},
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM media_files`).Scan(&sum.TotalFiles, &sum.TotalBytes)
	if err != nil {
		return nil, classify(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT overall_status, COUNT(*) FROM processing_status GROUP BY overall_status`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, classify(err)
		}
		sum.Overall[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	trRows, err := s.db.QueryContext(ctx,
		`SELECT transcription_status, COUNT(*) FROM processing_status GROUP BY transcription_status`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = trRows.Close() }()
	for trRows.Next() {
		var st string
		var n int
		if err := trRows.Scan(&st, &n); err != nil {
			return nil, classify(err)
		}
		sum.Transcription[st] = n
	}
	if err := trRows.Err(); err != nil {
		return nil, classify(err)
	}

	langRows, err := s.db.QueryContext(ctx,
		`SELECT language, status, COUNT(*) FROM translation_status GROUP BY language, status`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = langRows.Close() }()
	for langRows.Next() {
		var lang, st string
		var n int
		if err := langRows.Scan(&lang, &st, &n); err != nil {
			return nil, classify(err)
		}
		if sum.Translation[lang] == nil {
			sum.Translation[lang] = map[string]int{}
		}
		sum.Translation[lang][st] = n
	}
	if err := langRows.Err(); err != nil {
		return nil, classify(err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_log`).Scan(&sum.ErrorCount); err != nil {
		return nil, classify(err)
	}
	return sum, nil
}
