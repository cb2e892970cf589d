package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Request is a single dispatch record in the request log.
type Request struct {
	ID           int64
	RequestID    string
	CreatedAt    string
	Model        string
	Provider     string
	BackendURL   string
	StatusCode   int
	Outcome      string
	DurationMs   int64
	PromptTokens int64
	Streamed     bool
}

// RequestStats holds aggregate statistics for a range of requests.
type RequestStats struct {
	TotalRequests     int64
	Succeeded         int64
	Failed            int64
	TotalPromptTokens int64
}

// InsertRequest appends a dispatch record to the request log.
func (s *Store) InsertRequest(r *Request) error {
	streamedInt := 0
	if r.Streamed {
		streamedInt = 1
	}

	_, err := s.writer.Exec(`
		INSERT INTO requests (
			request_id, created_at, model, provider, backend_url,
			status_code, outcome, duration_ms, prompt_tokens, streamed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.CreatedAt, r.Model, r.Provider, r.BackendURL,
		r.StatusCode, r.Outcome, r.DurationMs, r.PromptTokens, streamedInt,
	)
	if err != nil {
		return fmt.Errorf("store: insert request: %w", err)
	}
	return nil
}

// ListRequests returns a page of dispatch records, newest first.
func (s *Store) ListRequests(limit, offset int) ([]*Request, error) {
	rows, err := s.reader.Query(`
		SELECT id, request_id, created_at, model, provider, backend_url,
		       status_code, outcome, duration_ms, prompt_tokens, streamed
		FROM requests
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	defer rows.Close()

	var results []*Request
	for rows.Next() {
		r := &Request{}
		var streamedInt int
		if err := rows.Scan(
			&r.ID, &r.RequestID, &r.CreatedAt, &r.Model, &r.Provider, &r.BackendURL,
			&r.StatusCode, &r.Outcome, &r.DurationMs, &r.PromptTokens, &streamedInt,
		); err != nil {
			return nil, fmt.Errorf("store: scan request row: %w", err)
		}
		r.Streamed = streamedInt != 0
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list requests iteration: %w", err)
	}
	return results, nil
}

// GetRequestStats computes aggregate statistics for all requests whose
// created_at is >= since. A request counts as succeeded when its outcome
// is "ok".
func (s *Store) GetRequestStats(since time.Time) (*RequestStats, error) {
	sinceStr := since.UTC().Format(time.RFC3339)
	stats := &RequestStats{}

	err := s.reader.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome != 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(prompt_tokens), 0)
		FROM requests
		WHERE created_at >= ?`, sinceStr,
	).Scan(
		&stats.TotalRequests,
		&stats.Succeeded,
		&stats.Failed,
		&stats.TotalPromptTokens,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return stats, nil
		}
		return nil, fmt.Errorf("store: get request stats: %w", err)
	}

	return stats, nil
}
