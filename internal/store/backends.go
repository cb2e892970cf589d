package store

import (
	"fmt"
)

// AddBackendURL appends a URL to a provider's backend list. Adding a
// (provider, url) pair that already exists is a no-op; the returned
// bool reports whether a new row was inserted.
func (s *Store) AddBackendURL(provider, url string) (bool, error) {
	result, err := s.writer.Exec(
		"INSERT OR IGNORE INTO backends (provider, url) VALUES (?, ?)",
		provider, url,
	)
	if err != nil {
		return false, fmt.Errorf("store: add backend %s %s: %w", provider, url, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: add backend rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveBackendURL removes one URL from a provider's backend list.
// Removing the last URL removes the provider entirely (there is no
// separate provider row). Returns ErrNotFound if the pair is absent.
func (s *Store) RemoveBackendURL(provider, url string) error {
	result, err := s.writer.Exec(
		"DELETE FROM backends WHERE provider = ? AND url = ?", provider, url,
	)
	if err != nil {
		return fmt.Errorf("store: remove backend %s %s: %w", provider, url, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: remove backend rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: backend %s %s: %w", provider, url, ErrNotFound)
	}
	return nil
}

// GetBackendURLs returns a provider's URLs in insertion order
// (primary first). Returns ErrNotFound if the provider has no URLs.
func (s *Store) GetBackendURLs(provider string) ([]string, error) {
	rows, err := s.reader.Query(
		"SELECT url FROM backends WHERE provider = ? ORDER BY id", provider,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get backend %s: %w", provider, err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("store: scan backend row: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get backend iteration: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("store: backend %s: %w", provider, ErrNotFound)
	}
	return urls, nil
}

// ListBackends returns every provider's URL list, each in insertion order.
func (s *Store) ListBackends() (map[string][]string, error) {
	rows, err := s.reader.Query(
		"SELECT provider, url FROM backends ORDER BY provider, id",
	)
	if err != nil {
		return nil, fmt.Errorf("store: list backends: %w", err)
	}
	defer rows.Close()

	backends := make(map[string][]string)
	for rows.Next() {
		var provider, url string
		if err := rows.Scan(&provider, &url); err != nil {
			return nil, fmt.Errorf("store: scan backend row: %w", err)
		}
		backends[provider] = append(backends[provider], url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list backends iteration: %w", err)
	}
	return backends, nil
}
