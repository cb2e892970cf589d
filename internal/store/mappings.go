package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Mapping routes a model name to a provider. Re-adding a model
// overwrites its provider target.
type Mapping struct {
	Model    string
	Provider string
}

// PutMapping stores or replaces the provider target for a model name.
func (s *Store) PutMapping(model, provider string) error {
	_, err := s.writer.Exec(
		"INSERT OR REPLACE INTO model_mappings (model, provider) VALUES (?, ?)",
		model, provider,
	)
	if err != nil {
		return fmt.Errorf("store: put mapping %s: %w", model, err)
	}
	return nil
}

// GetMapping retrieves the mapping for a model name.
// Returns ErrNotFound if the model is unmapped.
func (s *Store) GetMapping(model string) (*Mapping, error) {
	m := &Mapping{}
	err := s.reader.QueryRow(
		"SELECT model, provider FROM model_mappings WHERE model = ?", model,
	).Scan(&m.Model, &m.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: mapping %s: %w", model, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get mapping %s: %w", model, err)
	}
	return m, nil
}

// DeleteMapping removes the mapping for a model name.
// Returns ErrNotFound if the model is unmapped.
func (s *Store) DeleteMapping(model string) error {
	result, err := s.writer.Exec(
		"DELETE FROM model_mappings WHERE model = ?", model,
	)
	if err != nil {
		return fmt.Errorf("store: delete mapping %s: %w", model, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete mapping rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: mapping %s: %w", model, ErrNotFound)
	}
	return nil
}

// ListMappings returns all model mappings ordered by model name.
func (s *Store) ListMappings() ([]*Mapping, error) {
	rows, err := s.reader.Query(
		"SELECT model, provider FROM model_mappings ORDER BY model",
	)
	if err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	defer rows.Close()

	var results []*Mapping
	for rows.Next() {
		m := &Mapping{}
		if err := rows.Scan(&m.Model, &m.Provider); err != nil {
			return nil, fmt.Errorf("store: scan mapping row: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list mappings iteration: %w", err)
	}
	return results, nil
}
