package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIKey is a client-facing key the gateway accepts on inbound calls.
// Deactivation is a soft delete: the record is retained and listable.
type APIKey struct {
	ID          int64
	Key         string
	Description string
	Active      bool
	CreatedAt   string
}

// CreateAPIKey inserts a new key, active by default, and returns the
// record with its store-assigned id. Returns ErrConflict if the key
// string already exists.
func (s *Store) CreateAPIKey(key, description string) (*APIKey, error) {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	result, err := s.writer.Exec(
		"INSERT INTO user_api_keys (api_key, description, is_active, created_at) VALUES (?, ?, 1, ?)",
		key, description, createdAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("store: api key: %w", ErrConflict)
		}
		return nil, fmt.Errorf("store: create api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create api key id: %w", err)
	}

	return &APIKey{
		ID:          id,
		Key:         key,
		Description: description,
		Active:      true,
		CreatedAt:   createdAt,
	}, nil
}

// GetAPIKey retrieves a key record by id. Returns ErrNotFound if absent.
func (s *Store) GetAPIKey(id int64) (*APIKey, error) {
	k := &APIKey{}
	var activeInt int

	err := s.reader.QueryRow(
		"SELECT id, api_key, description, is_active, created_at FROM user_api_keys WHERE id = ?",
		id,
	).Scan(&k.ID, &k.Key, &k.Description, &activeInt, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: api key %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get api key %d: %w", id, err)
	}

	k.Active = activeInt != 0
	return k, nil
}

// DeleteAPIKey removes a key record by its key string (hard delete).
// Returns ErrNotFound if absent. The id is never reused.
func (s *Store) DeleteAPIKey(key string) error {
	result, err := s.writer.Exec("DELETE FROM user_api_keys WHERE api_key = ?", key)
	if err != nil {
		return fmt.Errorf("store: delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete api key rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: api key: %w", ErrNotFound)
	}
	return nil
}

// SetAPIKeyActive flips the active flag on a key record by id.
// Returns ErrNotFound if absent.
func (s *Store) SetAPIKeyActive(id int64, active bool) error {
	activeInt := 0
	if active {
		activeInt = 1
	}

	result, err := s.writer.Exec(
		"UPDATE user_api_keys SET is_active = ? WHERE id = ?", activeInt, id,
	)
	if err != nil {
		return fmt.Errorf("store: set api key %d active: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set api key active rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: api key %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListAPIKeys returns all key records, including inactive ones, ordered by id.
func (s *Store) ListAPIKeys() ([]*APIKey, error) {
	rows, err := s.reader.Query(
		"SELECT id, api_key, description, is_active, created_at FROM user_api_keys ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("store: list api keys: %w", err)
	}
	defer rows.Close()

	var results []*APIKey
	for rows.Next() {
		k := &APIKey{}
		var activeInt int
		if err := rows.Scan(&k.ID, &k.Key, &k.Description, &activeInt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan api key row: %w", err)
		}
		k.Active = activeInt != 0
		results = append(results, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list api keys iteration: %w", err)
	}
	return results, nil
}
