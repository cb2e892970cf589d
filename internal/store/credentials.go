package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Credential is the secret the gateway presents to a provider on
// outbound calls. One secret per provider; re-adding overwrites.
type Credential struct {
	Provider string
	Secret   string
}

// PutCredential stores or replaces the credential for a provider.
func (s *Store) PutCredential(provider, secret string) error {
	_, err := s.writer.Exec(
		"INSERT OR REPLACE INTO admin_credentials (provider, secret) VALUES (?, ?)",
		provider, secret,
	)
	if err != nil {
		return fmt.Errorf("store: put credential %s: %w", provider, err)
	}
	return nil
}

// GetCredential retrieves the credential for a provider.
// Returns ErrNotFound if no credential is stored.
func (s *Store) GetCredential(provider string) (*Credential, error) {
	c := &Credential{}
	err := s.reader.QueryRow(
		"SELECT provider, secret FROM admin_credentials WHERE provider = ?",
		provider,
	).Scan(&c.Provider, &c.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: credential %s: %w", provider, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get credential %s: %w", provider, err)
	}
	return c, nil
}

// DeleteCredential removes the credential for a provider.
// Returns ErrNotFound if no credential was stored.
func (s *Store) DeleteCredential(provider string) error {
	result, err := s.writer.Exec(
		"DELETE FROM admin_credentials WHERE provider = ?", provider,
	)
	if err != nil {
		return fmt.Errorf("store: delete credential %s: %w", provider, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete credential rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: credential %s: %w", provider, ErrNotFound)
	}
	return nil
}

// ListCredentials returns all stored credentials ordered by provider name.
func (s *Store) ListCredentials() ([]*Credential, error) {
	rows, err := s.reader.Query(
		"SELECT provider, secret FROM admin_credentials ORDER BY provider",
	)
	if err != nil {
		return nil, fmt.Errorf("store: list credentials: %w", err)
	}
	defer rows.Close()

	var results []*Credential
	for rows.Next() {
		c := &Credential{}
		if err := rows.Scan(&c.Provider, &c.Secret); err != nil {
			return nil, fmt.Errorf("store: scan credential row: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list credentials iteration: %w", err)
	}
	return results, nil
}
