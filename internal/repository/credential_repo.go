package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCredential is the row used for the backend bearer token.
const DefaultCredential = "backend"

// CredentialSQLite keeps backend credentials in the credentials table.
type CredentialSQLite struct {
	db   *sql.DB
	name string
}

// NewCredentialSQLite returns a store bound to one named credential row.
func NewCredentialSQLite(db *sql.DB, name string) *CredentialSQLite {
	if strings.TrimSpace(name) == "" {
		name = DefaultCredential
	}
	return &CredentialSQLite{db: db, name: name}
}

// Ensure implementation of CredentialStore interface at compile time.
var _ CredentialStore = (*CredentialSQLite)(nil)

const (
	upsertCredentialSQL = `
		INSERT INTO credentials (name, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			token=excluded.token,
			updated_at=excluded.updated_at
	`
	selectCredentialSQL = `SELECT token FROM credentials WHERE name = ?`
	deleteCredentialSQL = `DELETE FROM credentials WHERE name = ?`
)

// Token returns the stored token, or "" when none is stored.
func (r *CredentialSQLite) Token(ctx context.Context) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, selectCredentialSQL, r.name).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select credential %q: %w", r.name, err)
	}
	return token, nil
}

// SetToken replaces the stored token. An empty token deletes the row.
func (r *CredentialSQLite) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		if _, err := r.db.ExecContext(ctx, deleteCredentialSQL, r.name); err != nil {
			return fmt.Errorf("delete credential %q: %w", r.name, err)
		}
		return nil
	}
	if _, err := r.db.ExecContext(ctx, upsertCredentialSQL, r.name, token, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert credential %q: %w", r.name, err)
	}
	return nil
}
