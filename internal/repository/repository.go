package repository

import (
	"context"
	"database/sql"
)

// CredentialStore holds the bearer token the transport presents to the backend.
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
}

type Repository struct {
	Credentials CredentialStore
}

// NewRepository wires the SQLite-backed stores. A nil db falls back to memory.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return &Repository{Credentials: NewCredentialMemory("")}
	}
	return &Repository{
		Credentials: NewCredentialSQLite(db, DefaultCredential),
	}
}
