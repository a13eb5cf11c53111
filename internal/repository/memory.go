package repository

import (
	"context"
	"strings"
	"sync"
)

// CredentialMemory is an in-process CredentialStore, used when no database is configured.
type CredentialMemory struct {
	mu    sync.RWMutex
	token string
}

func NewCredentialMemory(token string) *CredentialMemory {
	return &CredentialMemory{token: strings.TrimSpace(token)}
}

var _ CredentialStore = (*CredentialMemory)(nil)

func (m *CredentialMemory) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *CredentialMemory) SetToken(ctx context.Context, token string) error {
	m.mu.Lock()
	m.token = strings.TrimSpace(token)
	m.mu.Unlock()
	return nil
}
