// Package tokenstore holds the single current credential of the client.
package tokenstore

import (
	"context"
	"sync"

	"tasklist/internal/domain"
)

// Store is the single source of truth for the current credential.
// Get never fails; implementations log storage problems and report absence.
type Store interface {
	Get(ctx context.Context) (domain.Credential, bool)
	Set(ctx context.Context, cred domain.Credential) error
	Clear(ctx context.Context) error
}

// Memory keeps the credential for the lifetime of the process.
type Memory struct {
	mu   sync.RWMutex
	cred domain.Credential
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(_ context.Context) (domain.Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred, !m.cred.IsZero()
}

func (m *Memory) Set(_ context.Context, cred domain.Credential) error {
	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.cred = domain.Credential{}
	m.mu.Unlock()
	return nil
}
