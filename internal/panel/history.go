package panel

import (
	"context"
	"sync"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
)

// HistoryStore persists append-only chat threads.
type HistoryStore interface {
	CreateSession(ctx context.Context, id string) error
	SessionExists(ctx context.Context, id string) (bool, error)
	AppendMessage(ctx context.Context, sessionID string, msg domain.ChatMessage) error
	Messages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	mu       sync.Mutex
	sessions map[string][]domain.ChatMessage
}

// NewMemoryHistory creates an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{sessions: make(map[string][]domain.ChatMessage)}
}

func (m *MemoryHistory) CreateSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		m.sessions[id] = nil
	}
	return nil
}

func (m *MemoryHistory) SessionExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *MemoryHistory) AppendMessage(_ context.Context, sessionID string, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	m.sessions[sessionID] = append(msgs, msg)
	return nil
}

func (m *MemoryHistory) Messages(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return append([]domain.ChatMessage(nil), msgs...), nil
}
