// Package session owns per-conversation transcript state.
//
// A session moves from uninitialized to active when it is opened with a
// system prompt, and from active to closed when the assistant ends the
// conversation. Closed sessions accept no further turns. Every mutation is
// persisted as a full snapshot before the call returns.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/careerbot/internal/domain"
	"github.com/ashureev/careerbot/internal/identity"
	"github.com/ashureev/careerbot/internal/store"
)

var (
	// ErrSessionClosed is returned when a turn is appended to a closed session.
	ErrSessionClosed = errors.New("conversation is closed")
	// ErrNotFound is returned for operations on an uninitialized session.
	ErrNotFound = errors.New("session not found")
)

// Manager keeps all sessions in memory and persists them to a store.
//
// Concurrent requests for different keys are safe. Requests racing on the
// same key are serialized by the manager but interleave their turns.
type Manager struct {
	repo     store.Repository
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

// NewManager loads the persisted conversations snapshot.
func NewManager(ctx context.Context, repo store.Repository) (*Manager, error) {
	sessions := make(map[string]*domain.Session)
	if _, err := store.LoadJSON(ctx, repo, store.Conversations, &sessions); err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	for key, s := range sessions {
		if s == nil {
			delete(sessions, key)
			continue
		}
		s.Key = key
	}
	slog.Info("Conversations loaded", "count", len(sessions))

	return &Manager{
		repo:     repo,
		sessions: sessions,
		now:      time.Now,
	}, nil
}

// Get returns a copy of the session stored under key.
func (m *Manager) Get(key string) (*domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// LastAssistant returns the most recent assistant turn of the session under key.
func (m *Manager) LastAssistant(key string) (domain.Turn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return domain.Turn{}, false
	}
	return s.LastAssistant()
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Open returns the session for key, creating it with a single system turn
// when it does not exist yet. created reports whether this call created it.
func (m *Manager) Open(ctx context.Context, id identity.Identity, systemPrompt string) (sess *domain.Session, created bool, err error) {
	key := id.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s.Clone(), false, nil
	}

	now := m.now()
	s := &domain.Session{
		Key:       key,
		ChannelID: id.ChannelID,
		UserID:    id.UserID,
		Turns:     []domain.Turn{{Role: domain.RoleSystem, Content: systemPrompt}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[key] = s
	if err := m.persistLocked(ctx); err != nil {
		delete(m.sessions, key)
		return nil, false, err
	}
	return s.Clone(), true, nil
}

// Append adds turns to an active session and persists the store.
func (m *Manager) Append(ctx context.Context, key string, turns ...domain.Turn) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Closed {
		return nil, ErrSessionClosed
	}

	prevLen, prevUpdated := len(s.Turns), s.UpdatedAt
	s.Turns = append(s.Turns, turns...)
	s.UpdatedAt = m.now()
	if err := m.persistLocked(ctx); err != nil {
		s.Turns = s.Turns[:prevLen]
		s.UpdatedAt = prevUpdated
		return nil, err
	}
	return s.Clone(), nil
}

// Close records the closing assistant message and marks the session closed.
func (m *Manager) Close(ctx context.Context, key, closingMessage string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Closed {
		return nil, ErrSessionClosed
	}

	prevLen, prevUpdated := len(s.Turns), s.UpdatedAt
	s.Turns = append(s.Turns, domain.Turn{Role: domain.RoleAssistant, Content: closingMessage})
	s.Closed = true
	s.UpdatedAt = m.now()
	if err := m.persistLocked(ctx); err != nil {
		s.Turns = s.Turns[:prevLen]
		s.Closed = false
		s.UpdatedAt = prevUpdated
		return nil, err
	}
	slog.Info("Conversation closed", "session_key", key)
	return s.Clone(), nil
}

// ClearAll removes every session.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.sessions
	m.sessions = make(map[string]*domain.Session)
	if err := m.persistLocked(ctx); err != nil {
		m.sessions = prev
		return err
	}
	return nil
}

// ClearChannel removes every session on channelID and returns how many were removed.
func (m *Manager) ClearChannel(ctx context.Context, channelID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[string]*domain.Session)
	for key, s := range m.sessions {
		if s.ChannelID == channelID {
			removed[key] = s
			delete(m.sessions, key)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := m.persistLocked(ctx); err != nil {
		for key, s := range removed {
			m.sessions[key] = s
		}
		return 0, err
	}
	return len(removed), nil
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := store.SaveJSON(ctx, m.repo, store.Conversations, m.sessions); err != nil {
		return fmt.Errorf("persist conversations: %w", err)
	}
	return nil
}
