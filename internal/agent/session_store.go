package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/sprintbot/internal/domain"
)

// SessionStore keeps conversation history in memory. Nothing is persisted.
type SessionStore interface {
	// GetOrCreate finds an existing session by key or creates a new one.
	GetOrCreate(key domain.SessionKey) *domain.Session

	// Get returns a copy of the session, or nil if not found.
	Get(id string) *domain.Session

	// Append adds a message to a session.
	Append(sessionID string, msg domain.Message)

	// History returns a copy of the session's messages.
	History(sessionID string) []domain.Message

	// List returns all session IDs, sorted.
	List() []string
}

// MemorySessionStore is an in-memory SessionStore. Each session keeps at most
// maxMessages messages; older ones are dropped first.
type MemorySessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]*domain.Session // id → session
	byKey       map[string]string          // key string → session id
	maxMessages int
}

// NewMemorySessionStore creates an in-memory session store. maxMessages <= 0
// keeps every message.
func NewMemorySessionStore(maxMessages int) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:    make(map[string]*domain.Session),
		byKey:       make(map[string]string),
		maxMessages: maxMessages,
	}
}

func (s *MemorySessionStore) GetOrCreate(key domain.SessionKey) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyStr := key.String()
	if id, ok := s.byKey[keyStr]; ok {
		if sess, ok := s.sessions[id]; ok {
			return snapshot(sess)
		}
	}

	now := time.Now()
	sess := &domain.Session{
		ID:        uuid.New().String(),
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	s.byKey[keyStr] = sess.ID
	return snapshot(sess)
}

func (s *MemorySessionStore) Get(id string) *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return snapshot(sess)
}

func (s *MemorySessionStore) Append(sessionID string, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	sess.Messages = append(sess.Messages, msg)
	if s.maxMessages > 0 && len(sess.Messages) > s.maxMessages {
		sess.Messages = append([]domain.Message(nil), sess.Messages[len(sess.Messages)-s.maxMessages:]...)
	}
	sess.UpdatedAt = time.Now()
}

func (s *MemorySessionStore) History(sessionID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return append([]domain.Message(nil), sess.Messages...)
}

func (s *MemorySessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func snapshot(sess *domain.Session) *domain.Session {
	cp := *sess
	cp.Messages = append([]domain.Message(nil), sess.Messages...)
	return &cp
}
