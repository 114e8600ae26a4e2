package chat

import (
	"errors"
	"sync"

	"github.com/zhouzirui/chargate/internal/model/chat"
)

// ErrDuplicateSessionID is returned when an id was already issued, even if
// its session has since been removed.
var ErrDuplicateSessionID = errors.New("session id already issued")

// Store keeps the live session table.
type Store interface {
	Put(session chat.Session) error
	Get(id string) (chat.Session, bool)
	Remove(id string) (chat.Session, bool)
	List() []chat.Session
	Clear() []chat.Session
}

// MemoryStore implements Store in process memory. List returns sessions in
// insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	order    []string
	issued   map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		issued:   make(map[string]struct{}),
	}
}

// Put inserts a session under an id that has never been used before.
func (s *MemoryStore) Put(session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issued[session.ID]; ok {
		return ErrDuplicateSessionID
	}
	s.issued[session.ID] = struct{}{}
	s.sessions[session.ID] = session
	s.order = append(s.order, session.ID)
	return nil
}

// Get looks up a live session.
func (s *MemoryStore) Get(id string) (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Remove deletes and returns a live session.
func (s *MemoryStore) Remove(id string) (chat.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, false
	}
	delete(s.sessions, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return session, true
}

// List returns a snapshot of every live session.
func (s *MemoryStore) List() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id])
	}
	return out
}

// Clear empties the table and returns what it held. Issued ids stay reserved.
func (s *MemoryStore) Clear() []chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id])
	}
	s.sessions = make(map[string]chat.Session)
	s.order = nil
	return out
}
