package convstore

import (
	"context"
	"sync"
)

// memoryStore is an in-memory fallback used in tests and when no CHAT_DSN
// is configured. Each session has its own mutex-guarded slice so writes to
// distinct sessions never contend.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
}

type sessionLog struct {
	mu   sync.Mutex
	msgs []Message
}

// NewMemory constructs an in-process conversation store.
func NewMemory() Store {
	return &memoryStore{sessions: make(map[string]*sessionLog)}
}

func (s *memoryStore) logFor(sessionID string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.sessions[sessionID]
	if !ok {
		log = &sessionLog{}
		s.sessions[sessionID] = log
	}
	return log
}

func (s *memoryStore) Get(_ context.Context, sessionID string, limit int) ([]Message, error) {
	log := s.logFor(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	msgs := log.msgs
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memoryStore) Append(_ context.Context, sessionID string, msg Message) error {
	log := s.logFor(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	log.msgs = append(log.msgs, msg)
	return nil
}
