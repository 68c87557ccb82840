package memory

import (
	"context"
	"sync"
	"time"

	"poll-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The map lock only guards lookups; each session has its own lock, so
// updates for different users never wait on each other.
type SessionStore struct {
	mu      sync.Mutex
	entries map[int64]*entry
	now     func() time.Time
}

type entry struct {
	mu   sync.Mutex
	sess domain.Session
	// dead is set once the entry was replaced or removed; a caller that
	// fetched it earlier must not write through it.
	dead bool
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		entries: make(map[int64]*entry),
		now:     time.Now,
	}
}

func (s *SessionStore) Create(_ context.Context, key int64, quiz domain.Quiz) (domain.Session, error) {
	sess := domain.NewSession(key, quiz, s.now())
	fresh := &entry{sess: sess}

	s.mu.Lock()
	old := s.entries[key]
	s.entries[key] = fresh
	s.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.dead = true
		old.mu.Unlock()
	}
	return sess.Clone(), nil
}

func (s *SessionStore) Get(_ context.Context, key int64) (domain.Session, error) {
	e := s.lookup(key)
	if e == nil {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return e.sess.Clone(), nil
}

func (s *SessionStore) Update(_ context.Context, key int64, mutate func(*domain.Session) error) (domain.Session, error) {
	e := s.lookup(key)
	if e == nil {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	// Mutate a copy so a failing mutator leaves no partial change behind.
	next := e.sess.Clone()
	if err := mutate(&next); err != nil {
		return domain.Session{}, err
	}
	e.sess = next
	return next.Clone(), nil
}

func (s *SessionStore) Restore(_ context.Context, sess domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[sess.Key]; ok {
		e.mu.Lock()
		alive, current := !e.dead, e.sess.Clone()
		e.mu.Unlock()
		if alive {
			return current, nil
		}
	}
	s.entries[sess.Key] = &entry{sess: sess.Clone()}
	return sess.Clone(), nil
}

func (s *SessionStore) Remove(_ context.Context, key int64, sessionID string) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	e.mu.Lock()
	if sessionID != "" && e.sess.ID != sessionID {
		e.mu.Unlock()
		s.mu.Unlock()
		return nil
	}
	e.dead = true
	e.mu.Unlock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) lookup(key int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key]
}
