package memory

import (
	"context"
	"sync"

	"poll-quiz-service/internal/domain"
)

// PollTracker is an in-memory implementation of app.PollTracker.
type PollTracker struct {
	mu        sync.RWMutex
	polls     map[string]domain.PollRef
	bySession map[int64]map[string]struct{}
}

func NewPollTracker() *PollTracker {
	return &PollTracker{
		polls:     make(map[string]domain.PollRef),
		bySession: make(map[int64]map[string]struct{}),
	}
}

func (t *PollTracker) Register(_ context.Context, pollID string, ref domain.PollRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls[pollID] = ref
	ids, ok := t.bySession[ref.SessionKey]
	if !ok {
		ids = make(map[string]struct{})
		t.bySession[ref.SessionKey] = ids
	}
	ids[pollID] = struct{}{}
	return nil
}

func (t *PollTracker) Resolve(_ context.Context, pollID string) (domain.PollRef, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.polls[pollID]
	if !ok {
		return domain.PollRef{}, domain.ErrUnknownPoll
	}
	return ref, nil
}

func (t *PollTracker) RemoveAll(_ context.Context, key int64, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.bySession[key]
	for id := range ids {
		if sessionID != "" && t.polls[id].SessionID != sessionID {
			continue
		}
		delete(t.polls, id)
		delete(ids, id)
	}
	if len(ids) == 0 {
		delete(t.bySession, key)
	}
	return nil
}

// Len reports how many polls are tracked.
func (t *PollTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.polls)
}
