package app

import (
	"context"

	"poll-quiz-service/internal/domain"
)

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, etc).
// Update must be atomic per key; different keys must not block each other.
type SessionRepository interface {
	// Create starts a new session for key, replacing any previous one.
	Create(ctx context.Context, key int64, quiz domain.Quiz) (domain.Session, error)
	Get(ctx context.Context, key int64) (domain.Session, error)
	// Update applies mutate to the current session and persists the result.
	// A mutate error aborts the update and is returned unchanged.
	Update(ctx context.Context, key int64, mutate func(*domain.Session) error) (domain.Session, error)
	// Restore stores sess only if nothing readable is stored for its key and
	// returns whatever the store holds afterwards.
	Restore(ctx context.Context, sess domain.Session) (domain.Session, error)
	// Remove deletes the session for key. A non-empty sessionID restricts the
	// removal to that attempt.
	Remove(ctx context.Context, key int64, sessionID string) error
}

// PollTracker maps dispatched poll ids back to the question they carry.
type PollTracker interface {
	Register(ctx context.Context, pollID string, ref domain.PollRef) error
	// Resolve returns domain.ErrUnknownPoll for ids never registered or already removed.
	Resolve(ctx context.Context, pollID string) (domain.PollRef, error)
	// RemoveAll drops every entry of key. A non-empty sessionID restricts the
	// removal to that attempt.
	RemoveAll(ctx context.Context, key int64, sessionID string) error
}

// Journal is the append-only attempt log that a lost session is rebuilt from.
type Journal interface {
	Begin(ctx context.Context, sess domain.Session) error
	Append(ctx context.Context, ref domain.PollRef, letter string) error
	// Load replays an unfinished attempt; domain.ErrSessionNotFound when there is none.
	Load(ctx context.Context, ref domain.PollRef) (domain.Session, error)
	Finish(ctx context.Context, sessionID string) error
}

// Messenger is the outbound side of a chat transport.
type Messenger interface {
	// SendPoll publishes one question and returns the transport's opaque poll id.
	SendPoll(ctx context.Context, chatID int64, poll domain.PollRequest) (string, error)
	SendText(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, doc domain.Document, caption string) error
}

// ReportRenderer turns a report payload into a document.
type ReportRenderer interface {
	Render(ctx context.Context, report domain.Report) (domain.Document, error)
}

// Pacer spaces out outbound polls.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NopJournal keeps nothing, so recovery always fails.
type NopJournal struct{}

func (NopJournal) Begin(context.Context, domain.Session) error          { return nil }
func (NopJournal) Append(context.Context, domain.PollRef, string) error { return nil }
func (NopJournal) Finish(context.Context, string) error                 { return nil }

func (NopJournal) Load(context.Context, domain.PollRef) (domain.Session, error) {
	return domain.Session{}, domain.ErrSessionNotFound
}
