package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"poll-quiz-service/internal/app"
	"poll-quiz-service/internal/domain"
	"poll-quiz-service/internal/infra/memory"
	"poll-quiz-service/internal/metrics"
)

type fakeMessenger struct {
	mu       sync.Mutex
	next     int
	failPoll int
	polls    []string
	requests []domain.PollRequest
	texts    []string
	docs     []domain.Document
}

func (m *fakeMessenger) SendPoll(_ context.Context, _ int64, poll domain.PollRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	if m.failPoll == m.next {
		return "", errors.New("network down")
	}
	id := fmt.Sprintf("poll-%d", m.next)
	m.polls = append(m.polls, id)
	m.requests = append(m.requests, poll)
	return id, nil
}

func (m *fakeMessenger) SendText(_ context.Context, _ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) SendDocument(_ context.Context, _ int64, doc domain.Document, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

func (m *fakeMessenger) pollIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.polls...)
}

func (m *fakeMessenger) countTexts(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.texts {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

type fakeRenderer struct {
	err     error
	calls   atomic.Int32
	mu      sync.Mutex
	reports []domain.Report
}

func (r *fakeRenderer) Render(_ context.Context, rep domain.Report) (domain.Document, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
	if r.err != nil {
		return domain.Document{}, r.err
	}
	return domain.Document{Name: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

// memJournal keeps attempts in memory and replays them like the Postgres journal.
type memJournal struct {
	mu       sync.Mutex
	attempts map[string]domain.Session
	answers  map[string][]struct {
		index  int
		letter string
	}
	loads atomic.Int32
}

func newMemJournal() *memJournal {
	return &memJournal{
		attempts: make(map[string]domain.Session),
		answers: make(map[string][]struct {
			index  int
			letter string
		}),
	}
}

func (j *memJournal) Begin(_ context.Context, sess domain.Session) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts[sess.ID] = sess.Clone()
	return nil
}

func (j *memJournal) Append(_ context.Context, ref domain.PollRef, letter string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.answers[ref.SessionID] = append(j.answers[ref.SessionID], struct {
		index  int
		letter string
	}{ref.QuestionIndex, letter})
	return nil
}

func (j *memJournal) Load(_ context.Context, ref domain.PollRef) (domain.Session, error) {
	j.loads.Add(1)
	j.mu.Lock()
	defer j.mu.Unlock()
	sess, ok := j.attempts[ref.SessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	sess = sess.Clone()
	for _, a := range j.answers[ref.SessionID] {
		if _, err := sess.Record(a.index, a.letter); err != nil {
			return domain.Session{}, err
		}
	}
	return sess, nil
}

func (j *memJournal) Finish(_ context.Context, sessionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.attempts, sessionID)
	delete(j.answers, sessionID)
	return nil
}

type harness struct {
	service   *app.QuizService
	sessions  *memory.SessionStore
	polls     *memory.PollTracker
	messenger *fakeMessenger
	renderer  *fakeRenderer
	journal   app.Journal
}

func newHarness(t *testing.T, journal app.Journal) *harness {
	t.Helper()
	h := &harness{
		sessions:  memory.NewSessionStore(),
		polls:     memory.NewPollTracker(),
		messenger: &fakeMessenger{},
		renderer:  &fakeRenderer{},
		journal:   journal,
	}
	h.service = app.NewQuizService(app.Dependencies{
		Sessions:  h.sessions,
		Polls:     h.polls,
		Journal:   journal,
		Messenger: h.messenger,
		Renderer:  h.renderer,
		Anonymous: true,
		Metrics:   metrics.New(nil),
		Logger:    zerolog.Nop(),
	})
	return h
}

func (h *harness) start(t *testing.T, key int64, raw any) domain.Session {
	t.Helper()
	sess, err := h.service.StartQuiz(context.Background(), key, raw)
	if err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	return sess
}

func (h *harness) answer(pollID string, key int64, option int) app.Outcome {
	return h.service.HandleAnswer(context.Background(), domain.AnswerEvent{PollID: pollID, UserID: key, OptionIDs: []int{option}})
}

// definition builds a custom quiz whose questions have options a, b, c and
// the given answer letters.
func definition(answers ...string) map[string]any {
	questions := make([]any, len(answers))
	for i, a := range answers {
		questions[i] = map[string]any{
			"question": fmt.Sprintf("question %d", i+1),
			"a":        "first",
			"b":        "second",
			"c":        "third",
			"answer":   a,
		}
	}
	return map[string]any{"type": "custom", "title": "Test Quiz", "questions": questions}
}
