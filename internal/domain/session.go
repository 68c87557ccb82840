package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SessionState is the progress of one quiz attempt.
type SessionState int

const (
	StateCreated SessionState = iota
	StateInProgress
	StateComplete
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// Session is one user's attempt at a quiz. Answers is parallel to Quiz.Questions;
// an empty string marks an unanswered slot.
type Session struct {
	ID        string    `json:"id"`
	Key       int64     `json:"key"`
	Quiz      Quiz      `json:"quiz"`
	Answers   []string  `json:"answers"`
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession starts a fresh attempt with every slot unanswered.
func NewSession(key int64, quiz Quiz, now time.Time) Session {
	return Session{
		ID:        uuid.NewString(),
		Key:       key,
		Quiz:      quiz,
		Answers:   make([]string, len(quiz.Questions)),
		Total:     len(quiz.Questions),
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares the immutable quiz but not the answer slots.
func (s Session) Clone() Session {
	out := s
	out.Answers = append([]string(nil), s.Answers...)
	return out
}

// RecordResult describes the effect of one Record call.
type RecordResult struct {
	Previous  string
	Changed   bool
	Delta     int
	Completed bool
}

// Record stores letter in slot index. The score moves by
// correct(new) - correct(old), so re-delivering an answer never counts twice.
func (s *Session) Record(index int, letter string) (RecordResult, error) {
	if index < 0 || index >= len(s.Answers) || index >= len(s.Quiz.Questions) {
		return RecordResult{}, fmt.Errorf("%w: index %d", ErrQuestionNotFound, index)
	}
	q := s.Quiz.Questions[index]
	if q.PositionOf(letter) < 0 {
		return RecordResult{}, fmt.Errorf("%w: %q", ErrOptionNotFound, letter)
	}

	wasComplete := s.Complete()
	prev := s.Answers[index]
	res := RecordResult{Previous: prev}
	if prev == letter {
		return res, nil
	}

	correct := q.CorrectLetter()
	res.Delta = boolToInt(letter == correct) - boolToInt(prev == correct)
	res.Changed = true
	s.Answers[index] = letter
	s.Score += res.Delta
	res.Completed = !wasComplete && s.Complete()
	return res, nil
}

// Answered counts filled slots.
func (s Session) Answered() int {
	n := 0
	for _, a := range s.Answers {
		if a != "" {
			n++
		}
	}
	return n
}

// Complete reports whether every question has an answer.
func (s Session) Complete() bool {
	return s.Total > 0 && s.Answered() == s.Total
}

// State derives the lifecycle state from the answer slots.
func (s Session) State() SessionState {
	switch n := s.Answered(); {
	case n == 0:
		return StateCreated
	case n < s.Total:
		return StateInProgress
	default:
		return StateComplete
	}
}

// Recount derives the score from the slots instead of the running counter.
func (s Session) Recount() int {
	score := 0
	for i, a := range s.Answers {
		if i < len(s.Quiz.Questions) && a != "" && a == s.Quiz.Questions[i].CorrectLetter() {
			score++
		}
	}
	return score
}

// Percentage is score/total*100 rounded to one decimal place.
func (s Session) Percentage() float64 {
	if s.Total == 0 {
		return 0
	}
	return math.Round(float64(s.Score)/float64(s.Total)*1000) / 10
}

// ScoreText formats the score the way it is shown to users and in reports.
func (s Session) ScoreText() string {
	return fmt.Sprintf("%d/%d (%.1f%%)", s.Score, s.Total, s.Percentage())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
