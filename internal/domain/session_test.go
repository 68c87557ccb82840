package domain_test

import (
	"errors"
	"testing"
	"time"

	"poll-quiz-service/internal/domain"
)

func twoQuestionQuiz() domain.Quiz {
	opts := []domain.Option{{Letter: "a", Text: "A"}, {Letter: "b", Text: "B"}, {Letter: "c", Text: "C"}}
	return domain.Quiz{
		Mode:  domain.ModeCustom,
		Title: "Two",
		Questions: []domain.Question{
			{SN: "1", Text: "first", Options: opts, Correct: 1},
			{SN: "2", Text: "second", Options: opts, Correct: 0},
		},
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	sess := domain.NewSession(42, twoQuestionQuiz(), time.Unix(0, 0))
	if sess.State() != domain.StateCreated {
		t.Fatalf("expected created, got %s", sess.State())
	}

	if _, err := sess.Record(0, "b"); err != nil {
		t.Fatalf("record: %v", err)
	}
	res, err := sess.Record(0, "b")
	if err != nil {
		t.Fatalf("record duplicate: %v", err)
	}
	if res.Changed || sess.Score != 1 {
		t.Fatalf("duplicate must not change score, got %+v score=%d", res, sess.Score)
	}
	if sess.State() != domain.StateInProgress {
		t.Fatalf("expected in progress, got %s", sess.State())
	}
}

func TestRecordRecomputesDeltaOnOverwrite(t *testing.T) {
	sess := domain.NewSession(42, twoQuestionQuiz(), time.Unix(0, 0))

	steps := []struct {
		letter string
		score  int
	}{
		{"c", 0}, // wrong
		{"b", 1}, // wrong -> right
		{"a", 0}, // right -> wrong
		{"b", 1},
	}
	for _, step := range steps {
		if _, err := sess.Record(0, step.letter); err != nil {
			t.Fatalf("record %s: %v", step.letter, err)
		}
		if sess.Score != step.score || sess.Recount() != step.score {
			t.Fatalf("after %s expected score %d, got %d (recount %d)", step.letter, step.score, sess.Score, sess.Recount())
		}
	}
}

func TestRecordSignalsCompletionOnce(t *testing.T) {
	sess := domain.NewSession(42, twoQuestionQuiz(), time.Unix(0, 0))
	res, _ := sess.Record(1, "a")
	if res.Completed {
		t.Fatalf("completed too early")
	}
	res, _ = sess.Record(0, "b")
	if !res.Completed || !sess.Complete() {
		t.Fatalf("expected completion on last slot")
	}
	res, _ = sess.Record(0, "c")
	if res.Completed {
		t.Fatalf("completion must be reported once")
	}
	if got := sess.ScoreText(); got != "1/2 (50.0%)" {
		t.Fatalf("unexpected score text %q", got)
	}
}

func TestRecordRejectsBadInput(t *testing.T) {
	sess := domain.NewSession(42, twoQuestionQuiz(), time.Unix(0, 0))
	if _, err := sess.Record(5, "a"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question error, got %v", err)
	}
	if _, err := sess.Record(0, "g"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option error, got %v", err)
	}
}

func TestCloneDoesNotShareAnswers(t *testing.T) {
	sess := domain.NewSession(42, twoQuestionQuiz(), time.Unix(0, 0))
	cp := sess.Clone()
	_, _ = cp.Record(0, "b")
	if sess.Answers[0] != "" {
		t.Fatalf("clone mutated the original")
	}
}
