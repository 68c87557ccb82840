package domain_test

import (
	"errors"
	"strings"
	"testing"

	"poll-quiz-service/internal/domain"
)

func TestValidateDefaultsAndPositions(t *testing.T) {
	raw := map[string]any{
		"type":    "lesson",
		"module":  "Biology",
		"subject": "Cells",
		"lesson":  "",
		"questions": []any{
			map[string]any{"question": "Q1", "a": "x", "b": "y", "c": "z", "answer": "a"},
			map[string]any{"question": "Q2", "a": "x", "b": "y", "c": "z", "answer": "b"},
			map[string]any{"question": "Q3", "a": "x", "b": "y", "c": "z", "answer": "C"},
		},
	}

	quiz, err := domain.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if quiz.Title != "Biology - Cells" {
		t.Fatalf("expected lesson title, got %q", quiz.Title)
	}
	if quiz.Mode != domain.ModeLesson {
		t.Fatalf("expected lesson mode, got %q", quiz.Mode)
	}
	for i, q := range quiz.Questions {
		if q.Correct+1 != i+1 {
			t.Fatalf("question %d: expected correct position %d, got %d", i, i+1, q.Correct+1)
		}
		if want := []string{"1", "2", "3"}[i]; q.SN != want {
			t.Fatalf("question %d: expected sn %s, got %s", i, want, q.SN)
		}
		if len(q.Options) != 3 {
			t.Fatalf("question %d: expected 3 options, got %d", i, len(q.Options))
		}
	}
}

func TestValidateCustomTitle(t *testing.T) {
	questions := []any{map[string]any{"question": "Q", "a": "1", "b": "2", "c": "3", "answer": "a"}}

	cases := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"module", map[string]any{"module": "Anatomy", "questions": questions}, "Anatomy"},
		{"placeholder", map[string]any{"questions": questions}, domain.UntitledQuiz},
		{"explicit", map[string]any{"title": "Mine", "module": "Anatomy", "questions": questions}, "Mine"},
		{"lesson empty", map[string]any{"type": "lesson", "questions": questions}, domain.UntitledQuiz},
	}
	for _, tc := range cases {
		quiz, err := domain.Validate(tc.raw)
		if err != nil {
			t.Fatalf("%s: validate: %v", tc.name, err)
		}
		if quiz.Title != tc.want {
			t.Fatalf("%s: expected title %q, got %q", tc.name, tc.want, quiz.Title)
		}
	}
}

func TestValidateKeepsGivenSerialAndSkipsMissingOptions(t *testing.T) {
	raw := map[string]any{
		"questions": []any{
			map[string]any{"sn": 7.0, "question": "Q", "a": "1", "b": "2", "c": "3", "e": "5", "answer": "e"},
		},
	}
	quiz, err := domain.Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	q := quiz.Questions[0]
	if q.SN != "7" {
		t.Fatalf("expected sn 7, got %q", q.SN)
	}
	if len(q.Options) != 4 || q.Correct != 3 || q.CorrectLetter() != "e" {
		t.Fatalf("expected e at position 3, got %+v", q)
	}
}

func TestValidateMissingOptionReportsExactlyThatField(t *testing.T) {
	raw := map[string]any{
		"questions": []any{
			map[string]any{"question": "Q1", "a": "x", "b": "y", "c": "z", "answer": "b"},
			map[string]any{"question": "Q2", "b": "y", "c": "z", "answer": "a"},
		},
	}
	_, err := domain.Validate(raw)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(ve.Fields) != 1 || ve.Fields[0].Path != "questions[1].a" {
		t.Fatalf("expected only questions[1].a, got %+v", ve.Fields)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	raw := map[string]any{
		"type":  "exam",
		"title": 12.0,
		"questions": []any{
			map[string]any{"question": "Q1", "a": "x", "b": 3.0, "answer": "f"},
			"not a question",
		},
	}
	_, err := domain.Validate(raw)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got := map[string]bool{}
	for _, f := range ve.Fields {
		got[f.Path] = true
	}
	for _, path := range []string{"type", "title", "questions[0].b", "questions[0].c", "questions[0].answer", "questions[1]"} {
		if !got[path] {
			t.Fatalf("expected error for %s, got %+v", path, ve.Fields)
		}
	}
	if len(ve.Fields) != 6 {
		t.Fatalf("expected 6 errors, got %+v", ve.Fields)
	}
}

func TestValidateRejectsEmptyQuestions(t *testing.T) {
	for _, raw := range []any{
		map[string]any{"questions": []any{}},
		map[string]any{"title": "x"},
		[]any{1.0},
	} {
		if _, err := domain.Validate(raw); err == nil {
			t.Fatalf("expected error for %v", raw)
		}
	}
}

func TestParseDefinitionSyntaxPosition(t *testing.T) {
	_, err := domain.ParseDefinition([]byte("{\n  \"questions\": [\n    oops\n  ]\n}"))
	var se *domain.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	if se.Line != 3 {
		t.Fatalf("expected line 3, got %d", se.Line)
	}
	if !strings.Contains(se.Error(), "line 3") {
		t.Fatalf("unexpected message %q", se.Error())
	}
}

func TestValidateReasonsAreTranslated(t *testing.T) {
	raw := map[string]any{
		"questions": []any{
			map[string]any{"question": "q", "a": "x", "b": "y", "answer": "z"},
		},
	}
	_, err := domain.Validate(raw)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	reasons := map[string]string{}
	for _, f := range ve.Fields {
		reasons[f.Path] = f.Reason
	}
	if got := reasons["questions[0].c"]; got != "c is a required field" {
		t.Fatalf("unexpected reason for missing option: %q", got)
	}
	if got := reasons["questions[0].answer"]; !strings.HasPrefix(got, "answer must be one of") {
		t.Fatalf("unexpected reason for bad answer: %q", got)
	}
}
