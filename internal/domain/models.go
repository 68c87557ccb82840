package domain

import "fmt"

// Mode selects how a quiz is classified and titled.
type Mode string

const (
	ModeLesson Mode = "lesson"
	ModeCustom Mode = "custom"
)

// UntitledQuiz is used when a definition gives nothing to derive a title from.
const UntitledQuiz = "Untitled Quiz"

// optionLetters are the letters a definition may use for options, in display order.
var optionLetters = [...]string{"a", "b", "c", "d", "e", "f", "g"}

// Option is one lettered answer choice.
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Question models an MCQ question with exactly one correct option.
// Correct is the position of the right answer within Options.
type Question struct {
	SN      string   `json:"sn"`
	Source  string   `json:"source,omitempty"`
	Text    string   `json:"question"`
	Options []Option `json:"options"`
	Correct int      `json:"correct"`
}

// CorrectLetter returns the letter of the right answer.
func (q Question) CorrectLetter() string {
	return q.Options[q.Correct].Letter
}

// LetterAt maps a selected list position to its option letter.
func (q Question) LetterAt(pos int) (string, error) {
	if pos < 0 || pos >= len(q.Options) {
		return "", fmt.Errorf("%w: position %d of %d", ErrOptionNotFound, pos, len(q.Options))
	}
	return q.Options[pos].Letter, nil
}

// PositionOf returns the list position of the option with the given letter, or -1.
func (q Question) PositionOf(letter string) int {
	for i, opt := range q.Options {
		if opt.Letter == letter {
			return i
		}
	}
	return -1
}

// OptionTexts returns the option texts in display order.
func (q Question) OptionTexts() []string {
	texts := make([]string, len(q.Options))
	for i, opt := range q.Options {
		texts[i] = opt.Text
	}
	return texts
}

// Quiz is a validated, immutable quiz definition.
type Quiz struct {
	Mode      Mode       `json:"type"`
	Title     string     `json:"title"`
	Module    string     `json:"module,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Lesson    string     `json:"lesson,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Questions []Question `json:"questions"`
}

// PollRef ties a dispatched poll back to the question it carries.
type PollRef struct {
	SessionKey    int64  `json:"sessionKey"`
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
}

// AnswerEvent is an inbound poll answer. Only the first option id counts.
type AnswerEvent struct {
	PollID    string
	UserID    int64
	OptionIDs []int
}

// PollRequest is what the transport needs to publish one question.
type PollRequest struct {
	Question      string
	Options       []string
	CorrectOption int
	Quiz          bool
	Anonymous     bool
}

// NewPollRequest builds the dispatch payload for question index of total.
func NewPollRequest(q Question, index, total int, anonymous bool) PollRequest {
	return PollRequest{
		Question:      fmt.Sprintf("Question %d/%d\n\n%s", index+1, total, q.Text),
		Options:       q.OptionTexts(),
		CorrectOption: q.Correct,
		Quiz:          true,
		Anonymous:     anonymous,
	}
}

// Document is a rendered file handed back to the transport.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}
