package app

import (
	"errors"
	"fmt"
	"strings"

	"poll-quiz-service/internal/domain"
)

// User-facing texts sent at each stage of a quiz.
const (
	MsgQuizStarted    = "Starting quiz: %s\nTotal questions: %d\n\nI'll send all questions as anonymous polls. Answer them in any order!"
	MsgAllSent        = "✅ All questions have been sent!\nYou can answer them in any order.\nYour final score will be shown once you answer all questions."
	MsgQuizCompleted  = "🎉 Quiz completed!\nYour score: %d/%d\n(%.1f%%)\n\nGenerating your PDF report..."
	MsgReportCaption  = "Here's your quiz report! 📄"
	MsgReportFailed   = "Sorry, couldn't generate PDF: %s"
	MsgDispatchFailed = "Sorry, I couldn't send all questions. Please send the quiz file again."
	MsgStartFailed    = "Sorry, I couldn't start the quiz. Please try again."
	MsgStateLost      = "Sorry, I couldn't find your quiz state. Please start a new quiz with /start"
	MsgSaveFailed     = "Sorry, there was an error saving your progress. Please try again or restart the quiz with /start"
	MsgAnswerFailed   = "Sorry, there was an error processing your answer. Please try again or restart the quiz with /start"
	MsgInvalidJSON    = "Invalid JSON format at line %d, column %d. Please check your file."
	MsgReadFailed     = "Error reading quiz file: %s"
	MsgCancelled      = "Your quiz has been cancelled."
	MsgNothingToStop  = "You have no quiz in progress."
	MsgProgress       = "%s\nAnswered: %d/%d\nScore so far: %d"
)

// validationMessage lists every offending field on its own line.
func validationMessage(ve *domain.ValidationError) string {
	var b strings.Builder
	b.WriteString("Quiz format error:")
	for _, f := range ve.Fields {
		b.WriteString("\n")
		if f.Path == "" {
			b.WriteString(f.Reason)
			continue
		}
		fmt.Fprintf(&b, "Invalid %s: %s", f.Path, f.Reason)
	}
	return b.String()
}

// answerFailureMessage picks the one message a user sees when an answer is lost.
func answerFailureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrCorruptSession):
		return MsgStateLost
	case errors.Is(err, errPersistence):
		return MsgSaveFailed
	default:
		return MsgAnswerFailed
	}
}
