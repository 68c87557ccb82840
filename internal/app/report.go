package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"poll-quiz-service/internal/domain"
	"poll-quiz-service/internal/metrics"
)

// BuildReport assembles the renderer payload from a finished session.
func BuildReport(sess domain.Session) domain.Report {
	quiz := sess.Quiz
	report := domain.Report{
		Type:       quiz.Mode,
		Title:      quiz.Title,
		Questions:  make([]domain.ReportQuestion, 0, len(quiz.Questions)),
		Score:      sess.Score,
		Total:      sess.Total,
		Percentage: sess.Percentage(),
		ScoreText:  sess.ScoreText(),
	}
	if quiz.Mode == domain.ModeLesson {
		report.Module = quiz.Module
		report.Subject = quiz.Subject
		report.Lesson = quiz.Lesson
	} else {
		report.Tags = append([]string{}, quiz.Tags...)
	}

	for i, q := range quiz.Questions {
		row := domain.ReportQuestion{
			SN:       q.SN,
			Source:   q.Source,
			Question: q.Text,
			Options:  q.OptionTexts(),
			Correct:  q.Correct + 1,
		}
		if i < len(sess.Answers) {
			if pos := q.PositionOf(sess.Answers[i]); pos >= 0 {
				selected := pos + 1
				row.Selected = &selected
			}
		}
		report.Questions = append(report.Questions, row)
	}
	return report
}

// ReportTrigger announces the final score and delivers the rendered report.
type ReportTrigger struct {
	renderer  ReportRenderer
	messenger Messenger
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewReportTrigger(renderer ReportRenderer, messenger Messenger, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *ReportTrigger {
	return &ReportTrigger{
		renderer:  renderer,
		messenger: messenger,
		timeout:   timeout,
		metrics:   m,
		log:       log.With().Str("component", "report").Logger(),
	}
}

// OnComplete renders the report for sess. Render failures are told to the
// user with the renderer's error text and returned.
func (t *ReportTrigger) OnComplete(ctx context.Context, sess domain.Session) error {
	log := t.log.With().Int64("session_key", sess.Key).Str("session_id", sess.ID).Logger()

	score := fmt.Sprintf(MsgQuizCompleted, sess.Score, sess.Total, sess.Percentage())
	if err := t.messenger.SendText(ctx, sess.Key, score); err != nil {
		log.Warn().Err(err).Msg("send score")
	}

	renderCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	doc, err := t.renderer.Render(renderCtx, BuildReport(sess))
	if err != nil {
		t.metrics.ReportFailures.Inc()
		log.Error().Err(err).Msg("render report")
		if serr := t.messenger.SendText(ctx, sess.Key, fmt.Sprintf(MsgReportFailed, err.Error())); serr != nil {
			log.Warn().Err(serr).Msg("send render failure")
		}
		return fmt.Errorf("render report: %w", err)
	}

	if err := t.messenger.SendDocument(ctx, sess.Key, doc, MsgReportCaption); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	log.Info().Str("document", doc.Name).Msg("report delivered")
	return nil
}
