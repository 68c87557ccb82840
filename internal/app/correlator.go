package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"poll-quiz-service/internal/domain"
	"poll-quiz-service/internal/metrics"
)

// Outcome is what happened to one answer event.
type Outcome int

const (
	OutcomeDropped Outcome = iota
	OutcomeRecorded
	OutcomeDuplicate
	OutcomeCompleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDropped:
		return "dropped"
	case OutcomeRecorded:
		return "recorded"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeCompleted:
		return "completed"
	}
	return "unknown"
}

var errPersistence = errors.New("session update failed")

// AnswerError is an answer that could not be applied to a resolved session.
type AnswerError struct {
	Ref domain.PollRef
	Err error
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("answer for session %d question %d: %v", e.Ref.SessionKey, e.Ref.QuestionIndex, e.Err)
}

func (e *AnswerError) Unwrap() error { return e.Err }

// Correlator applies answer events to the sessions their polls belong to.
type Correlator struct {
	sessions SessionRepository
	polls    PollTracker
	journal  Journal
	reports  *ReportTrigger
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
	recovery singleflight.Group
}

func NewCorrelator(sessions SessionRepository, polls PollTracker, journal Journal, reports *ReportTrigger, m *metrics.Metrics, log zerolog.Logger) *Correlator {
	return &Correlator{
		sessions: sessions,
		polls:    polls,
		journal:  journal,
		reports:  reports,
		metrics:  m,
		log:      log.With().Str("component", "correlator").Logger(),
		now:      time.Now,
	}
}

// Handle applies one answer event. Events that cannot matter (unknown poll,
// retracted vote, replaced or finished attempt) are dropped without error.
// Failures after the poll was resolved come back as *AnswerError.
func (c *Correlator) Handle(ctx context.Context, ev domain.AnswerEvent) (out Outcome, err error) {
	log := c.log.With().Str("poll_id", ev.PollID).Int64("user_id", ev.UserID).Logger()
	var ref *domain.PollRef

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("answer handling panicked")
			out, err = OutcomeDropped, fmt.Errorf("panic: %v", r)
			if ref != nil {
				err = &AnswerError{Ref: *ref, Err: err}
			}
		}
		c.metrics.Answers.WithLabelValues(out.String()).Inc()
	}()

	resolved, err := c.polls.Resolve(ctx, ev.PollID)
	if errors.Is(err, domain.ErrUnknownPoll) {
		log.Debug().Msg("answer for unknown poll dropped")
		return OutcomeDropped, nil
	}
	if err != nil {
		return OutcomeDropped, fmt.Errorf("resolve poll %s: %w", ev.PollID, err)
	}
	ref = &resolved
	log = log.With().Int64("session_key", resolved.SessionKey).Int("question", resolved.QuestionIndex+1).Logger()

	if len(ev.OptionIDs) == 0 {
		log.Debug().Msg("retracted vote ignored")
		return OutcomeDropped, nil
	}

	sess, res, err := c.apply(ctx, resolved, ev.OptionIDs[0])
	if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrCorruptSession) {
		log.Warn().Err(err).Msg("session missing, trying recovery")
		rerr := c.recoverSession(ctx, resolved)
		if errors.Is(rerr, domain.ErrSessionComplete) {
			log.Debug().Msg("answer for finished attempt dropped")
			return OutcomeDropped, nil
		}
		if errors.Is(rerr, domain.ErrSessionNotFound) && c.released(ctx, ev.PollID) {
			log.Debug().Msg("answer raced attempt release, dropped")
			return OutcomeDropped, nil
		}
		if rerr != nil {
			log.Error().Err(rerr).Msg("session recovery failed")
			return OutcomeDropped, &AnswerError{Ref: resolved, Err: err}
		}
		sess, res, err = c.apply(ctx, resolved, ev.OptionIDs[0])
	}

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrStaleSession),
		errors.Is(err, domain.ErrSessionComplete),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		log.Info().Err(err).Msg("answer dropped")
		return OutcomeDropped, nil
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrCorruptSession):
		return OutcomeDropped, &AnswerError{Ref: resolved, Err: err}
	default:
		log.Error().Err(err).Msg("session update failed")
		return OutcomeDropped, &AnswerError{Ref: resolved, Err: fmt.Errorf("%w: %w", errPersistence, err)}
	}

	if !res.Changed {
		log.Debug().Msg("duplicate answer")
		return OutcomeDuplicate, nil
	}

	letter := sess.Answers[resolved.QuestionIndex]
	if err := c.journal.Append(ctx, resolved, letter); err != nil {
		log.Warn().Err(err).Msg("journal append failed")
	}
	log.Info().
		Str("answer", letter).
		Int("delta", res.Delta).
		Int("answered", sess.Answered()).
		Int("total", sess.Total).
		Msg("answer recorded")

	if !res.Completed {
		return OutcomeRecorded, nil
	}
	c.complete(ctx, sess)
	return OutcomeCompleted, nil
}

func (c *Correlator) apply(ctx context.Context, ref domain.PollRef, position int) (domain.Session, domain.RecordResult, error) {
	var res domain.RecordResult
	sess, err := c.sessions.Update(ctx, ref.SessionKey, func(s *domain.Session) error {
		if s.ID != ref.SessionID {
			return domain.ErrStaleSession
		}
		if s.Complete() {
			return domain.ErrSessionComplete
		}
		if ref.QuestionIndex < 0 || ref.QuestionIndex >= len(s.Quiz.Questions) {
			return fmt.Errorf("%w: index %d", domain.ErrQuestionNotFound, ref.QuestionIndex)
		}
		letter, err := s.Quiz.Questions[ref.QuestionIndex].LetterAt(position)
		if err != nil {
			return err
		}
		r, err := s.Record(ref.QuestionIndex, letter)
		if err != nil {
			return err
		}
		if r.Changed {
			s.UpdatedAt = c.now()
		}
		res = r
		return nil
	})
	return sess, res, err
}

// recoverSession rebuilds the attempt from the journal. Concurrent answers for
// the same attempt share one rebuild.
func (c *Correlator) recoverSession(ctx context.Context, ref domain.PollRef) error {
	_, err, _ := c.recovery.Do(ref.SessionID, func() (interface{}, error) {
		sess, err := c.journal.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		// A finished attempt is being released; bringing it back would leak it.
		if sess.Complete() {
			return nil, domain.ErrSessionComplete
		}
		return c.sessions.Restore(ctx, sess)
	})
	if errors.Is(err, domain.ErrSessionComplete) {
		return err
	}
	if err != nil {
		c.metrics.Recoveries.WithLabelValues("failed").Inc()
		return err
	}
	c.metrics.Recoveries.WithLabelValues("restored").Inc()
	return nil
}

// released reports whether the poll's attempt has been cleaned up since it
// was resolved.
func (c *Correlator) released(ctx context.Context, pollID string) bool {
	_, err := c.polls.Resolve(ctx, pollID)
	return errors.Is(err, domain.ErrUnknownPoll)
}

// complete reports on the finished snapshot and then releases everything the
// attempt holds, whether or not the report worked.
func (c *Correlator) complete(ctx context.Context, sess domain.Session) {
	c.metrics.Completions.Inc()
	log := c.log.With().Int64("session_key", sess.Key).Str("session_id", sess.ID).Logger()
	log.Info().Str("score", sess.ScoreText()).Msg("quiz completed")

	defer c.release(context.WithoutCancel(ctx), sess, log)
	if err := c.reports.OnComplete(ctx, sess); err != nil {
		log.Error().Err(err).Msg("report failed")
	}
}

func (c *Correlator) release(ctx context.Context, sess domain.Session, log zerolog.Logger) {
	if err := c.polls.RemoveAll(ctx, sess.Key, sess.ID); err != nil {
		log.Error().Err(err).Msg("remove poll entries")
	}
	if err := c.sessions.Remove(ctx, sess.Key, sess.ID); err != nil {
		log.Error().Err(err).Msg("remove session")
	}
	if err := c.journal.Finish(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Msg("finish journal attempt")
	}
}
