package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"poll-quiz-service/internal/domain"
	"poll-quiz-service/internal/metrics"
)

// Dependencies wires a QuizService. Journal, Pacer, Metrics and Logger are optional.
type Dependencies struct {
	Sessions      SessionRepository
	Polls         PollTracker
	Journal       Journal
	Messenger     Messenger
	Renderer      ReportRenderer
	Pacer         Pacer
	Anonymous     bool
	ReportTimeout time.Duration
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions   SessionRepository
	polls      PollTracker
	journal    Journal
	messenger  Messenger
	dispatcher *Dispatcher
	correlator *Correlator
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu      sync.Mutex
	running map[int64]*dispatchRun
}

// dispatchRun is one attempt whose polls are still going out.
type dispatchRun struct {
	cancel context.CancelFunc
}

func NewQuizService(deps Dependencies) *QuizService {
	if deps.Journal == nil {
		deps.Journal = NopJournal{}
	}
	if deps.Pacer == nil {
		deps.Pacer = NewPacer(0, 0)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}

	reports := NewReportTrigger(deps.Renderer, deps.Messenger, deps.ReportTimeout, deps.Metrics, deps.Logger)
	return &QuizService{
		sessions:   deps.Sessions,
		polls:      deps.Polls,
		journal:    deps.Journal,
		messenger:  deps.Messenger,
		dispatcher: NewDispatcher(deps.Messenger, deps.Polls, deps.Pacer, deps.Anonymous, deps.Metrics, deps.Logger),
		correlator: NewCorrelator(deps.Sessions, deps.Polls, deps.Journal, reports, deps.Metrics, deps.Logger),
		metrics:    deps.Metrics,
		log:        deps.Logger.With().Str("component", "quiz_service").Logger(),
		running:    make(map[int64]*dispatchRun),
	}
}

// SubmitDocument parses an uploaded quiz file and starts it.
func (s *QuizService) SubmitDocument(ctx context.Context, key int64, data []byte) (domain.Session, error) {
	raw, err := domain.ParseDefinition(data)
	if err != nil {
		var se *domain.SyntaxError
		if errors.As(err, &se) {
			s.tell(ctx, key, fmt.Sprintf(MsgInvalidJSON, se.Line, se.Column))
		} else {
			s.tell(ctx, key, fmt.Sprintf(MsgReadFailed, err.Error()))
		}
		s.metrics.QuizzesRejected.Inc()
		return domain.Session{}, err
	}
	return s.StartQuiz(ctx, key, raw)
}

// StartQuiz validates raw, replaces any quiz the user has in progress and
// sends every question. It returns once all polls are out.
func (s *QuizService) StartQuiz(ctx context.Context, key int64, raw any) (domain.Session, error) {
	log := s.log.With().Int64("session_key", key).Logger()

	quiz, err := domain.Validate(raw)
	if err != nil {
		s.metrics.QuizzesRejected.Inc()
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			log.Info().Int("problems", len(ve.Fields)).Msg("quiz definition rejected")
			s.tell(ctx, key, validationMessage(ve))
		} else {
			log.Error().Err(err).Msg("validate quiz")
			s.tell(ctx, key, MsgStartFailed)
		}
		return domain.Session{}, err
	}

	// Stop the previous attempt's dispatch before its entries are released,
	// so it cannot register polls after the cleanup.
	runCtx, run := s.beginDispatch(ctx, key)
	defer s.endDispatch(key, run)

	// Entries of the previous attempt go first so its stragglers resolve to nothing.
	if err := s.polls.RemoveAll(ctx, key, ""); err != nil {
		s.tell(ctx, key, MsgStartFailed)
		return domain.Session{}, fmt.Errorf("release previous polls: %w", err)
	}
	sess, err := s.sessions.Create(ctx, key, quiz)
	if err != nil {
		s.tell(ctx, key, MsgStartFailed)
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.journal.Begin(ctx, sess); err != nil {
		log.Warn().Err(err).Msg("journal begin failed")
	}
	log = log.With().Str("session_id", sess.ID).Logger()
	log.Info().Str("title", quiz.Title).Int("questions", sess.Total).Msg("quiz session created")

	s.tell(ctx, key, fmt.Sprintf(MsgQuizStarted, quiz.Title, sess.Total))

	if _, err := s.dispatcher.Dispatch(runCtx, sess); err != nil {
		s.release(context.WithoutCancel(ctx), sess)
		if ctx.Err() == nil && runCtx.Err() != nil {
			log.Info().Msg("attempt replaced while dispatching")
			return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrStaleSession, err)
		}
		log.Error().Err(err).Msg("dispatch failed, cancelling attempt")
		s.tell(ctx, key, MsgDispatchFailed)
		return domain.Session{}, err
	}

	s.metrics.QuizzesStarted.Inc()
	s.tell(ctx, key, MsgAllSent)
	return sess, nil
}

// HandleAnswer applies one poll answer. Errors never escape; the user gets
// at most one message about a lost answer.
func (s *QuizService) HandleAnswer(ctx context.Context, ev domain.AnswerEvent) Outcome {
	out, err := s.correlator.Handle(ctx, ev)
	if err == nil {
		return out
	}

	var ae *AnswerError
	if !errors.As(err, &ae) {
		s.log.Error().Err(err).Str("poll_id", ev.PollID).Msg("answer not applied")
		return out
	}
	s.log.Error().Err(err).
		Str("poll_id", ev.PollID).
		Int64("session_key", ae.Ref.SessionKey).
		Msg("answer not applied")
	s.tell(ctx, ae.Ref.SessionKey, answerFailureMessage(err))
	return out
}

// CancelQuiz drops the user's quiz in progress. It reports whether there was one.
func (s *QuizService) CancelQuiz(ctx context.Context, key int64) (bool, error) {
	s.stopDispatch(key)
	sess, err := s.sessions.Get(ctx, key)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return false, s.polls.RemoveAll(ctx, key, "")
	}
	if err != nil && !errors.Is(err, domain.ErrCorruptSession) {
		return false, err
	}

	if err := s.polls.RemoveAll(ctx, key, ""); err != nil {
		return false, fmt.Errorf("release polls: %w", err)
	}
	if err := s.sessions.Remove(ctx, key, ""); err != nil {
		return false, fmt.Errorf("remove session: %w", err)
	}
	if sess.ID != "" {
		if err := s.journal.Finish(ctx, sess.ID); err != nil {
			s.log.Warn().Err(err).Int64("session_key", key).Msg("finish journal attempt")
		}
	}
	s.log.Info().Int64("session_key", key).Msg("quiz cancelled")
	return true, nil
}

// Progress returns the user's session in progress.
func (s *QuizService) Progress(ctx context.Context, key int64) (domain.Session, error) {
	return s.sessions.Get(ctx, key)
}

// Notify sends a plain message through the service's transport.
func (s *QuizService) Notify(ctx context.Context, key int64, text string) {
	s.tell(ctx, key, text)
}

// beginDispatch cancels any dispatch still running for key and registers a new one.
func (s *QuizService) beginDispatch(ctx context.Context, key int64) (context.Context, *dispatchRun) {
	runCtx, cancel := context.WithCancel(ctx)
	run := &dispatchRun{cancel: cancel}

	s.mu.Lock()
	if prev := s.running[key]; prev != nil {
		prev.cancel()
	}
	s.running[key] = run
	s.mu.Unlock()
	return runCtx, run
}

func (s *QuizService) endDispatch(key int64, run *dispatchRun) {
	s.mu.Lock()
	if s.running[key] == run {
		delete(s.running, key)
	}
	s.mu.Unlock()
	run.cancel()
}

func (s *QuizService) stopDispatch(key int64) {
	s.mu.Lock()
	if run := s.running[key]; run != nil {
		run.cancel()
		delete(s.running, key)
	}
	s.mu.Unlock()
}

func (s *QuizService) release(ctx context.Context, sess domain.Session) {
	if err := s.polls.RemoveAll(ctx, sess.Key, sess.ID); err != nil {
		s.log.Error().Err(err).Int64("session_key", sess.Key).Msg("remove poll entries")
	}
	if err := s.sessions.Remove(ctx, sess.Key, sess.ID); err != nil {
		s.log.Error().Err(err).Int64("session_key", sess.Key).Msg("remove session")
	}
	if err := s.journal.Finish(ctx, sess.ID); err != nil {
		s.log.Warn().Err(err).Int64("session_key", sess.Key).Msg("finish journal attempt")
	}
}

func (s *QuizService) tell(ctx context.Context, key int64, text string) {
	if err := s.messenger.SendText(ctx, key, text); err != nil {
		s.log.Warn().Err(err).Int64("session_key", key).Msg("send message")
	}
}
