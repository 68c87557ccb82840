package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"poll-quiz-service/internal/domain"
	"poll-quiz-service/internal/metrics"
)

// NewPacer allows burst polls at once and then one per interval.
// A non-positive interval disables pacing.
func NewPacer(interval time.Duration, burst int) Pacer {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}

// Dispatcher sends every question of a session as its own poll and records
// which poll carries which question.
type Dispatcher struct {
	messenger Messenger
	polls     PollTracker
	pacer     Pacer
	anonymous bool
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewDispatcher(messenger Messenger, polls PollTracker, pacer Pacer, anonymous bool, m *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		polls:     polls,
		pacer:     pacer,
		anonymous: anonymous,
		metrics:   m,
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch sends the questions in order and returns how many were registered.
// It stops at the first failure.
func (d *Dispatcher) Dispatch(ctx context.Context, sess domain.Session) (int, error) {
	total := len(sess.Quiz.Questions)
	for i, q := range sess.Quiz.Questions {
		if err := d.pacer.Wait(ctx); err != nil {
			return i, fmt.Errorf("pace question %d: %w", i+1, err)
		}

		pollID, err := d.messenger.SendPoll(ctx, sess.Key, domain.NewPollRequest(q, i, total, d.anonymous))
		if err != nil {
			return i, fmt.Errorf("send question %d: %w", i+1, err)
		}

		ref := domain.PollRef{SessionKey: sess.Key, SessionID: sess.ID, QuestionIndex: i}
		if err := d.polls.Register(ctx, pollID, ref); err != nil {
			return i, fmt.Errorf("register poll %s: %w", pollID, err)
		}
		d.metrics.PollsDispatched.Inc()
		d.log.Debug().
			Int64("session_key", sess.Key).
			Str("poll_id", pollID).
			Int("question", i+1).
			Msg("poll sent")

		// A replacement cancels ctx; stopping here leaves every registered
		// entry to the caller's cleanup.
		if err := ctx.Err(); err != nil {
			return i + 1, fmt.Errorf("dispatch stopped after question %d: %w", i+1, err)
		}
	}
	return total, nil
}
