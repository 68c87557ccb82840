package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pollquiz"

// Metrics holds the Prometheus collectors of the quiz engine.
type Metrics struct {
	QuizzesStarted  prometheus.Counter
	QuizzesRejected prometheus.Counter
	PollsDispatched prometheus.Counter
	Answers         *prometheus.CounterVec
	Recoveries      *prometheus.CounterVec
	Completions     prometheus.Counter
	ReportFailures  prometheus.Counter
}

// New registers the collectors on reg. A nil reg gets a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		QuizzesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quizzes_started_total",
			Help:      "Quiz sessions created from a valid definition",
		}),
		QuizzesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quizzes_rejected_total",
			Help:      "Quiz definitions that failed validation",
		}),
		PollsDispatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_dispatched_total",
			Help:      "Question polls sent and registered",
		}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answer events by outcome",
		}, []string{"outcome"}),
		Recoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_recoveries_total",
			Help:      "Session recovery attempts by result",
		}, []string{"result"}),
		Completions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quizzes_completed_total",
			Help:      "Sessions that reached completion",
		}),
		ReportFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_failures_total",
			Help:      "Reports the renderer could not produce",
		}),
	}
}
