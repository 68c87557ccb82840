package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"poll-quiz-service/internal/app"
	"poll-quiz-service/internal/config"
	"poll-quiz-service/internal/infra/memory"
	"poll-quiz-service/internal/infra/postgres"
	redisstore "poll-quiz-service/internal/infra/redis"
	"poll-quiz-service/internal/infra/report"
	"poll-quiz-service/internal/metrics"
)

// backends holds the stores chosen by configuration.
type backends struct {
	sessions app.SessionRepository
	polls    app.PollTracker
	journal  app.Journal
	closers  []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends uses Redis when an address is configured and memory otherwise.
// Postgres, when configured, backs the recovery journal.
func openBackends(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backends, error) {
	b := &backends{journal: app.NopJournal{}}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		ttl := config.TTLDuration(cfg.Redis.TTL, 0)
		b.sessions = redisstore.NewSessionStore(client, ttl)
		b.polls = redisstore.NewPollTracker(client, ttl)
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", ttl).Msg("using redis session store")
	} else {
		b.sessions = memory.NewSessionStore()
		b.polls = memory.NewPollTracker()
		log.Info().Msg("using in-memory session store")
	}

	if cfg.Postgres.URL != "" {
		if cfg.Postgres.AutoMigrate {
			applied, err := postgres.Migrate(ctx, cfg.Postgres.URL)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info().Strs("applied", applied).Msg("journal schema up to date")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.journal = postgres.NewJournal(pool)
		log.Info().Msg("answer journal enabled")
	}
	return b, nil
}

func newRenderer(cfg config.Config) app.ReportRenderer {
	if cfg.Report.Renderer == "json" {
		return report.JSONRenderer{}
	}
	return report.NewTypstRenderer(cfg.Report.TypstBin, cfg.Report.Template, cfg.Report.WorkDir)
}

func newService(cfg config.Config, b *backends, messenger app.Messenger, reg prometheus.Registerer, log zerolog.Logger) *app.QuizService {
	return app.NewQuizService(app.Dependencies{
		Sessions:      b.sessions,
		Polls:         b.polls,
		Journal:       b.journal,
		Messenger:     messenger,
		Renderer:      newRenderer(cfg),
		Pacer:         app.NewPacer(config.TTLDuration(cfg.Dispatch.Interval, 0), cfg.Dispatch.Burst),
		Anonymous:     cfg.AnonymousPolls(),
		ReportTimeout: config.TTLDuration(cfg.Report.Timeout, 30*time.Second),
		Metrics:       metrics.New(reg),
		Logger:        log,
	})
}
