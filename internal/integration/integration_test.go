package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"poll-quiz-service/internal/app"
	"poll-quiz-service/internal/domain"
	"poll-quiz-service/internal/infra/postgres"
	infraredis "poll-quiz-service/internal/infra/redis"
	"poll-quiz-service/internal/infra/report"
)

type recordingMessenger struct {
	mu    sync.Mutex
	next  int
	polls []string
	texts []string
	docs  []domain.Document
}

func (m *recordingMessenger) SendPoll(_ context.Context, _ int64, _ domain.PollRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("poll-%d", m.next)
	m.polls = append(m.polls, id)
	return id, nil
}

func (m *recordingMessenger) SendText(_ context.Context, _ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *recordingMessenger) SendDocument(_ context.Context, _ int64, doc domain.Document, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

func TestSessionRecoveredFromJournal(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	if _, err := postgres.Migrate(ctx, pgURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	journal := postgres.NewJournal(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	messenger := &recordingMessenger{}
	service := app.NewQuizService(app.Dependencies{
		Sessions:  infraredis.NewSessionStore(redisClient, 5*time.Minute),
		Polls:     infraredis.NewPollTracker(redisClient, 5*time.Minute),
		Journal:   journal,
		Messenger: messenger,
		Renderer:  report.JSONRenderer{},
		Logger:    zerolog.Nop(),
	})

	sess, err := service.StartQuiz(ctx, 77, sampleDefinition())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(messenger.polls) != 2 {
		t.Fatalf("expected 2 polls, got %d", len(messenger.polls))
	}

	if out := service.HandleAnswer(ctx, domain.AnswerEvent{PollID: messenger.polls[0], UserID: 77, OptionIDs: []int{1}}); out != app.OutcomeRecorded {
		t.Fatalf("expected recorded, got %s", out)
	}

	// Simulate losing the live session; the journal still has the first answer.
	if err := redisClient.Del(ctx, fmt.Sprintf("quiz:session:%d", 77)).Err(); err != nil {
		t.Fatalf("drop session: %v", err)
	}
	restored, err := journal.Load(ctx, domain.PollRef{SessionKey: 77, SessionID: sess.ID})
	if err != nil {
		t.Fatalf("journal load: %v", err)
	}
	if restored.Answers[0] != "b" || restored.Score != 1 {
		t.Fatalf("unexpected replay %+v", restored)
	}

	if out := service.HandleAnswer(ctx, domain.AnswerEvent{PollID: messenger.polls[1], UserID: 77, OptionIDs: []int{2}}); out != app.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", out)
	}
	if len(messenger.docs) != 1 {
		t.Fatalf("expected one report, got %d", len(messenger.docs))
	}
	if !containsText(messenger.texts, "Your score: 1/2") {
		t.Fatalf("score message missing: %v", messenger.texts)
	}

	if _, err := journal.Load(ctx, domain.PollRef{SessionID: sess.ID}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected finished attempt, got %v", err)
	}
	if n, _ := redisClient.Exists(ctx, "quiz:poll:"+messenger.polls[0]).Result(); n != 0 {
		t.Fatalf("expected poll entries removed")
	}
}

func TestJournalBeginClosesPreviousAttempt(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	if _, err := postgres.Migrate(ctx, pgURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	journal := postgres.NewJournal(pool)

	quiz, err := domain.Validate(sampleDefinition())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	first := domain.NewSession(5, quiz, time.Now())
	second := domain.NewSession(5, quiz, time.Now())
	if err := journal.Begin(ctx, first); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := journal.Begin(ctx, second); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := journal.Load(ctx, domain.PollRef{SessionID: first.ID}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected replaced attempt closed, got %v", err)
	}
	if _, err := journal.Load(ctx, domain.PollRef{SessionID: second.ID}); err != nil {
		t.Fatalf("expected open attempt, got %v", err)
	}
}

func sampleDefinition() map[string]any {
	return map[string]any{
		"type":  "custom",
		"title": "Integration",
		"questions": []any{
			map[string]any{"question": "1+1?", "a": "1", "b": "2", "c": "3", "answer": "b"},
			map[string]any{"question": "0+0?", "a": "0", "b": "1", "c": "2", "answer": "a"},
		},
	}
}

func containsText(texts []string, want string) bool {
	for _, s := range texts {
		if strings.Contains(s, want) {
			return true
		}
	}
	return false
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
