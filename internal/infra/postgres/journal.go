package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"poll-quiz-service/internal/domain"
)

// Journal is an append-only log of quiz attempts and their answers. It is
// only read back when a live session has to be rebuilt.
type Journal struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool, now: time.Now}
}

// Begin records a new attempt and closes any attempt it replaces.
func (j *Journal) Begin(ctx context.Context, sess domain.Session) error {
	quiz, err := json.Marshal(sess.Quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	return j.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE quiz_attempts SET finished_at = $2 WHERE session_key = $1 AND finished_at IS NULL`,
			sess.Key, j.now()); err != nil {
			return fmt.Errorf("close previous attempts: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO quiz_attempts (id, session_key, quiz, started_at) VALUES ($1, $2, $3, $4)`,
			sess.ID, sess.Key, quiz, sess.StartedAt); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

func (j *Journal) Append(ctx context.Context, ref domain.PollRef, letter string) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO quiz_answers (attempt_id, question_index, letter, answered_at) VALUES ($1, $2, $3, $4)`,
		ref.SessionID, ref.QuestionIndex, letter, j.now())
	if err != nil {
		return fmt.Errorf("append answer: %w", err)
	}
	return nil
}

// Load rebuilds an unfinished attempt by replaying its answers in order.
func (j *Journal) Load(ctx context.Context, ref domain.PollRef) (domain.Session, error) {
	var (
		key       int64
		raw       []byte
		startedAt time.Time
	)
	err := j.pool.QueryRow(ctx,
		`SELECT session_key, quiz, started_at FROM quiz_attempts WHERE id = $1 AND finished_at IS NULL`,
		ref.SessionID).Scan(&key, &raw, &startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load attempt: %w", err)
	}

	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	sess := domain.NewSession(key, quiz, startedAt)
	sess.ID = ref.SessionID

	rows, err := j.pool.Query(ctx,
		`SELECT question_index, letter FROM quiz_answers WHERE attempt_id = $1 ORDER BY seq`,
		ref.SessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			index  int
			letter string
		)
		if err := rows.Scan(&index, &letter); err != nil {
			return domain.Session{}, fmt.Errorf("scan answer: %w", err)
		}
		if _, err := sess.Record(index, letter); err != nil {
			return domain.Session{}, fmt.Errorf("replay answer %d: %w", index, err)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Session{}, fmt.Errorf("load answers: %w", err)
	}
	sess.UpdatedAt = j.now()
	return sess, nil
}

func (j *Journal) Finish(ctx context.Context, sessionID string) error {
	_, err := j.pool.Exec(ctx,
		`UPDATE quiz_attempts SET finished_at = $2 WHERE id = $1 AND finished_at IS NULL`,
		sessionID, j.now())
	if err != nil {
		return fmt.Errorf("finish attempt: %w", err)
	}
	return nil
}
