package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"poll-quiz-service/internal/domain"
)

const maxTxRetries = 16

// SessionStore keeps each session as a JSON snapshot and makes Update atomic
// with WATCH/MULTI, so it holds across processes sharing the same Redis.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore builds the store. A zero ttl keeps sessions until they
// finish; otherwise every write restarts the expiry, so only idle sessions lapse.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *SessionStore) Create(ctx context.Context, key int64, quiz domain.Quiz) (domain.Session, error) {
	sess := domain.NewSession(key, quiz, s.now())
	data, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(key), data, s.ttl).Err(); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, key int64) (domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		return domain.Session{}, readErr(err)
	}
	return decodeSession(raw)
}

func (s *SessionStore) Update(ctx context.Context, key int64, mutate func(*domain.Session) error) (domain.Session, error) {
	k := sessionKey(key)
	var out domain.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			return readErr(err)
		}
		sess, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		if err == nil {
			out = sess
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.Session{}, err
	}
	return domain.Session{}, domain.ErrConflict
}

func (s *SessionStore) Restore(ctx context.Context, sess domain.Session) (domain.Session, error) {
	k := sessionKey(sess.Key)
	data, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("encode session: %w", err)
	}

	var out domain.Session
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if err == nil {
			if current, derr := decodeSession(raw); derr == nil {
				out = current
				return nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		if err == nil {
			out = sess
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.Session{}, err
	}
	return domain.Session{}, domain.ErrConflict
}

func (s *SessionStore) Remove(ctx context.Context, key int64, sessionID string) error {
	k := sessionKey(key)
	if sessionID == "" {
		return s.client.Del(ctx, k).Err()
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		// An unreadable snapshot cannot belong to anyone; drop it too.
		if current, derr := decodeSession(raw); derr == nil && current.ID != sessionID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return domain.ErrConflict
}

func decodeSession(raw []byte) (domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrCorruptSession, err)
	}
	if sess.ID == "" || len(sess.Answers) != len(sess.Quiz.Questions) {
		return domain.Session{}, fmt.Errorf("%w: inconsistent snapshot", domain.ErrCorruptSession)
	}
	return sess, nil
}

func readErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return domain.ErrSessionNotFound
	}
	return err
}
