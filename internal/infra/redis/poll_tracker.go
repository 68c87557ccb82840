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

// PollTracker stores poll refs in Redis so answers survive a process restart.
//
//	SET  quiz:poll:{pollID}            {PollRef JSON}
//	SADD quiz:session:{key}:polls      {pollID}
type PollTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPollTracker builds the tracker. A zero ttl keeps entries until removed.
func NewPollTracker(client *redis.Client, ttl time.Duration) *PollTracker {
	return &PollTracker{client: client, ttl: ttl}
}

func (t *PollTracker) Register(ctx context.Context, pollID string, ref domain.PollRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode poll ref: %w", err)
	}
	setKey := sessionPollsKey(ref.SessionKey)
	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, pollKey(pollID), data, t.ttl)
		pipe.SAdd(ctx, setKey, pollID)
		if t.ttl > 0 {
			pipe.Expire(ctx, setKey, t.ttl)
		}
		return nil
	})
	return err
}

func (t *PollTracker) Resolve(ctx context.Context, pollID string) (domain.PollRef, error) {
	raw, err := t.client.Get(ctx, pollKey(pollID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PollRef{}, domain.ErrUnknownPoll
	}
	if err != nil {
		return domain.PollRef{}, err
	}
	var ref domain.PollRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return domain.PollRef{}, fmt.Errorf("decode poll ref %s: %w", pollID, err)
	}
	return ref, nil
}

func (t *PollTracker) RemoveAll(ctx context.Context, key int64, sessionID string) error {
	setKey := sessionPollsKey(key)
	ids, err := t.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	doomed := ids
	if sessionID != "" {
		doomed, err = t.ofAttempt(ctx, ids, sessionID)
		if err != nil {
			return err
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	members := make([]interface{}, len(doomed))
	keys := make([]string, len(doomed))
	for i, id := range doomed {
		members[i] = id
		keys[i] = pollKey(id)
	}
	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, setKey, members...)
		return nil
	})
	return err
}

// ofAttempt filters ids down to the polls of one attempt. Ids whose entry is
// already gone are included so the set gets pruned.
func (t *PollTracker) ofAttempt(ctx context.Context, ids []string, sessionID string) ([]string, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = pollKey(id)
	}
	vals, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(ids))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			out = append(out, ids[i])
			continue
		}
		var ref domain.PollRef
		if err := json.Unmarshal([]byte(s), &ref); err != nil || ref.SessionID == sessionID {
			out = append(out, ids[i])
		}
	}
	return out, nil
}
