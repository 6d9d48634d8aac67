package history

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyKeyPrefix = "history:"

// redisStore implements Store with one Redis list per user.
type redisStore struct {
	client   *redis.Client
	capacity int
	ttl      time.Duration
}

func (s *redisStore) key(userID int64) string {
	return historyKeyPrefix + strconv.FormatInt(userID, 10)
}

// Append implements Store. Push, trim and expiry run as one MULTI block.
func (s *redisStore) Append(ctx context.Context, userID int64, turn Turn) error {
	val, err := json.Marshal(turn)
	if err != nil {
		return err
	}

	key := s.key(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, val)
		pipe.LTrim(ctx, key, int64(-s.capacity), -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Recent implements Store.
func (s *redisStore) Recent(ctx context.Context, userID int64) ([]Turn, error) {
	vals, err := s.client.LRange(ctx, s.key(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	turns := make([]Turn, 0, len(vals))
	for _, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear implements Store.
func (s *redisStore) Clear(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
