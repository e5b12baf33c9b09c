package bot

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// FlowState remembers which computer a chat picked while it walks through
// the date/time picker. State is short-lived by design: an abandoned flow
// simply expires.
type FlowState interface {
	SetComputer(ctx context.Context, chatID int64, computerID string) error
	Computer(ctx context.Context, chatID int64) (string, error)
	Clear(ctx context.Context, chatID int64) error
}

var ErrNoFlow = errors.New("no booking flow in progress")

type RedisFlowState struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisFlowState(rdb *redis.Client, ttl time.Duration) *RedisFlowState {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisFlowState{rdb: rdb, ttl: ttl}
}

func flowKey(chatID int64) string {
	return "botflow:" + strconv.FormatInt(chatID, 10)
}

func (s *RedisFlowState) SetComputer(ctx context.Context, chatID int64, computerID string) error {
	return s.rdb.Set(ctx, flowKey(chatID), computerID, s.ttl).Err()
}

func (s *RedisFlowState) Computer(ctx context.Context, chatID int64) (string, error) {
	v, err := s.rdb.Get(ctx, flowKey(chatID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoFlow
		}
		return "", err
	}
	return v, nil
}

func (s *RedisFlowState) Clear(ctx context.Context, chatID int64) error {
	return s.rdb.Del(ctx, flowKey(chatID)).Err()
}
