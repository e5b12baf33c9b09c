package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps admin login sessions in Redis so every club-web instance sees
// the same session set. Values are the customer id; the token itself never
// stores role information — the handler reloads the customer on each request.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

var ErrNoSession = errors.New("session not found or expired")

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl, prefix: "admsess:"}
}

func (s *Store) Create(ctx context.Context, customerID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, s.prefix+token, customerID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Store) Get(ctx context.Context, token string) (string, error) {
	customerID, err := s.rdb.Get(ctx, s.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoSession
		}
		return "", err
	}
	// Sliding expiry: activity keeps the session alive.
	_ = s.rdb.Expire(ctx, s.prefix+token, s.ttl).Err()
	return customerID, nil
}

func (s *Store) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.prefix+token).Err()
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
