package allowlist

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var redisAllowListKey = "warden/verified"

// Allow-list stored as a single redis set. Useful when the users file lives on ephemeral disk.
type RedisAllowList struct {
	Client *redis.Client
}

func NewRedisAllowList(redisURL string) (*RedisAllowList, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisAllowList{Client: rdb}, nil
}

func (s *RedisAllowList) Contains(ctx context.Context, identity string) (bool, error) {
	ok, err := s.Client.SIsMember(ctx, redisAllowListKey, identity).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	return ok, nil
}

func (s *RedisAllowList) Add(ctx context.Context, identity string) error {
	if err := s.Client.SAdd(ctx, redisAllowListKey, identity).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	return nil
}

var _ AllowList = (*RedisAllowList)(nil)
