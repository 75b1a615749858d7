package ratewindow

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisWindowPrefix = "window/"

// appends, prunes and counts; on trip the whole window is deleted before returning
var recordScript = redis.NewScript(`
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[3])
local card = redis.call("ZCARD", KEYS[1])
if card >= tonumber(ARGV[4]) then
	redis.call("DEL", KEYS[1])
	return 1
end
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 0
`)

// Tracker backed by one redis sorted set per key, scored by Unix nanoseconds.
type RedisTracker struct {
	Client    *redis.Client
	Window    time.Duration
	Threshold int
}

func NewRedisTracker(redisURL string) (*RedisTracker, error) {
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
	return &RedisTracker{
		Client:    rdb,
		Window:    DefaultWindow,
		Threshold: DefaultThreshold,
	}, nil
}

// Sorted-set member for a message at ns. The random suffix keeps messages with identical timestamps distinct.
func windowMember(ns int64) string {
	return strconv.FormatInt(ns, 10) + "-" + strconv.FormatUint(rand.Uint64(), 36)
}

func (t *RedisTracker) Record(ctx context.Context, key string, now time.Time) (bool, error) {
	ns := now.UnixNano()
	cutoff := ns - t.Window.Nanoseconds()
	args := []any{
		ns,
		windowMember(ns),
		strconv.FormatInt(cutoff, 10),
		t.Threshold,
		(2 * t.Window).Milliseconds(),
	}
	res, err := recordScript.Run(ctx, t.Client, []string{redisWindowPrefix + key}, args...).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (t *RedisTracker) Clear(ctx context.Context, key string) error {
	return t.Client.Del(ctx, redisWindowPrefix+key).Err()
}

var _ Tracker = (*RedisTracker)(nil)
