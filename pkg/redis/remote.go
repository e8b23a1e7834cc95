package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// hitScript increments KEYS[1] and starts its window on the first hit, so a
// crash between the two steps cannot leave a counter without a TTL.
var hitScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

type remote struct {
	rdb *goredis.Client
}

func (r *remote) ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *remote) claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (r *remote) releaseIf(ctx context.Context, key, value string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.rdb, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *remote) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return hitScript.Run(ctx, r.rdb, []string{key}, window.Milliseconds()).Int64()
}

func (r *remote) exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *remote) close() error {
	return r.rdb.Close()
}
