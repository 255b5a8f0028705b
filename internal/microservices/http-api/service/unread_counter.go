package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnreadCounter caches per-user unread totals. A miss means "recount from the database".
//
// Writers never adjust the cached value in place. They Invalidate after changing storage,
// which drops the entry and advances the user's generation. A recount reads Generation
// before counting and hands it to Fill, so a total that may predate a concurrent write is
// never cached.
type UnreadCounter interface {
	Get(ctx context.Context, userID string) (count int64, ok bool, err error)
	Generation(ctx context.Context, userID string) (int64, error)
	// Fill caches count only if the generation is still gen; stored reports whether it did.
	Fill(ctx context.Context, userID string, count, gen int64) (stored bool, err error)
	Invalidate(ctx context.Context, userID string) error
}

// invalidateUnread drops the cached total and bumps the generation in one step
var invalidateUnread = redis.NewScript(`
redis.call('DEL', KEYS[1])
local gen = redis.call('INCR', KEYS[2])
if tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[2], ARGV[1])
end
return gen
`)

var errGenerationMoved = errors.New("unread generation moved")

type RedisUnreadCounter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisUnreadCounter wraps an already connected client
func NewRedisUnreadCounter(client *redis.Client, ttl time.Duration) *RedisUnreadCounter {
	return &RedisUnreadCounter{client: client, ttl: ttl}
}

// both keys share a hash tag so the script stays single-slot on a cluster
func unreadKey(userID string) string {
	return fmt.Sprintf("notifications:unread:{%s}", userID)
}

func generationKey(userID string) string {
	return fmt.Sprintf("notifications:unread:{%s}:gen", userID)
}

func (c *RedisUnreadCounter) Get(ctx context.Context, userID string) (int64, bool, error) {
	count, err := c.client.Get(ctx, unreadKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (c *RedisUnreadCounter) Generation(ctx context.Context, userID string) (int64, error) {
	return readGeneration(ctx, c.client, userID)
}

func (c *RedisUnreadCounter) Fill(ctx context.Context, userID string, count, gen int64) (bool, error) {
	if count < 0 {
		count = 0
	}
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, unreadKey(userID), count, c.ttl)
			return nil
		})
		return err
	}, generationKey(userID))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}

func (c *RedisUnreadCounter) Invalidate(ctx context.Context, userID string) error {
	// the generation outlives the cached total so an expired key cannot reopen an old generation
	keep := 2 * c.ttl
	return invalidateUnread.Run(ctx, c.client,
		[]string{unreadKey(userID), generationKey(userID)},
		keep.Milliseconds(),
	).Err()
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, r stringGetter, userID string) (int64, error) {
	gen, err := r.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// NoopUnreadCounter never caches, so every read falls through to a full recount
type NoopUnreadCounter struct{}

func (NoopUnreadCounter) Get(context.Context, string) (int64, bool, error)         { return 0, false, nil }
func (NoopUnreadCounter) Generation(context.Context, string) (int64, error)        { return 0, nil }
func (NoopUnreadCounter) Fill(context.Context, string, int64, int64) (bool, error) { return false, nil }
func (NoopUnreadCounter) Invalidate(context.Context, string) error                 { return nil }
