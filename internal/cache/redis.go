package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-sync/internal/config"
	"todo-sync/pkg/logger"
)

const (
	todosKeyPrefix = "todos:list:"
	// every list key is tracked here so a commit can drop them all at once
	todosKeySet = "todos:keys"
	// bumped by every Invalidate; a fill is only stored if it is unchanged
	todosGenKey = "todos:gen"
)

var errStaleFill = errors.New("list changed since read")

var (
	client *redis.Client
	once   sync.Once
)

// Client returns the global Redis client (initialized on first use). It
// returns nil when Redis is unreachable; the cache then stays cold.
func Client(ctx context.Context) *redis.Client {
	once.Do(func() {
		cfg := config.Get()
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error(ctx, "Invalid REDIS_URL", "error", err, "url", cfg.RedisURL)
			return
		}
		opts.PoolSize = cfg.RedisPoolSize
		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			logger.Error(ctx, "Redis ping failed", "error", err)
			return
		}
		client = c
		logger.Info(ctx, "Redis client initialized", "pool_size", cfg.RedisPoolSize)
	})
	return client
}

// ListCache keeps serialized GET /todos payloads, one key per limit.
type ListCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewListCache wraps rdb. A nil client yields a cache that always misses.
func NewListCache(rdb *redis.Client, ttl time.Duration) *ListCache {
	return &ListCache{rdb: rdb, ttl: ttl}
}

func listKey(limit int) string {
	if limit <= 0 {
		return todosKeyPrefix + "all"
	}
	return todosKeyPrefix + strconv.Itoa(limit)
}

// Get returns the cached payload for limit. Misses and errors both report false.
func (c *ListCache) Get(ctx context.Context, limit int) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	b, err := c.rdb.Get(ctx, listKey(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get todos failed", "error", err)
		return nil, false
	}
	return b, true
}

// Generation returns the invalidation counter. Read it before loading the
// list and hand it to Set. ok is false when Redis cannot be read.
func (c *ListCache) Generation(ctx context.Context) (uint64, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	gen, err := c.rdb.Get(ctx, todosGenKey).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Debug(ctx, "Redis read todos generation failed", "error", err)
		return 0, false
	}
	return gen, true
}

// Set stores payload for limit with the configured TTL, unless an Invalidate
// has happened since gen was read.
func (c *ListCache) Set(ctx context.Context, limit int, payload []byte, gen uint64) {
	if c == nil || c.rdb == nil {
		return
	}
	key := listKey(limit)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, todosGenKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, c.ttl)
			p.SAdd(ctx, todosKeySet, key)
			return nil
		})
		return err
	}, todosGenKey)
	switch {
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		logger.Debug(ctx, "Skipped stale todos fill", "key", key, "gen", gen)
	case err != nil:
		logger.Debug(ctx, "Redis set todos failed", "error", err)
	}
}

// SetAsync runs Set in the background so the response is not held up.
func (c *ListCache) SetAsync(limit int, payload []byte, gen uint64) {
	if c == nil || c.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.Set(ctx, limit, payload, gen)
	}()
}

// Invalidate drops every cached list so the next read goes to the database,
// and bumps the generation so fills already in flight are discarded.
func (c *ListCache) Invalidate(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Incr(ctx, todosGenKey).Err(); err != nil {
		logger.Debug(ctx, "Redis bump todos generation failed", "error", err)
	}
	keys, err := c.rdb.SMembers(ctx, todosKeySet).Result()
	if err != nil {
		logger.Debug(ctx, "Redis list cached keys failed", "error", err)
		return
	}
	keys = append(keys, todosKeySet)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Debug(ctx, "Redis invalidate todos failed", "error", err)
	}
}

// Ping reports whether Redis answers.
func (c *ListCache) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis unavailable")
	}
	return c.rdb.Ping(ctx).Err()
}
