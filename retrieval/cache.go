package retrieval

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// QueryCache caches a query's full ranked result list. Entries are idempotent:
// recomputing on a miss is always correct, just wasted work.
type QueryCache interface {
	Get(ctx context.Context, query string) ([]ScoredPassage, bool)
	Put(ctx context.Context, query string, results []ScoredPassage)
	Clear(ctx context.Context)
}

// lruQueryCache 进程内 LRU 缓存，按条目数限界。
type lruQueryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
}

type lruEntry struct {
	query   string
	results []ScoredPassage
}

// NewLRUQueryCache 创建进程内 LRU 查询缓存。capacity <= 0 时取 128。
func NewLRUQueryCache(capacity int) QueryCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &lruQueryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *lruQueryCache) Get(_ context.Context, query string) ([]ScoredPassage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	results := elem.Value.(*lruEntry).results
	out := make([]ScoredPassage, len(results))
	copy(out, results)
	return out, true
}

func (c *lruQueryCache) Put(_ context.Context, query string, results []ScoredPassage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]ScoredPassage, len(results))
	copy(stored, results)

	if elem, ok := c.entries[query]; ok {
		elem.Value.(*lruEntry).results = stored
		c.order.MoveToFront(elem)
		return
	}
	c.entries[query] = c.order.PushFront(&lruEntry{query: query, results: stored})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).query)
	}
}

func (c *lruQueryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// redisQueryCache 基于 Redis 的共享查询缓存，多实例部署时替代进程内 LRU。
// 容量限界交由 TTL 与 Redis 自身的淘汰策略。
type redisQueryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisQueryCache 创建 Redis 查询缓存。ttl <= 0 时取 10 分钟。
func NewRedisQueryCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "causalrag:query:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisQueryCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "redis_query_cache")),
	}
}

func (c *redisQueryCache) Get(ctx context.Context, query string) ([]ScoredPassage, bool) {
	data, err := c.client.Get(ctx, c.prefix+query).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var results []ScoredPassage
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return results, true
}

func (c *redisQueryCache) Put(ctx context.Context, query string, results []ScoredPassage) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+query, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache put failed", zap.Error(err))
	}
}

func (c *redisQueryCache) Clear(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			c.logger.Warn("cache clear scan failed", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("cache clear delete failed", zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
