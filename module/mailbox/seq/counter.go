package seq

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter 原子计数器抽象：一次 IncrBy 往返完成发号，不做读改写。
// 生产实现 Redis；内存实现见下（测试用）。
type Counter interface {
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	// Get 返回当前值；absent 时 ok=false
	Get(ctx context.Context, key string) (v int64, ok bool, err error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// SetMax 只升不降：回填持久层水位时用，并发回填安全
	SetMax(ctx context.Context, key string, v int64) error
}

// 只升不降的回填；KEYS[1]=key ARGV[1]=floor
var luaSetMax = redis.NewScript(`
  local k = KEYS[1]
  local floor = tonumber(ARGV[1])
  local v = redis.call('GET', k)
  if (not v) or (tonumber(v) < floor) then
    redis.call('SET', k, floor)
  end
  return 1
`)

type RedisCounter struct {
	Rdb redis.UniversalClient
}

func (c *RedisCounter) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return c.Rdb.IncrBy(ctx, key, n).Result()
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := c.Rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.Rdb.Expire(ctx, key, ttl).Err()
}

func (c *RedisCounter) SetMax(ctx context.Context, key string, v int64) error {
	return luaSetMax.Run(ctx, c.Rdb, []string{key}, v).Err()
}

// memCounter 内存实现：测试用
type memCounter struct {
	mu sync.Mutex
	m  map[string]int64
}

func NewMemCounter() Counter {
	return &memCounter{m: make(map[string]int64)}
}

func (c *memCounter) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] += n
	return c.m[key], nil
}

func (c *memCounter) Get(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCounter) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (c *memCounter) SetMax(_ context.Context, key string, v int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m[key] < v {
		c.m[key] = v
	}
	return nil
}

// Forget 模拟计数器过期（TTL 碰撞场景的测试钩子）
func (c *memCounter) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}
