package mailbox

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnreadCount 未读数汇总
type UnreadCount struct {
	Total           int64            `json:"total"`
	PerConversation map[string]int64 `json:"per_conversation"`
}

// UnreadCache 未读数缓存（cache-aside，短TTL）。失效是 fire-and-forget，
// 消费方需容忍 TTL 以内的陈旧值。
type UnreadCache interface {
	Get(ctx context.Context, owner string) (*UnreadCount, bool, error)
	Set(ctx context.Context, owner string, v *UnreadCount, ttl time.Duration) error
	Del(ctx context.Context, owner string) error
}

type RedisUnreadCache struct {
	Rdb    redis.UniversalClient
	Prefix string // mailbox:unread:
}

func (c *RedisUnreadCache) key(owner string) string { return c.Prefix + owner }

func (c *RedisUnreadCache) Get(ctx context.Context, owner string) (*UnreadCount, bool, error) {
	raw, err := c.Rdb.Get(ctx, c.key(owner)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v UnreadCount
	if err := json.Unmarshal(raw, &v); err != nil {
		// 缓存坏了当 miss 处理
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *RedisUnreadCache) Set(ctx context.Context, owner string, v *UnreadCount, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Rdb.Set(ctx, c.key(owner), raw, ttl).Err()
}

func (c *RedisUnreadCache) Del(ctx context.Context, owner string) error {
	return c.Rdb.Del(ctx, c.key(owner)).Err()
}

// memUnreadCache 内存实现：测试用
type memUnreadCache struct {
	mu sync.Mutex
	m  map[string]memUnreadItem
}

type memUnreadItem struct {
	v   *UnreadCount
	exp time.Time
}

func NewMemUnreadCache() UnreadCache {
	return &memUnreadCache{m: make(map[string]memUnreadItem)}
}

func (c *memUnreadCache) Get(_ context.Context, owner string) (*UnreadCount, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.m[owner]
	if !ok || time.Now().After(it.exp) {
		delete(c.m, owner)
		return nil, false, nil
	}
	return it.v, true, nil
}

func (c *memUnreadCache) Set(_ context.Context, owner string, v *UnreadCount, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[owner] = memUnreadItem{v: v, exp: time.Now().Add(ttl)}
	return nil
}

func (c *memUnreadCache) Del(_ context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, owner)
	return nil
}
