package seq

import (
	"context"
	"time"

	"FleetsIM/logger"
	errs "FleetsIM/tools/errs"

	"go.uber.org/zap"
)

// FloorSource 持久层序列水位：计数器缺失/过期时的回填来源。
// 必须由不过期的数据兜底——副本有保留期 TTL，单靠副本 max(seq) 会在长期
// 闲置后塌回 0；由信箱 store 提供 max(游标 max_seq, 副本最大 seq)。
type FloorSource interface {
	MaxDurableSeq(ctx context.Context, owner, conv string) (int64, error)
}

// Allocator 按 (owner, conversation) 发放单调递增序列号，首号为1。
//
// 计数器带不活跃 TTL。过期不会导致序列回退：发现 key 缺失时先用持久水位
// 做只升不降的回填，再 INCR。两个并发回填互不破坏（SetMax 单调），
// 发号本身始终是单次原子 INCR。
type Allocator struct {
	counter Counter
	floor   FloorSource
	prefix  string
	ttl     time.Duration
}

func NewAllocator(counter Counter, floor FloorSource, prefix string, ttl time.Duration) *Allocator {
	if prefix == "" {
		prefix = "mailbox:seq:"
	}
	return &Allocator{counter: counter, floor: floor, prefix: prefix, ttl: ttl}
}

func (a *Allocator) key(owner, conv string) string {
	return a.prefix + owner + ":" + conv
}

// Allocate 发一个号
func (a *Allocator) Allocate(ctx context.Context, owner, conv string) (int64, error) {
	if owner == "" || conv == "" {
		return 0, errs.ErrArgs.WrapMsg("allocate", "owner", owner, "conv", conv)
	}
	key := a.key(owner, conv)

	_, ok, err := a.counter.Get(ctx, key)
	if err != nil {
		return 0, errs.ErrStoreUnavailable.WrapMsg("counter get", "key", key, "err", err)
	}
	reseeded := false
	if !ok && a.floor != nil {
		// 计数器缺失（新会话或 TTL 过期）：回填持久水位，避免序列重用
		max, err := a.floor.MaxDurableSeq(ctx, owner, conv)
		if err != nil {
			return 0, errs.ErrStoreUnavailable.WrapMsg("floor query", "key", key, "err", err)
		}
		if max > 0 {
			if err := a.counter.SetMax(ctx, key, max); err != nil {
				return 0, errs.ErrStoreUnavailable.WrapMsg("counter seed", "key", key, "err", err)
			}
			reseeded = true
			logger.Debug("seq counter reseeded",
				zap.String("key", key), zap.Int64("floor", max))
		}
	}

	seq, err := a.counter.IncrBy(ctx, key, 1)
	if err != nil {
		return 0, errs.ErrStoreUnavailable.WrapMsg("counter incr", "key", key, "err", err)
	}
	if (seq == 1 || reseeded) && a.ttl > 0 {
		// 首号与回填重建的 key 都要布防过期
		if err := a.counter.Expire(ctx, key, a.ttl); err != nil {
			logger.Warn("seq counter expire failed", zap.String("key", key), zap.Error(err))
		}
	}
	return seq, nil
}

// BatchAllocate 按 owner 独立发号：单个失败不阻塞其他人，失败按 owner 上报
func (a *Allocator) BatchAllocate(ctx context.Context, owners []string, conv string) (map[string]int64, map[string]error) {
	seqs := make(map[string]int64, len(owners))
	fails := make(map[string]error)
	for _, owner := range owners {
		s, err := a.Allocate(ctx, owner, conv)
		if err != nil {
			fails[owner] = err
			continue
		}
		seqs[owner] = s
	}
	return seqs, fails
}

// Peek 只看不发；absent 返回 0
func (a *Allocator) Peek(ctx context.Context, owner, conv string) (int64, error) {
	if owner == "" || conv == "" {
		return 0, errs.ErrArgs.WrapMsg("peek", "owner", owner, "conv", conv)
	}
	v, _, err := a.counter.Get(ctx, a.key(owner, conv))
	if err != nil {
		return 0, errs.ErrStoreUnavailable.WrapMsg("counter get", "owner", owner, "conv", conv, "err", err)
	}
	return v, nil
}
