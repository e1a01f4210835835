package mailbox

import (
	"context"
	"time"

	"FleetsIM/global"
	"FleetsIM/logger"
	"FleetsIM/module/mailbox/seq"
	"FleetsIM/module/mailbox/store"
	errs "FleetsIM/tools/errs"
	"FleetsIM/tools/safe"

	"go.uber.org/zap"
)

// Incoming 待写入信箱的消息（内容快照随副本冗余存储）
type Incoming struct {
	MessageID   string
	SenderID    string
	SessionType int32 // 0=单聊，1=群聊
	ContentType int32
	Content     string
	SendTime    int64 // Unix ms
}

type Service struct {
	store store.Store
	alloc *seq.Allocator
	cache UnreadCache
	cfg   *global.MailboxConfig
}

func NewService(st store.Store, alloc *seq.Allocator, cache UnreadCache, cfg *global.MailboxConfig) *Service {
	safe.MustNotNil(st, "mailbox store")
	safe.MustNotNil(alloc, "sequence allocator")
	safe.MustNotNil(cache, "unread cache")
	safe.MustNotNil(cfg, "mailbox config")
	return &Service{store: st, alloc: alloc, cache: cache, cfg: cfg}
}

func (s *Service) Store() store.Store { return s.store }

// GenerateSequence 对外暴露的发号入口
func (s *Service) GenerateSequence(ctx context.Context, owner, conv string) (int64, error) {
	return s.alloc.Allocate(ctx, owner, conv)
}

func (s *Service) PeekSequence(ctx context.Context, owner, conv string) (int64, error) {
	return s.alloc.Peek(ctx, owner, conv)
}

// ClearConversation 清空会话：副本全部软删，游标未读清零
func (s *Service) ClearConversation(ctx context.Context, owner, conv string) (int64, error) {
	if owner == "" || conv == "" {
		return 0, errs.ErrArgs.WrapMsg("clearConversation", "owner", owner, "conv", conv)
	}
	n, err := s.store.ClearEntries(ctx, owner, conv)
	if err != nil {
		return 0, errs.WrapMsg(err, "clear entries", "owner", owner, "conv", conv)
	}
	if err := s.store.ZeroUnread(ctx, owner, conv); err != nil {
		return n, errs.WrapMsg(err, "zero unread", "owner", owner, "conv", conv)
	}
	s.invalidateUnread(ctx, owner)
	return n, nil
}

// DeleteMessage 单条软删；命中未读副本时同步回收未读数
func (s *Service) DeleteMessage(ctx context.Context, owner, conv string, sequence int64) error {
	if owner == "" || conv == "" || sequence <= 0 {
		return errs.ErrArgs.WrapMsg("deleteMessage", "owner", owner, "conv", conv, "seq", sequence)
	}
	wasUnread, found, err := s.store.SoftDeleteEntry(ctx, owner, conv, sequence)
	if err != nil {
		return errs.WrapMsg(err, "soft delete", "owner", owner, "conv", conv, "seq", sequence)
	}
	if !found {
		return errs.ErrRecordNotFound.WrapMsg("entry", "owner", owner, "conv", conv, "seq", sequence)
	}
	if wasUnread {
		if err := s.store.DecrUnread(ctx, owner, conv); err != nil {
			logger.Warn("decr unread after delete failed",
				zap.String("owner", owner), zap.String("conv", conv), zap.Error(err))
		}
		s.invalidateUnread(ctx, owner)
	}
	return nil
}

// Repair 游标修复：副本写成功、游标更新失败的半程写，由副本集重导游标
func (s *Service) Repair(ctx context.Context, owner, conv string) (*store.CursorStats, error) {
	if owner == "" || conv == "" {
		return nil, errs.ErrArgs.WrapMsg("repair", "owner", owner, "conv", conv)
	}
	stats, err := s.store.ResyncCursor(ctx, owner, conv)
	if err != nil {
		return nil, errs.WrapMsg(err, "resync cursor", "owner", owner, "conv", conv)
	}
	s.invalidateUnread(ctx, owner)
	logger.Info("mailbox cursor repaired",
		zap.String("owner", owner), zap.String("conv", conv),
		zap.Int64("maxSeq", stats.MaxSeq), zap.Int64("unread", stats.UnreadCount))
	return stats, nil
}

// invalidateUnread 缓存失效：尽力而为，失败只记日志（下一次TTL到期兜底）
func (s *Service) invalidateUnread(ctx context.Context, owner string) {
	if err := s.cache.Del(ctx, owner); err != nil {
		logger.Warn("unread cache invalidate failed", zap.String("owner", owner), zap.Error(err))
	}
}

// withRetry 瞬时错误的有限重试（依赖边界，不吞错）
func (s *Service) withRetry(ctx context.Context, op string, f func() error) error {
	retries := s.cfg.WriteRetries
	if retries <= 0 {
		retries = 1
	}
	var err error
	for i := 0; i < retries; i++ {
		if err = f(); err == nil {
			return nil
		}
		if !s.store.IsTransient(err) && !errs.IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	return errs.ErrStoreUnavailable.WrapMsg(op, "retries", retries, "err", err)
}
