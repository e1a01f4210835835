package mailbox

import (
	"context"
	"time"

	errs "FleetsIM/tools/errs"
)

// MarkRead 单条未读→已读。已读/已删或不存在都按空操作成功返回，
// 只有真正发生转移时才回收未读数并使缓存失效。
func (s *Service) MarkRead(ctx context.Context, owner, conv string, sequence int64) error {
	if owner == "" || conv == "" || sequence <= 0 {
		return errs.ErrArgs.WrapMsg("markRead", "owner", owner, "conv", conv, "seq", sequence)
	}
	updated, err := s.store.MarkEntryRead(ctx, owner, conv, sequence, time.Now().UnixMilli())
	if err != nil {
		return errs.WrapMsg(err, "mark read", "owner", owner, "conv", conv, "seq", sequence)
	}
	if !updated {
		return nil
	}
	if err := s.store.DecrUnread(ctx, owner, conv); err != nil {
		return errs.WrapMsg(err, "decr unread", "owner", owner, "conv", conv)
	}
	s.invalidateUnread(ctx, owner)
	return nil
}

// MarkReadUpTo 批量已读：seq ≤ toSeq 的未读副本全部转已读。可重复调用，
// 已读副本不再计数；未读数按副本重新聚合回写（补偿半程写漂移）。
func (s *Service) MarkReadUpTo(ctx context.Context, owner, conv string, toSeq int64) (int64, error) {
	if owner == "" || conv == "" || toSeq < 0 {
		return 0, errs.ErrArgs.WrapMsg("markReadUpTo", "owner", owner, "conv", conv, "toSeq", toSeq)
	}
	n, err := s.store.MarkEntriesReadUpTo(ctx, owner, conv, toSeq, time.Now().UnixMilli())
	if err != nil {
		return 0, errs.WrapMsg(err, "mark read up to", "owner", owner, "conv", conv, "toSeq", toSeq)
	}
	if n == 0 {
		return 0, nil
	}
	unread, err := s.store.CountUnread(ctx, owner, conv)
	if err != nil {
		return n, errs.WrapMsg(err, "recount unread", "owner", owner, "conv", conv)
	}
	if err := s.store.SetUnread(ctx, owner, conv, unread); err != nil {
		return n, errs.WrapMsg(err, "set unread", "owner", owner, "conv", conv)
	}
	s.invalidateUnread(ctx, owner)
	return n, nil
}

// GetUnreadCount 总未读 + 各会话未读。cache-aside：命中直接返回（允许TTL内
// 漂移），miss 时总数扫副本、分会话取游标计数，回填缓存。
func (s *Service) GetUnreadCount(ctx context.Context, owner string) (*UnreadCount, error) {
	if owner == "" {
		return nil, errs.ErrArgs.WrapMsg("getUnreadCount: empty owner")
	}
	if v, ok, err := s.cache.Get(ctx, owner); err == nil && ok {
		return v, nil
	}

	total, err := s.store.CountUnreadTotal(ctx, owner)
	if err != nil {
		return nil, errs.WrapMsg(err, "count unread total", "owner", owner)
	}
	cursors, err := s.store.ListCursors(ctx, owner)
	if err != nil {
		return nil, errs.WrapMsg(err, "list cursors", "owner", owner)
	}

	v := &UnreadCount{Total: total, PerConversation: make(map[string]int64, len(cursors))}
	for _, c := range cursors {
		if c.UnreadCount > 0 {
			v.PerConversation[c.ConversationID] = c.UnreadCount
		}
	}
	_ = s.cache.Set(ctx, owner, v, s.cfg.UnreadCacheTTL())
	return v, nil
}

// GetConversationUnreadCount 单会话未读：直接聚合，不过缓存
func (s *Service) GetConversationUnreadCount(ctx context.Context, owner, conv string) (int64, error) {
	if owner == "" || conv == "" {
		return 0, errs.ErrArgs.WrapMsg("getConversationUnreadCount", "owner", owner, "conv", conv)
	}
	n, err := s.store.CountUnread(ctx, owner, conv)
	if err != nil {
		return 0, errs.WrapMsg(err, "count unread", "owner", owner, "conv", conv)
	}
	return n, nil
}
