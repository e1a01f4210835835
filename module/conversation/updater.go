package conversation

import (
	"context"

	"FleetsIM/logger"
	errs "FleetsIM/tools/errs"
)

// Updater 会话摘要维护入口：消息落库后按 owner 维度刷新摘要行。
type Updater struct {
	store   SummaryStore
	snippet int // 摘要内容截断长度（rune）
}

func NewUpdater(store SummaryStore, snippetLen int) *Updater {
	return &Updater{store: store, snippet: snippetLen}
}

func (u *Updater) Store() SummaryStore { return u.store }

// Applied 单次摘要刷新的结果
type Applied struct {
	Inserted bool // 首次建行
	Updated  bool // 条件更新生效
	Stale    bool // 存量更新：良性空操作
}

// apply upsert 流程：先条件更新，未命中则插入，插入撞行再更新一次。
// 两轮都没生效说明存量行已经更"新"（乱序或重放），按空操作收尾。
func (u *Updater) apply(ctx context.Context, owner, target string, typ int32, convID, msgID, content string, sentAt int64, senderID string, asReceiver bool) (*Applied, error) {
	if owner == "" || convID == "" || msgID == "" {
		return nil, errs.ErrArgs.WrapMsg("summary apply", "owner", owner, "conv", convID, "msgId", msgID)
	}
	snip := Truncate(content, u.snippet)

	bump := u.store.BumpAsSender
	if asReceiver {
		bump = u.store.BumpAsReceiver
	}

	n, err := bump(ctx, convID, owner, msgID, snip, sentAt, senderID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return &Applied{Updated: true}, nil
	}

	unread := int64(0)
	if asReceiver {
		unread = 1
	}
	inserted, err := u.store.Insert(ctx, &Summary{
		ConversationID:     convID,
		Type:               typ,
		OwnerID:            owner,
		TargetID:           target,
		UnreadCount:        unread,
		LastMessageID:      msgID,
		LastMessageContent: snip,
		LastMessageTime:    sentAt,
		LastSenderID:       senderID,
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		return &Applied{Inserted: true}, nil
	}

	// 插入撞行：并发先建了行，再试一次条件更新
	n, err = bump(ctx, convID, owner, msgID, snip, sentAt, senderID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return &Applied{Updated: true}, nil
	}
	logger.Infof("summary stale, skip: owner=%s conv=%s msgId=%s", owner, convID, msgID)
	return &Applied{Stale: true}, nil
}

// ApplyAsReceiver 接收方摘要：最后消息字段 + 未读+1
func (u *Updater) ApplyAsReceiver(ctx context.Context, owner, target string, typ int32, convID, msgID, content string, sentAt int64, senderID string) (*Applied, error) {
	return u.apply(ctx, owner, target, typ, convID, msgID, content, sentAt, senderID, true)
}

// ApplyAsSender 发送方摘要：只刷新最后消息字段
func (u *Updater) ApplyAsSender(ctx context.Context, owner, target string, typ int32, convID, msgID, content string, sentAt int64, senderID string) (*Applied, error) {
	return u.apply(ctx, owner, target, typ, convID, msgID, content, sentAt, senderID, false)
}

func (u *Updater) List(ctx context.Context, owner string) ([]*Summary, error) {
	if owner == "" {
		return nil, errs.ErrArgs.WrapMsg("list summaries", "owner", owner)
	}
	return u.store.List(ctx, owner)
}

func (u *Updater) Get(ctx context.Context, convID, owner string) (*Summary, error) {
	if owner == "" || convID == "" {
		return nil, errs.ErrArgs.WrapMsg("get summary", "owner", owner, "conv", convID)
	}
	return u.store.Get(ctx, convID, owner)
}

func (u *Updater) ClearUnread(ctx context.Context, convID, owner string) error {
	if owner == "" || convID == "" {
		return errs.ErrArgs.WrapMsg("clear unread", "owner", owner, "conv", convID)
	}
	return u.store.ClearUnread(ctx, convID, owner)
}

func (u *Updater) Delete(ctx context.Context, convID, owner string) error {
	ok, err := u.store.SetDeleted(ctx, convID, owner, true)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("delete summary", "conv", convID, "owner", owner)
	}
	return nil
}

func (u *Updater) SetPinned(ctx context.Context, convID, owner string, pinned bool) error {
	ok, err := u.store.SetPinned(ctx, convID, owner, pinned)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("pin summary", "conv", convID, "owner", owner)
	}
	return nil
}

func (u *Updater) SetMuted(ctx context.Context, convID, owner string, muted bool) error {
	ok, err := u.store.SetMuted(ctx, convID, owner, muted)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("mute summary", "conv", convID, "owner", owner)
	}
	return nil
}
