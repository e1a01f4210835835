package store

import (
	"context"

	"FleetsIM/module/mailbox/model"
)

// CursorStats 由副本集合重新推导出的游标快照（修复用）
type CursorStats struct {
	MaxSeq          int64  `json:"max_seq"`
	UnreadCount     int64  `json:"unread_count"`
	LastMessageID   string `json:"last_message_id"`
	LastMessageTime int64  `json:"last_message_time"`
}

// Store 信箱持久化抽象：生产实现 Mongo，内存实现见 mem.go（测试用）。
// 写入幂等依赖 (owner, conversation, message_id) 唯一约束，冲突由 IsDupEntry 识别。
type Store interface {
	// —— 副本 ——
	InsertEntry(ctx context.Context, e *model.MailboxEntry) error
	GetEntryByMessageID(ctx context.Context, owner, conv, messageID string) (*model.MailboxEntry, error)
	MarkEntryRead(ctx context.Context, owner, conv string, seq, readAtMS int64) (bool, error)
	MarkEntriesReadUpTo(ctx context.Context, owner, conv string, toSeq, readAtMS int64) (int64, error)
	SoftDeleteEntry(ctx context.Context, owner, conv string, seq int64) (wasUnread, found bool, err error)
	ClearEntries(ctx context.Context, owner, conv string) (int64, error)
	RangeEntries(ctx context.Context, owner, conv string, fromSeq, limit int64) ([]*model.MailboxEntry, error)
	CountUnread(ctx context.Context, owner, conv string) (int64, error)
	CountUnreadTotal(ctx context.Context, owner string) (int64, error)
	// MaxEntrySeq 含已删除副本：序列空间不能因软删而回缩
	MaxEntrySeq(ctx context.Context, owner, conv string) (int64, error)
	// MaxDurableSeq 发号回填水位：max(游标 max_seq, 副本最大 seq)。
	// 副本会被保留期 TTL 清理，游标永不删除——闲置超期后由游标兜底
	MaxDurableSeq(ctx context.Context, owner, conv string) (int64, error)

	// —— 游标 ——
	EnsureCursor(ctx context.Context, owner, conv string, convType int32) error
	GetCursor(ctx context.Context, owner, conv string) (*model.MailboxCursor, error)
	ListCursors(ctx context.Context, owner string) ([]*model.MailboxCursor, error)
	BumpCursor(ctx context.Context, owner, conv string, seq int64, messageID string, sendTimeMS int64, incrUnread bool) error
	SetUnread(ctx context.Context, owner, conv string, n int64) error
	DecrUnread(ctx context.Context, owner, conv string) error
	ZeroUnread(ctx context.Context, owner, conv string) error
	ResyncCursor(ctx context.Context, owner, conv string) (*CursorStats, error)

	// —— 错误分类 ——
	IsDupEntry(err error) bool
	IsNotFound(err error) bool
	IsTransient(err error) bool
}
