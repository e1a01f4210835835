package conversation

import "context"

// SummaryStore 摘要持久化抽象：生产实现 Postgres（pg.go），内存实现见 mem.go。
//
// Bump* 是单调条件更新：仅当候选比存量"新"时生效，返回受影响行数。
// 新旧裁决：last_message_time 优先；时间相同比 message_id（雪花ID按时间有序，
// 等长十进制串的字典序即数值序）。同一条消息重放两个条件都取不到严格更新，
// 自然幂等。
type SummaryStore interface {
	// Insert 不存在才插入；已存在返回 false
	Insert(ctx context.Context, s *Summary) (bool, error)
	// BumpAsReceiver 接收方口径：覆盖最后消息字段并未读+1
	BumpAsReceiver(ctx context.Context, convID, owner, msgID, content string, sentAt int64, senderID string) (int64, error)
	// BumpAsSender 发送方口径：只覆盖最后消息字段，未读不动
	BumpAsSender(ctx context.Context, convID, owner, msgID, content string, sentAt int64, senderID string) (int64, error)

	Get(ctx context.Context, convID, owner string) (*Summary, error)
	List(ctx context.Context, owner string) ([]*Summary, error)
	ClearUnread(ctx context.Context, convID, owner string) error
	SetDeleted(ctx context.Context, convID, owner string, deleted bool) (bool, error)
	SetPinned(ctx context.Context, convID, owner string, pinned bool) (bool, error)
	SetMuted(ctx context.Context, convID, owner string, muted bool) (bool, error)
}
