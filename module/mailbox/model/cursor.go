package model

import (
	"time"

	"FleetsIM/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

// MailboxCursor 信箱游标：每个 (owner, conversation) 一条元数据记录。
// 首次写入时懒创建；每次写入与已读变更都会更新；只清零不删除。
// unread_count 与未读副本数最终一致（缓存/异步窗口内允许漂移）。
type MailboxCursor struct {
	OwnerID          string `bson:"owner_id"`
	ConversationID   string `bson:"conversation_id"`
	ConversationType int32  `bson:"conversation_type"` // 0=单聊，1=群聊

	MaxSeq      int64 `bson:"max_seq"`      // 已写入的最大序列（单调不降）
	UnreadCount int64 `bson:"unread_count"` // ≥0

	LastMessageID   string `bson:"last_message_id"`
	LastMessageTime int64  `bson:"last_message_time"` // Unix ms，单调不降

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

func (*MailboxCursor) GetTableName() string {
	return "user_mailbox"
}

func (c *MailboxCursor) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(c.GetTableName())
}
