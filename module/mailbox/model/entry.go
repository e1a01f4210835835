package model

import (
	"time"

	"FleetsIM/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

// 信箱副本状态
const (
	EntryStatusUnread  int32 = 0
	EntryStatusRead    int32 = 1
	EntryStatusDeleted int32 = 2
)

// MailboxEntry 信箱消息副本：每个接收者在每个会话内持有一份，带会话内序列号。
// 归属仅限 owner 本人；只有已读/删除变更会修改它，到期由 TTL 索引清理。
// 唯一约束：(owner_id, conversation_id, message_id) —— 重试写入的幂等保障；
// (owner_id, conversation_id, seq) —— 序列号在信箱内不重复。
type MailboxEntry struct {
	OwnerID        string `bson:"owner_id" json:"owner_id"`               // 接收者（信箱归属人）
	ConversationID string `bson:"conversation_id" json:"conversation_id"` // 会话ID（conv_<min>_<max> / conv_group_<gid>）
	Seq            int64  `bson:"seq" json:"seq"`                         // 该信箱内的自增序列（从1起）
	MessageID      string `bson:"message_id" json:"message_id"`           // 关联的全量消息ID
	SenderID       string `bson:"sender_id" json:"sender_id"`
	SessionType    int32  `bson:"session_type" json:"session_type"` // 0=单聊，1=群聊
	ContentType    int32  `bson:"content_type" json:"content_type"` // 1=文本,2=图片,3=语音,4=视频,5=文件
	Content        string `bson:"content" json:"content"`           // 内容快照（冗余，离线拉取不回源）
	Status         int32  `bson:"status" json:"status"`             // 0=未读,1=已读,2=已删除

	SendTime   int64     `bson:"send_time" json:"send_time"` // 发送时间(Unix ms)
	ReadTime   int64     `bson:"read_time,omitempty" json:"read_time,omitempty"`
	CreateTime time.Time `bson:"create_time" json:"create_time"`
	ExpireTime time.Time `bson:"expire_time" json:"-"` // TTL 索引自动删除
}

func (*MailboxEntry) GetTableName() string {
	return "mailbox_message"
}

func (e *MailboxEntry) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(e.GetTableName())
}
