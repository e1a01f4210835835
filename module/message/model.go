package message

import (
	"context"

	"FleetsIM/module/conversation"
)

// 会话类型沿用 conversation 包的定义
const (
	SessionSingle = conversation.TypeSingle
	SessionGroup  = conversation.TypeGroup
)

// Message 消息正本（规范记录）。副本冗余存储在各接收者信箱里，
// 正本是事实源：扇出半途失败时据此补投。
type Message struct {
	ID          string `json:"id"` // 雪花ID，按时间有序
	SenderID    string `json:"sender_id"`
	TargetID    string `json:"target_id"` // 单聊=对方用户ID，群聊=群ID
	SessionType int32  `json:"session_type"`
	ContentType int32  `json:"content_type"`
	Content     string `json:"content"`
	SendTime    int64  `json:"send_time"` // Unix ms，服务端赋值
}

// 扇出状态机。正本落库后即可对发送方确认，扇出异步推进。
const (
	StateSubmitted          = "submitted"
	StateCanonicalPersisted = "canonical_persisted"
	StateFanoutInFlight     = "fanout_in_flight"
	StateFanoutComplete     = "fanout_complete"
	StateFanoutPartial      = "fanout_partial" // 部分失败，等补偿重投
)

// CanonicalStore 正本存储
type CanonicalStore interface {
	Save(ctx context.Context, m *Message) error
	Get(ctx context.Context, id string) (*Message, error)
}

// GroupResolver 群成员解析
type GroupResolver interface {
	GetMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// Publisher 下游事件发布（Kafka 等），按会话键分区保序
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// FanoutReport 单条消息的扇出结果，交给 ReportSink 供补偿侧消费
type FanoutReport struct {
	MessageID      string   `json:"message_id"`
	ConversationID string   `json:"conversation_id"`
	State          string   `json:"state"`
	Succeeded      []string `json:"succeeded,omitempty"`
	Failed         []string `json:"failed,omitempty"`
}

// ReportSink 扇出报告出口
type ReportSink interface {
	Report(ctx context.Context, r *FanoutReport)
}
