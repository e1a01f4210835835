package conversation

import "time"

// 会话类型
const (
	TypeSingle int32 = 0
	TypeGroup  int32 = 1
)

// Summary 会话摘要：owner 维度的反规范化"最后一条消息"行（关系库侧）。
// last_message_time 对每个 (owner, conversation) 单调不降——并发写之间靠
// 条件更新裁决，不加锁。
type Summary struct {
	ConversationID string `json:"conversation_id"`
	Type           int32  `json:"type"`
	OwnerID        string `json:"owner_id"`
	TargetID       string `json:"target_id"` // 单聊=对方用户ID，群聊=群ID

	UnreadCount int64 `json:"unread_count"` // ≥0

	LastMessageID      string `json:"last_message_id"`
	LastMessageContent string `json:"last_message_content"` // 截断快照
	LastMessageTime    int64  `json:"last_message_time"`    // Unix ms
	LastSenderID       string `json:"last_sender_id"`

	IsPinned  bool `json:"is_pinned"`
	IsMuted   bool `json:"is_muted"`
	IsDeleted bool `json:"is_deleted"`

	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// ConvID 会话ID推导。
// 单聊：conv_<小ID>_<大ID>（双方推导结果一致）；群聊：conv_group_<群ID>
func ConvID(typ int32, a, b string) string {
	if typ == TypeSingle {
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		return "conv_" + lo + "_" + hi
	}
	return "conv_group_" + b
}

// Truncate 摘要内容截断（按 rune，超长加省略号）
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
