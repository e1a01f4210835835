package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	errs "FleetsIM/tools/errs"
)

func queryInt64(c *gin.Context, key string, def int64) int64 {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// SyncMessages 单会话增量拉取：from_seq 之后按序号升序翻页
func (h *Handler) SyncMessages(c *gin.Context) {
	owner := c.Query("owner_id")
	conv := c.Query("conversation_id")
	fromSeq := queryInt64(c, "from_seq", 0)
	pageSize := queryInt64(c, "page_size", 0)

	res, err := h.Mailbox.Pull(c.Request.Context(), owner, conv, fromSeq, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"entries":  res.Entries,
		"has_more": res.HasMore,
		"max_seq":  res.MaxSeq,
	})
}

// PullOfflineMessages 登录补拉：该用户全部会话 last_seq 之后的副本
func (h *Handler) PullOfflineMessages(c *gin.Context) {
	owner := c.Query("owner_id")
	lastSeq := queryInt64(c, "last_seq", 0)

	entries, err := h.Mailbox.PullAllOffline(c.Request.Context(), owner, lastSeq)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"entries": entries, "count": len(entries)})
}

type markAsReadReq struct {
	OwnerID        string `json:"owner_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	Seq            int64  `json:"seq" binding:"required"`
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	var req markAsReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind markAsRead req", "err", err))
		return
	}
	if err := h.Mailbox.MarkRead(c.Request.Context(), req.OwnerID, req.ConversationID, req.Seq); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type batchMarkAsReadReq struct {
	OwnerID        string `json:"owner_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	// to_seq=0 是合法的空操作，交给服务层校验 >=0
	ToSeq int64 `json:"to_seq"`
}

// BatchMarkAsRead 到某序号为止批量已读
func (h *Handler) BatchMarkAsRead(c *gin.Context) {
	var req batchMarkAsReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind batchMarkAsRead req", "err", err))
		return
	}
	n, err := h.Mailbox.MarkReadUpTo(c.Request.Context(), req.OwnerID, req.ConversationID, req.ToSeq)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"marked": n})
}

// GetUnreadCount 总未读 + 按会话未读（缓存旁路）
func (h *Handler) GetUnreadCount(c *gin.Context) {
	owner := c.Query("owner_id")
	res, err := h.Mailbox.GetUnreadCount(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *Handler) GetConversationUnreadCount(c *gin.Context) {
	owner := c.Query("owner_id")
	conv := c.Query("conversation_id")
	n, err := h.Mailbox.GetConversationUnreadCount(c.Request.Context(), owner, conv)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"unread": n})
}

type convReq struct {
	OwnerID        string `json:"owner_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
}

// ClearConversation 清空会话副本并清零未读
func (h *Handler) ClearConversation(c *gin.Context) {
	var req convReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind clearConversation req", "err", err))
		return
	}
	n, err := h.Mailbox.ClearConversation(c.Request.Context(), req.OwnerID, req.ConversationID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"cleared": n})
}

// RepairCursor 游标修复：由副本集重导 max_seq/未读/最后消息指针
func (h *Handler) RepairCursor(c *gin.Context) {
	var req convReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind repair req", "err", err))
		return
	}
	stats, err := h.Mailbox.Repair(c.Request.Context(), req.OwnerID, req.ConversationID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}

// PeekSequence 只看当前序列，不发号；absent 返回 0
func (h *Handler) PeekSequence(c *gin.Context) {
	owner := c.Query("owner_id")
	conv := c.Query("conversation_id")
	seq, err := h.Mailbox.PeekSequence(c.Request.Context(), owner, conv)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"seq": seq})
}

// GenerateSequence 发号（调试/内部用）
func (h *Handler) GenerateSequence(c *gin.Context) {
	var req convReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind generateSequence req", "err", err))
		return
	}
	seq, err := h.Mailbox.GenerateSequence(c.Request.Context(), req.OwnerID, req.ConversationID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"seq": seq})
}
