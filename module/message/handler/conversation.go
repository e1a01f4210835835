package handler

import (
	"github.com/gin-gonic/gin"

	errs "FleetsIM/tools/errs"
)

// ListConversations 会话列表：置顶在前，最后消息时间倒序
func (h *Handler) ListConversations(c *gin.Context) {
	owner := c.Query("owner_id")
	list, err := h.Summary.List(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"conversations": list})
}

// ClearConversationUnread 摘要未读清零（客户端进入会话时调用）
func (h *Handler) ClearConversationUnread(c *gin.Context) {
	var req convReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind clearUnread req", "err", err))
		return
	}
	if err := h.Summary.ClearUnread(c.Request.Context(), req.ConversationID, req.OwnerID); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type flagReq struct {
	OwnerID        string `json:"owner_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	Value          bool   `json:"value"`
}

func (h *Handler) PinConversation(c *gin.Context) {
	var req flagReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind pin req", "err", err))
		return
	}
	if err := h.Summary.SetPinned(c.Request.Context(), req.ConversationID, req.OwnerID, req.Value); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) MuteConversation(c *gin.Context) {
	var req flagReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind mute req", "err", err))
		return
	}
	if err := h.Summary.SetMuted(c.Request.Context(), req.ConversationID, req.OwnerID, req.Value); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	var req convReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind delete conv req", "err", err))
		return
	}
	if err := h.Summary.Delete(c.Request.Context(), req.ConversationID, req.OwnerID); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
