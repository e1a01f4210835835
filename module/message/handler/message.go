package handler

import (
	"github.com/gin-gonic/gin"

	"FleetsIM/module/message"
	errs "FleetsIM/tools/errs"
)

// SendMessage 发送消息：正本落库即确认，扇出异步
func (h *Handler) SendMessage(c *gin.Context) {
	var req message.SendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind send req", "err", err))
		return
	}
	msg, err := h.Sender.Send(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message_id": msg.ID, "send_time": msg.SendTime})
}

// GetMessage 按ID取正本
func (h *Handler) GetMessage(c *gin.Context) {
	id := c.Query("message_id")
	if id == "" {
		fail(c, errs.ErrArgs.WrapMsg("get message", "reason", "missing message_id"))
		return
	}
	msg, err := h.Sender.Canonical().Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, msg)
}

type deleteMessageReq struct {
	OwnerID        string `json:"owner_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	Seq            int64  `json:"seq" binding:"required"`
}

// DeleteMessage 删除自己信箱里的一条副本（不影响他人）
func (h *Handler) DeleteMessage(c *gin.Context) {
	var req deleteMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bind delete req", "err", err))
		return
	}
	if err := h.Mailbox.DeleteMessage(c.Request.Context(), req.OwnerID, req.ConversationID, req.Seq); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
