package handler

import (
	"net/http"

	"FleetsIM/module/conversation"
	"FleetsIM/module/mailbox"
	"FleetsIM/module/message"
	errs "FleetsIM/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler 消息写路径与信箱读路径的 HTTP 入口
type Handler struct {
	Sender  *message.Sender
	Mailbox *mailbox.Service
	Summary *conversation.Updater
}

func New(sender *message.Sender, mbox *mailbox.Service, summary *conversation.Updater) *Handler {
	return &Handler{Sender: sender, Mailbox: mbox, Summary: summary}
}

// Register 路由注册
func (h *Handler) Register(r *gin.Engine) {
	msg := r.Group("/api/message")
	{
		msg.POST("/send", h.SendMessage)
		msg.POST("/delete", h.DeleteMessage)
		msg.GET("/get", h.GetMessage)
	}

	box := r.Group("/api/mailbox")
	{
		box.GET("/sync", h.SyncMessages)
		box.GET("/pullOffline", h.PullOfflineMessages)
		box.POST("/markAsRead", h.MarkAsRead)
		box.POST("/batchMarkAsRead", h.BatchMarkAsRead)
		box.GET("/unreadCount", h.GetUnreadCount)
		box.GET("/conversationUnreadCount", h.GetConversationUnreadCount)
		box.POST("/clearConversation", h.ClearConversation)
		box.POST("/repair", h.RepairCursor)
		box.POST("/generateSequence", h.GenerateSequence)
		box.GET("/peekSequence", h.PeekSequence)
	}

	conv := r.Group("/api/conversation")
	{
		conv.GET("/list", h.ListConversations)
		conv.POST("/clearUnread", h.ClearConversationUnread)
		conv.POST("/pin", h.PinConversation)
		conv.POST("/mute", h.MuteConversation)
		conv.POST("/delete", h.DeleteConversation)
	}
}

// ok 统一成功响应
func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": data})
}

// fail 错误码到 HTTP 状态的映射：参数 400、不存在 404、依赖不可用 503，其余 500。
// 未归类错误不把内部细节漏给客户端
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsArgs(err):
		status = http.StatusBadRequest
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsTransient(err):
		status = http.StatusServiceUnavailable
	default:
		err = errs.ErrInternal
	}
	c.JSON(status, gin.H{"code": errs.CodeOf(err), "msg": err.Error()})
}
