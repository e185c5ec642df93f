package handler

import (
	"github.com/gin-gonic/gin"

	"pdf-chat-go/internal/service"
)

// SessionHandler 处理与会话及其对话历史相关的 API 请求。
type SessionHandler struct {
	service service.ChatService
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(service service.ChatService) *SessionHandler {
	return &SessionHandler{service: service}
}

// List 返回当前所有未过期的会话。
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.service.ListSessions(c.Request.Context())
	if err != nil {
		writeError(c, "获取会话列表", err)
		return
	}
	writeOK(c, msgSuccess, sessions)
}

// History 返回会话的对话历史。
func (h *SessionHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "获取对话历史", err)
		return
	}
	writeOK(c, msgSuccess, history)
}
