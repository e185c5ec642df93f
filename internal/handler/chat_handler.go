package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pdf-chat-go/internal/service"
	"pdf-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatRequest 是 POST /chat 的请求体。
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Question  string `json:"question"`
}

// ChatHandler 负责处理问答请求，包括普通 HTTP 与 WebSocket 两种方式。
type ChatHandler struct {
	chatService service.ChatService
	timeout     time.Duration
}

// NewChatHandler 创建一个新的 ChatHandler。timeout 限制 WebSocket 中每个问题的处理时间，0 表示不限制。
func NewChatHandler(chatService service.ChatService, timeout time.Duration) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		timeout:     timeout,
	}
}

// formatSeconds 以两位小数输出响应耗时。
func formatSeconds(s float64) string {
	return fmt.Sprintf("%.2f", s)
}

func answerPayload(res *service.AskResult) gin.H {
	return gin.H{
		"response":      res.Answer,
		"response_time": formatSeconds(res.ResponseTime),
		"mode":          res.Mode,
		"outcome":       res.Outcome,
	}
}

// Chat 处理一次问答。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": msgBadRequest, "data": nil})
		return
	}

	res, err := h.chatService.Ask(c.Request.Context(), req.SessionID, req.Question)
	if err != nil {
		writeError(c, "问答", err)
		return
	}
	writeOK(c, msgSuccess, answerPayload(res))
}

// wsMessage 是客户端发来的消息；也接受纯文本作为问题。
type wsMessage struct {
	Question string `json:"question"`
}

// Handle 处理一个传入的 WebSocket 连接。每收到一个问题返回一条 JSON 回答。
func (h *ChatHandler) Handle(c *gin.Context) {
	sessionID := c.Param("sessionId")
	// 升级前先确认会话可用（必要时重建），不可用时返回普通的 404
	if err := h.chatService.Resume(c.Request.Context(), sessionID); err != nil {
		writeError(c, "建立聊天连接", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，会话: %s", sessionID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		question := strings.TrimSpace(string(message))
		if len(question) > 0 && question[0] == '{' {
			var msg wsMessage
			if err := json.Unmarshal(message, &msg); err == nil {
				question = msg.Question
			}
		}

		ctx := c.Request.Context()
		cancel := func() {}
		if h.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
		}
		res, err := h.chatService.Ask(ctx, sessionID, question)
		cancel()

		var resp gin.H
		if err != nil {
			status, msg := errorStatus(err)
			log.Warnf("WebSocket 问答失败, session: %s, error: %v", sessionID, err)
			resp = gin.H{"type": "error", "code": status, "message": msg}
		} else {
			resp = answerPayload(res)
			resp["type"] = "answer"
		}
		resp["timestamp"] = time.Now().UnixMilli()

		b, _ := json.Marshal(resp)
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			break
		}
	}
}
