// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 代表会话历史中的单条消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage 创建一条用户消息。
func NewUserMessage(content string, at time.Time) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, Timestamp: at}
}

// NewAssistantMessage 创建一条助手消息。
func NewAssistantMessage(content string, at time.Time) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Timestamp: at}
}
