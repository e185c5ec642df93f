// Package session 保存“会话 ID → 检索器、聊天历史、文档元数据”的映射。
package session

import (
	"context"
	"errors"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/retrieval"
)

var (
	// ErrNotFound 表示会话不存在或已过期，调用方需要重新处理文档。
	ErrNotFound = errors.New("session not found or expired")
	// ErrExists 表示会话 ID 冲突，Create 不会覆盖已有会话。
	ErrExists = errors.New("session already exists")
	// ErrIndexLost 表示会话元数据仍在，但本进程中没有它的检索器（例如重启后）。
	// 此时 Get 同时返回不含检索器的 Session，调用方可据此重建索引。
	ErrIndexLost = errors.New("session index not available in this process")
)

// Session 是一个会话的完整状态。Get 返回的是副本，修改它不会影响存储。
type Session struct {
	Info      model.SessionInfo
	Retriever retrieval.Retriever
	History   []model.ChatMessage
}

// Store 是会话存储的抽象。对同一会话的 AppendTurn 是原子的，
// 不同会话之间的操作互不影响。
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// AppendTurn 按顺序追加用户消息和助手消息。
	AppendTurn(ctx context.Context, id string, user, assistant model.ChatMessage) error
	History(ctx context.Context, id string) ([]model.ChatMessage, error)
	// SetRetriever 替换会话的检索器与元数据，保留历史。
	SetRetriever(ctx context.Context, id string, r retrieval.Retriever, info model.SessionInfo) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.SessionInfo, error)
	Close() error
}

// Options 是各实现共用的参数。
type Options struct {
	// TTL 是空闲过期时间，每次访问都会刷新，0 表示永不过期。
	TTL time.Duration
	// JanitorInterval 是内存实现的过期清理间隔，0 表示不启动清理协程。
	JanitorInterval time.Duration
	// MaxHistory 是每个会话保留的最多消息数，0 表示不限制。
	MaxHistory int
}

func trimHistory(h []model.ChatMessage, max int) []model.ChatMessage {
	if max > 0 && len(h) > max {
		return h[len(h)-max:]
	}
	return h
}

func copyHistory(h []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, len(h))
	copy(out, h)
	return out
}
