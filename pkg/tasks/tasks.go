// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// ReprocessTask 请求从归档中的原始 PDF 重建某个文档的会话索引。
type ReprocessTask struct {
	DocumentID uint      `json:"document_id"`
	SessionID  string    `json:"session_id"`
	ObjectKey  string    `json:"object_key"`
	Reason     string    `json:"reason,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
