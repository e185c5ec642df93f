package model

import "time"

// Mode 表示会话的检索模式。
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeKeyword Mode = "keyword"
)

// Outcome 是索引构建与问答结果的判别标签。
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFatal    Outcome = "fatal"
)

// SessionInfo 是会话的可序列化元数据。
type SessionInfo struct {
	ID             string    `json:"sessionId"`
	DocumentName   string    `json:"documentName"`
	DocumentID     uint      `json:"documentId,omitempty"`
	UploadedAt     LocalTime `json:"uploadedAt"`
	Mode           Mode      `json:"mode"`
	DegradedReason string    `json:"degradedReason,omitempty"`
	ChunkCount     int       `json:"chunkCount"`
	PageCount      int       `json:"pageCount"`
	MessageCount   int       `json:"messageCount"`
}

// ScoredChunk 是一次检索命中的文本块及其得分。
type ScoredChunk struct {
	Index   int     `json:"index"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// TotalScore 返回一组命中结果的得分之和。
func TotalScore(chunks []ScoredChunk) float64 {
	var total float64
	for _, c := range chunks {
		total += c.Score
	}
	return total
}

// Now 返回 LocalTime 格式的当前时间。
func Now() LocalTime {
	return LocalTime(time.Now())
}
