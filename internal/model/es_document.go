package model

// EsChunk 定义了存储在 Elasticsearch 中的文本块结构。
type EsChunk struct {
	VectorID    string    `json:"vector_id"` // session_id + chunk_id
	SessionID   string    `json:"session_id"`
	ChunkID     int       `json:"chunk_id"`
	TextContent string    `json:"text_content"`
	Vector      []float32 `json:"vector"`
}
