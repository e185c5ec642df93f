// Package retrieval 负责索引构建与相关文本块检索，包括向量检索与关键词回退。
package retrieval

import (
	"context"
	"errors"

	"pdf-chat-go/internal/model"
)

var (
	// ErrEmptyIndex 表示没有可索引的文本块，对本次上传是致命错误。
	ErrEmptyIndex = errors.New("nothing to index: zero chunks")
	// ErrEmbeddingUnavailable 表示查询时向量化失败，调用方应改用关键词检索。
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// Retriever 是会话持有的检索器，只有两种实现：*VectorRetriever 与 *KeywordRetriever。
// 调用方根据 Kind() 分支，而不是做类型探测。
type Retriever interface {
	Kind() model.Mode
	// Chunks 返回建立索引时的原始文本块，顺序与文档一致。
	Chunks() []string
	Retrieve(ctx context.Context, query string, n int) ([]model.ScoredChunk, error)
}

// KeywordFallback 返回与 r 覆盖相同文本块的关键词检索器。
func KeywordFallback(r Retriever) *KeywordRetriever {
	switch v := r.(type) {
	case *KeywordRetriever:
		return v
	case *VectorRetriever:
		return v.keyword
	}
	return NewKeywordRetriever(r.Chunks(), 0, 0)
}
