package retrieval

import (
	"context"
	"fmt"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/embedding"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/metrics"
)

const dropTimeout = 10 * time.Second

// Capabilities 描述启动时确定的外部能力。Embedder 为 nil 表示没有向量化能力。
type Capabilities struct {
	Embedder     embedding.Client
	Store        VectorStore
	MMR          MMRConfig
	FetchK       int
	QueryTimeout time.Duration
	// BuildTimeout 限制建索引时向量化与写入的总耗时，0 表示不限制。
	BuildTimeout    time.Duration
	IndexMinWordLen int
	QueryMinWordLen int
}

// VectorEnabled 表示是否具备构建向量索引的条件。
func (c Capabilities) VectorEnabled() bool {
	return c.Embedder != nil && c.Store != nil
}

// BuildResult 是索引构建的结果。Outcome 区分成功、降级与致命，
// Kind 标明 Retriever 的具体类型，Reason 记录降级原因。
type BuildResult struct {
	Outcome   model.Outcome
	Kind      model.Mode
	Reason    string
	Retriever Retriever
}

// Degraded 表示结果是否为关键词降级模式。
func (r BuildResult) Degraded() bool { return r.Outcome == model.OutcomeDegraded }

// Builder 根据注入的能力构建检索器。
type Builder struct {
	caps Capabilities
}

// NewBuilder 创建 Builder。
func NewBuilder(caps Capabilities) *Builder {
	if caps.FetchK <= 0 {
		caps.FetchK = DefaultFetchK
	}
	return &Builder{caps: caps}
}

// Capabilities 返回构建器持有的能力。
func (b *Builder) Capabilities() Capabilities { return b.caps }

// Build 为 collection（会话 ID）下的 chunks 建立索引。
// 零个块返回 ErrEmptyIndex；向量化或写入失败不返回错误，而是降级为关键词索引并记录原因。
func (b *Builder) Build(ctx context.Context, collection string, chunks []string) (BuildResult, error) {
	if len(chunks) == 0 {
		return BuildResult{Outcome: model.OutcomeFatal}, ErrEmptyIndex
	}

	keyword := NewKeywordRetriever(chunks, b.caps.IndexMinWordLen, b.caps.QueryMinWordLen)

	if !b.caps.VectorEnabled() {
		reason := "embedding service not configured"
		if b.caps.Embedder != nil {
			reason = "vector store not configured"
		}
		return b.degrade(collection, keyword, reason), nil
	}

	buildCtx := ctx
	if b.caps.BuildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, b.caps.BuildTimeout)
		defer cancel()
	}

	start := time.Now()
	vectors, err := b.caps.Embedder.CreateEmbeddings(buildCtx, chunks)
	if err != nil {
		return b.degrade(collection, keyword, fmt.Sprintf("embedding failed: %v", err)), nil
	}
	if len(vectors) != len(chunks) {
		return b.degrade(collection, keyword, fmt.Sprintf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks))), nil
	}
	if err := b.caps.Store.Upsert(buildCtx, collection, chunks, vectors); err != nil {
		// 写入可能已部分成功，清掉这个会话的残留向量
		dropCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dropTimeout)
		defer cancel()
		if derr := b.Drop(dropCtx, collection); derr != nil {
			log.Warnf("[IndexBuilder] 清理部分写入的向量失败, collection: %s, error: %v", collection, derr)
		}
		return b.degrade(collection, keyword, fmt.Sprintf("vector store upsert failed: %v", err)), nil
	}
	log.Infof("[IndexBuilder] 向量索引构建成功, collection: %s, chunks: %d, 耗时: %s", collection, len(chunks), time.Since(start))

	return BuildResult{
		Outcome: model.OutcomeSuccess,
		Kind:    model.ModeVector,
		Retriever: &VectorRetriever{
			collection:   collection,
			chunks:       chunks,
			embedder:     b.caps.Embedder,
			store:        b.caps.Store,
			mmr:          b.caps.MMR,
			fetchK:       b.caps.FetchK,
			queryTimeout: b.caps.QueryTimeout,
			keyword:      keyword,
		},
	}, nil
}

func (b *Builder) degrade(collection string, keyword *KeywordRetriever, reason string) BuildResult {
	log.Warnw("[IndexBuilder] 降级为关键词索引", "collection", collection, "reason", reason, "terms", keyword.Index().Len())
	metrics.FallbackActivations.WithLabelValues("build").Inc()
	return BuildResult{
		Outcome:   model.OutcomeDegraded,
		Kind:      model.ModeKeyword,
		Reason:    reason,
		Retriever: keyword,
	}
}

// Drop 删除 collection 在向量库中的数据。
func (b *Builder) Drop(ctx context.Context, collection string) error {
	if b.caps.Store == nil {
		return nil
	}
	return b.caps.Store.DeleteCollection(ctx, collection)
}
