package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/embedding"
	"pdf-chat-go/pkg/log"
)

// Candidate 是向量库返回的候选块。
type Candidate struct {
	Index   int
	Content string
	Vector  []float32
	Score   float64
}

// VectorStore 保存每个集合（会话）的块向量并支持近邻检索。
type VectorStore interface {
	Upsert(ctx context.Context, collection string, chunks []string, vectors [][]float32) error
	Search(ctx context.Context, collection string, query []float32, k int) ([]Candidate, error)
	DeleteCollection(ctx context.Context, collection string) error
}

// MemoryVectorStore 在进程内以暴力余弦相似度检索。
type MemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string][]Candidate
}

// NewMemoryVectorStore 创建一个空的内存向量库。
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{collections: make(map[string][]Candidate)}
}

// Upsert 覆盖写入整个集合。
func (m *MemoryVectorStore) Upsert(_ context.Context, collection string, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	items := make([]Candidate, len(chunks))
	for i := range chunks {
		items[i] = Candidate{Index: i, Content: chunks[i], Vector: vectors[i]}
	}
	m.mu.Lock()
	m.collections[collection] = items
	m.mu.Unlock()
	return nil
}

// Search 返回与 query 最相似的 k 个候选，同分按块顺序。
func (m *MemoryVectorStore) Search(_ context.Context, collection string, query []float32, k int) ([]Candidate, error) {
	m.mu.RLock()
	items := m.collections[collection]
	m.mu.RUnlock()

	out := make([]Candidate, len(items))
	for i, it := range items {
		it.Score = Cosine(query, it.Vector)
		out[i] = it
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// DeleteCollection 删除集合，不存在时无操作。
func (m *MemoryVectorStore) DeleteCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	delete(m.collections, collection)
	m.mu.Unlock()
	return nil
}

// 向量检索的默认参数
const (
	DefaultTopK   = 8
	DefaultFetchK = 20
)

// VectorRetriever 基于向量库检索，同时持有同一批块上的关键词检索器用于查询时降级。
type VectorRetriever struct {
	collection   string
	chunks       []string
	embedder     embedding.Client
	store        VectorStore
	mmr          MMRConfig
	fetchK       int
	queryTimeout time.Duration
	keyword      *KeywordRetriever
}

// Kind 实现 Retriever。
func (v *VectorRetriever) Kind() model.Mode { return model.ModeVector }

// Chunks 实现 Retriever。
func (v *VectorRetriever) Chunks() []string { return v.chunks }

// Collection 返回向量库中的集合名。
func (v *VectorRetriever) Collection() string { return v.collection }

// Retrieve 向量化查询并从向量库取 fetchK 个候选，开启 MMR 时从中挑选 n 个多样化结果。
// 查询向量化失败返回 ErrEmbeddingUnavailable。
func (v *VectorRetriever) Retrieve(ctx context.Context, query string, n int) ([]model.ScoredChunk, error) {
	if n <= 0 {
		n = DefaultTopK
	}
	embedCtx := ctx
	if v.queryTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, v.queryTimeout)
		defer cancel()
	}
	qv, err := v.embedder.CreateEmbedding(embedCtx, query)
	if err != nil {
		log.Warnf("[VectorRetriever] 查询向量化失败, collection: %s, error: %v", v.collection, err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	fetchK := v.fetchK
	if fetchK < n {
		fetchK = n
	}
	cands, err := v.store.Search(ctx, v.collection, qv, fetchK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if v.mmr.Enabled {
		cands = SelectMMR(qv, cands, n, v.mmr.Lambda)
	} else if len(cands) > n {
		cands = cands[:n]
	}

	out := make([]model.ScoredChunk, len(cands))
	for i, c := range cands {
		out[i] = model.ScoredChunk{Index: c.Index, Content: c.Content, Score: c.Score}
	}
	return out, nil
}
