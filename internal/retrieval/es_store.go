package retrieval

import (
	"context"
	"fmt"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/es"

	"github.com/elastic/go-elasticsearch/v8"
)

// ESVectorStore 把所有会话的块放在同一个索引中，以 session_id 区分集合。
type ESVectorStore struct {
	client    *elasticsearch.Client
	indexName string
}

// NewESVectorStore 创建基于 Elasticsearch 的向量库。
func NewESVectorStore(client *elasticsearch.Client, indexName string) *ESVectorStore {
	return &ESVectorStore{client: client, indexName: indexName}
}

// Upsert 先清理集合中的旧块再逐个写入，最后一个块写入时等待刷新。
func (s *ESVectorStore) Upsert(ctx context.Context, collection string, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if err := es.DeleteBySession(ctx, s.client, s.indexName, collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	for i := range chunks {
		doc := model.EsChunk{
			VectorID:    fmt.Sprintf("%s_%d", collection, i),
			SessionID:   collection,
			ChunkID:     i,
			TextContent: chunks[i],
			Vector:      vectors[i],
		}
		if err := es.IndexChunk(ctx, s.client, s.indexName, doc, i == len(chunks)-1); err != nil {
			return fmt.Errorf("index chunk %d: %w", i, err)
		}
	}
	return nil
}

// Search 实现 VectorStore。
func (s *ESVectorStore) Search(ctx context.Context, collection string, query []float32, k int) ([]Candidate, error) {
	hits, err := es.KNNSearch(ctx, s.client, s.indexName, collection, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{
			Index:   h.Source.ChunkID,
			Content: h.Source.TextContent,
			Vector:  h.Source.Vector,
			Score:   h.Score,
		}
	}
	return out, nil
}

// DeleteCollection 实现 VectorStore。
func (s *ESVectorStore) DeleteCollection(ctx context.Context, collection string) error {
	return es.DeleteBySession(ctx, s.client, s.indexName, collection)
}
