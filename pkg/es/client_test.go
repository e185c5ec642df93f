package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeES 记录收到的请求，并按路径返回固定响应。
type fakeES struct {
	mu          sync.Mutex
	requests    []recordedRequest
	indexExists bool
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	exists := f.indexExists
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodHead:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
		}
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_score":0.9,"_source":{"vector_id":"s1_1","session_id":"s1","chunk_id":1,"text_content":"second","vector":[0,1]}},
			{"_score":0.5,"_source":{"vector_id":"s1_0","session_id":"s1","chunk_id":0,"text_content":"first","vector":[1,0]}}
		]}}`))
	case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
		_, _ = w.Write([]byte(`{"deleted":2}`))
	case strings.Contains(r.URL.Path, "/_doc/"):
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	default:
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	}
}

func (f *fakeES) all() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newClient(t *testing.T, f *fakeES) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestMapping(t *testing.T) {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(Mapping(384)), &m))
	assert.Contains(t, Mapping(384), `"dims": 384`)
	assert.Contains(t, Mapping(384), `"similarity": "cosine"`)
}

func TestInitES_CreatesMissingIndex(t *testing.T) {
	f := &fakeES{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	_, err := InitES(config.ElasticsearchConfig{Addresses: srv.URL, IndexName: "chunks"}, 8)
	require.NoError(t, err)

	reqs := f.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodHead, reqs[0].Method)
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, "/chunks", reqs[1].Path)
	assert.Contains(t, reqs[1].Body, `"dims": 8`)
}

func TestInitES_ExistingIndex(t *testing.T) {
	f := &fakeES{indexExists: true}
	srv := httptest.NewServer(f)
	defer srv.Close()

	_, err := InitES(config.ElasticsearchConfig{Addresses: srv.URL, IndexName: "chunks"}, 8)
	require.NoError(t, err)
	assert.Len(t, f.all(), 1)
}

func TestIndexChunk(t *testing.T) {
	f := &fakeES{}
	client := newClient(t, f)

	doc := model.EsChunk{VectorID: "s1_0", SessionID: "s1", ChunkID: 0, TextContent: "halo", Vector: []float32{1, 0}}
	require.NoError(t, IndexChunk(context.Background(), client, "chunks", doc, true))

	reqs := f.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/chunks/_doc/s1_0", reqs[0].Path)
	assert.Contains(t, reqs[0].Query, "refresh=wait_for")
	var sent model.EsChunk
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &sent))
	assert.Equal(t, doc, sent)
}

func TestKNNSearch(t *testing.T) {
	f := &fakeES{}
	client := newClient(t, f)

	hits, err := KNNSearch(context.Background(), client, "chunks", "s1", []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "second", hits[0].Source.TextContent)
	assert.Equal(t, 1, hits[0].Source.ChunkID)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-9)

	reqs := f.all()
	require.Len(t, reqs, 1)
	var body struct {
		KNN struct {
			Field         string `json:"field"`
			K             int    `json:"k"`
			NumCandidates int    `json:"num_candidates"`
			Filter        struct {
				Term map[string]string `json:"term"`
			} `json:"filter"`
		} `json:"knn"`
		Size int `json:"size"`
	}
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &body))
	assert.Equal(t, "vector", body.KNN.Field)
	assert.Equal(t, 2, body.KNN.K)
	assert.Equal(t, 10, body.KNN.NumCandidates)
	assert.Equal(t, "s1", body.KNN.Filter.Term["session_id"])
	assert.Equal(t, 2, body.Size)
}

func TestDeleteBySession(t *testing.T) {
	f := &fakeES{}
	client := newClient(t, f)

	require.NoError(t, DeleteBySession(context.Background(), client, "chunks", "s1"))
	reqs := f.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/chunks/_delete_by_query", reqs[0].Path)
	assert.JSONEq(t, `{"query":{"term":{"session_id":"s1"}}}`, reqs[0].Body)
}
