package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/pipeline"
	"pdf-chat-go/internal/repository"
	"pdf-chat-go/internal/retrieval"
	"pdf-chat-go/internal/session"
	"pdf-chat-go/pkg/storage"
	"pdf-chat-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docFixture struct {
	store    *session.MemoryStore
	repo     repository.DocumentRepository
	archive  *storage.DiskArchive
	embedder *stubEmbedder
	vectors  *retrieval.MemoryVectorStore
	producer *recordingProducer
	svc      DocumentService
}

func newDocFixture(t *testing.T, withArchive bool) *docFixture {
	t.Helper()
	f := &docFixture{
		store:    session.NewMemoryStore(session.Options{}),
		repo:     repository.NewMemoryDocumentRepository(),
		embedder: &stubEmbedder{},
		vectors:  retrieval.NewMemoryVectorStore(),
		producer: &recordingProducer{},
	}
	t.Cleanup(func() { _ = f.store.Close() })

	var archive storage.Archive
	if withArchive {
		a, err := storage.NewDiskArchive(t.TempDir())
		require.NoError(t, err)
		f.archive = a
		archive = a
	}
	processor := pipeline.NewProcessor(textExtractor{}, pipeline.NewChunker(pipeline.StrategyParagraph, 20, 0))
	builder := retrieval.NewBuilder(retrieval.Capabilities{Embedder: f.embedder, Store: f.vectors})
	f.svc = NewDocumentService(processor, builder, f.store, f.repo, archive, f.producer)
	return f
}

const sampleDoc = "apple pie recipe\fcar repair manual"

func TestProcessDocument_Vector(t *testing.T) {
	f := newDocFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, model.ModeVector, res.Mode)
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 2, res.ChunkCount)

	sess, err := f.store.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.ModeVector, sess.Retriever.Kind())
	assert.Equal(t, []string{"apple pie recipe", "car repair manual"}, sess.Retriever.Chunks())
	assert.Equal(t, "guide.pdf", sess.Info.DocumentName)
	assert.Equal(t, res.DocumentID, sess.Info.DocumentID)

	doc, err := f.repo.FindByID(res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, doc.SessionID)
	assert.Equal(t, model.DocumentStatusReady, doc.Status)
	require.NotEmpty(t, doc.ObjectKey)
	archived, err := f.archive.Get(ctx, doc.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, sampleDoc, string(archived))
}

func TestProcessDocument_EachUploadGetsOwnSession(t *testing.T) {
	f := newDocFixture(t, false)
	a, err := f.svc.ProcessDocument(context.Background(), "a.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	b, err := f.svc.ProcessDocument(context.Background(), "a.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Equal(t, 2, f.store.Len())
}

func TestProcessDocument_DegradesWhenEmbeddingFails(t *testing.T) {
	f := newDocFixture(t, false)
	f.embedder.setFailing(true)

	res, err := f.svc.ProcessDocument(context.Background(), "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, model.ModeKeyword, res.Mode)
	assert.Equal(t, model.OutcomeDegraded, res.Outcome)
	assert.Contains(t, res.DegradedReason, "embedding")

	sess, err := f.store.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.ModeKeyword, sess.Retriever.Kind())
	assert.NotEmpty(t, sess.Info.DegradedReason)
}

func TestProcessDocument_FatalErrors(t *testing.T) {
	f := newDocFixture(t, true)

	_, err := f.svc.ProcessDocument(context.Background(), "empty.pdf", nil)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = f.svc.ProcessDocument(context.Background(), "blank.pdf", []byte(" \f \n "))
	assert.ErrorIs(t, err, pipeline.ErrNoText)

	// 致命错误不留下会话或文档记录
	assert.Zero(t, f.store.Len())
	docs, err := f.svc.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReprocess_RestoresExpiredSession(t *testing.T) {
	f := newDocFixture(t, true)
	ctx := context.Background()
	res, err := f.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, res.SessionID))

	again, err := f.svc.ReprocessSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, again.SessionID)
	assert.Equal(t, res.DocumentID, again.DocumentID)

	sess, err := f.store.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, len(sess.Retriever.Chunks()))
}

func TestReprocess_KeepsHistory(t *testing.T) {
	f := newDocFixture(t, true)
	ctx := context.Background()
	res, err := f.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	u, a := model.NewUserMessage("q", time.Now()), model.NewAssistantMessage("a", time.Now())
	require.NoError(t, f.store.AppendTurn(ctx, res.SessionID, u, a))

	_, err = f.svc.Reprocess(ctx, res.DocumentID)
	require.NoError(t, err)

	h, err := f.store.History(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, h, 2)
}

func TestReprocess_Errors(t *testing.T) {
	ctx := context.Background()

	f := newDocFixture(t, false)
	res, err := f.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	_, err = f.svc.Reprocess(ctx, res.DocumentID)
	assert.ErrorIs(t, err, ErrNoArchive)

	_, err = f.svc.Reprocess(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)
	_, err = f.svc.ReprocessSession(ctx, "unknown")
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)

	withArchive := newDocFixture(t, true)
	res, err = withArchive.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	doc, err := withArchive.repo.FindByID(res.DocumentID)
	require.NoError(t, err)
	require.NoError(t, withArchive.archive.Remove(ctx, doc.ObjectKey))
	_, err = withArchive.svc.Reprocess(ctx, res.DocumentID)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestReprocess_ConcurrentCallsSucceed(t *testing.T) {
	f := newDocFixture(t, true)
	ctx := context.Background()
	res, err := f.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Reprocess(ctx, res.DocumentID)
			if assert.NoError(t, err) {
				assert.Equal(t, res.SessionID, out.SessionID)
			}
		}()
	}
	wg.Wait()
}

func TestEnqueueReprocess(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, true)
	res, err := f.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)

	queued, err := f.svc.EnqueueReprocess(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.True(t, queued)
	require.Len(t, f.producer.tasks, 1)
	task := f.producer.tasks[0]
	assert.Equal(t, res.DocumentID, task.DocumentID)
	assert.Equal(t, res.SessionID, task.SessionID)

	doc, err := f.repo.FindByID(res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessing, doc.Status)

	require.NoError(t, f.svc.ProcessTask(ctx, task))
	doc, err = f.repo.FindByID(res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusReady, doc.Status)

	f.producer.err = errors.New("broker down")
	_, err = f.svc.EnqueueReprocess(ctx, res.DocumentID)
	assert.Error(t, err)
}

func TestEnqueueReprocess_WithoutProducer(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, true)
	svc := NewDocumentService(
		pipeline.NewProcessor(textExtractor{}, pipeline.NewChunker(pipeline.StrategyParagraph, 20, 0)),
		retrieval.NewBuilder(retrieval.Capabilities{}), f.store, f.repo, f.archive, nil)
	res, err := svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, model.ModeKeyword, res.Mode)

	queued, err := svc.EnqueueReprocess(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestProcessTask_DropsUnrecoverableTasks(t *testing.T) {
	f := newDocFixture(t, true)
	assert.NoError(t, f.svc.ProcessTask(context.Background(), tasks.ReprocessTask{DocumentID: 42}))
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, true)
	res, err := f.svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	doc, err := f.repo.FindByID(res.DocumentID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDocument(ctx, res.DocumentID))

	_, err = f.store.Get(ctx, res.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.archive.Get(ctx, doc.ObjectKey)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	cands, err := f.vectors.Search(ctx, res.SessionID, []float32{1, 0, 0, 0.1}, 5)
	require.NoError(t, err)
	assert.Empty(t, cands)

	assert.ErrorIs(t, f.svc.DeleteDocument(ctx, res.DocumentID), repository.ErrDocumentNotFound)
}

// blockingEmbedder 一直等到 ctx 结束。
type blockingEmbedder struct{}

func (blockingEmbedder) CreateEmbedding(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingEmbedder) CreateEmbeddings(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessDocument_SlowEmbeddingDegradesWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := session.NewRedisStore(rdb, session.Options{TTL: time.Hour})

	archive, err := storage.NewDiskArchive(t.TempDir())
	require.NoError(t, err)
	processor := pipeline.NewProcessor(textExtractor{}, pipeline.NewChunker(pipeline.StrategyParagraph, 20, 0))
	builder := retrieval.NewBuilder(retrieval.Capabilities{
		Embedder:     blockingEmbedder{},
		Store:        retrieval.NewMemoryVectorStore(),
		BuildTimeout: 200 * time.Millisecond,
	})
	svc := NewDocumentService(processor, builder, store, repository.NewMemoryDocumentRepository(), archive, nil)

	// 请求与建索引同时到期
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	res, err := svc.ProcessDocument(ctx, "guide.pdf", []byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDegraded, res.Outcome)
	assert.Equal(t, model.ModeKeyword, res.Mode)
	assert.Contains(t, res.DegradedReason, "embedding failed")

	sess, err := store.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.ModeKeyword, sess.Retriever.Kind())

	docs, err := svc.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.NotEmpty(t, docs[0].ObjectKey)
}
