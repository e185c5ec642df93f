// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/pipeline"
	"pdf-chat-go/internal/repository"
	"pdf-chat-go/internal/retrieval"
	"pdf-chat-go/internal/session"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/metrics"
	"pdf-chat-go/pkg/storage"
	"pdf-chat-go/pkg/tasks"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// 索引建好之后写入归档与会话的时间上限
const persistTimeout = 15 * time.Second

var (
	// ErrEmptyFile 表示上传内容为空。
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrNoArchive 表示文档没有可用于重新处理的归档文件。
	ErrNoArchive = errors.New("document has no archived file to reprocess")
)

// ProcessResult 是文档处理的结果。
type ProcessResult struct {
	SessionID      string        `json:"session_id"`
	DocumentID     uint          `json:"document_id"`
	FileName       string        `json:"file_name"`
	Mode           model.Mode    `json:"mode"`
	Outcome        model.Outcome `json:"outcome"`
	DegradedReason string        `json:"degraded_reason,omitempty"`
	PageCount      int           `json:"page_count"`
	ChunkCount     int           `json:"chunk_count"`
}

// TaskProducer 发送异步重处理任务，由 Kafka 生产者实现。
type TaskProducer interface {
	ProduceReprocessTask(ctx context.Context, task tasks.ReprocessTask) error
}

// DocumentService 接口定义了文档处理与管理相关的业务操作。
type DocumentService interface {
	// ProcessDocument 提取、切块并建立索引，返回新会话的 ID。
	ProcessDocument(ctx context.Context, fileName string, data []byte) (*ProcessResult, error)
	// Reprocess 从归档的原始 PDF 重建文档的索引，沿用原会话 ID。
	Reprocess(ctx context.Context, documentID uint) (*ProcessResult, error)
	// ReprocessSession 按会话 ID 查找文档并重建索引。
	ReprocessSession(ctx context.Context, sessionID string) (*ProcessResult, error)
	// EnqueueReprocess 通过 Kafka 异步重处理；未配置 Kafka 时返回 false。
	EnqueueReprocess(ctx context.Context, documentID uint) (bool, error)
	// ProcessTask 消费 Kafka 中的重处理任务。
	ProcessTask(ctx context.Context, task tasks.ReprocessTask) error
	ListDocuments(ctx context.Context) ([]model.Document, error)
	DeleteDocument(ctx context.Context, documentID uint) error
}

type documentService struct {
	processor *pipeline.Processor
	builder   *retrieval.Builder
	store     session.Store
	docRepo   repository.DocumentRepository
	archive   storage.Archive
	producer  TaskProducer

	group singleflight.Group
}

// NewDocumentService 创建一个新的 DocumentService 实例。archive 与 producer 可以为 nil。
func NewDocumentService(
	processor *pipeline.Processor,
	builder *retrieval.Builder,
	store session.Store,
	docRepo repository.DocumentRepository,
	archive storage.Archive,
	producer TaskProducer,
) DocumentService {
	return &documentService{
		processor: processor,
		builder:   builder,
		store:     store,
		docRepo:   docRepo,
		archive:   archive,
		producer:  producer,
	}
}

func objectKey(sessionID, fileMD5 string) string {
	return fmt.Sprintf("documents/%s/%s.pdf", sessionID, fileMD5)
}

func (s *documentService) ProcessDocument(ctx context.Context, fileName string, data []byte) (*ProcessResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	sum := md5.Sum(data)
	fileMD5 := hex.EncodeToString(sum[:])
	log.Infof("[DocumentService] 开始处理文档, FileName: %s, MD5: %s", fileName, fileMD5)

	res, err := s.processor.Process(ctx, fileName, data)
	if err != nil {
		metrics.DocumentsProcessed.WithLabelValues(string(model.OutcomeFatal)).Inc()
		return nil, err
	}

	sessionID := uuid.NewString()
	built, err := s.builder.Build(ctx, sessionID, res.Chunks)
	if err != nil {
		log.Warnf("[DocumentService] 建立索引失败, FileName: %s, Error: %v", fileName, err)
		metrics.DocumentsProcessed.WithLabelValues(string(model.OutcomeFatal)).Inc()
		return nil, err
	}

	pctx, cancel := persistContext(ctx)
	defer cancel()

	key := ""
	if s.archive != nil {
		key = objectKey(sessionID, fileMD5)
		if err := s.archive.Put(pctx, key, data, "application/pdf"); err != nil {
			// 归档失败只影响之后的自动重处理
			log.Warnf("[DocumentService] 归档原始文件失败, key: %s, error: %v", key, err)
			key = ""
		}
	}

	now := time.Now()
	doc := &model.Document{
		FileName:       fileName,
		FileMD5:        fileMD5,
		FileSize:       int64(len(data)),
		ObjectKey:      key,
		SessionID:      sessionID,
		PageCount:      res.Document.PageCount,
		ChunkCount:     len(res.Chunks),
		Mode:           string(built.Kind),
		DegradedReason: built.Reason,
		Status:         model.DocumentStatusReady,
		ProcessedAt:    &now,
	}
	if err := s.docRepo.Create(doc); err != nil {
		s.cleanup(pctx, sessionID, key)
		return nil, fmt.Errorf("保存文档记录失败: %w", err)
	}

	info := sessionInfo(doc, built, now)
	if err := s.store.Create(pctx, session.Session{Info: info, Retriever: built.Retriever}); err != nil {
		s.cleanup(pctx, sessionID, key)
		_ = s.docRepo.Delete(doc.ID)
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	metrics.DocumentsProcessed.WithLabelValues(string(built.Outcome)).Inc()
	log.Infow("[DocumentService] 文档处理完成",
		"session_id", sessionID, "document_id", doc.ID, "mode", built.Kind, "chunks", len(res.Chunks), "reason", built.Reason)
	return resultFrom(doc, built), nil
}

// persistContext 用于索引建好之后的归档与会话写入：不随请求一起取消，只受 persistTimeout 限制。
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (s *documentService) cleanup(ctx context.Context, sessionID, key string) {
	if err := s.builder.Drop(ctx, sessionID); err != nil {
		log.Warnf("[DocumentService] 清理向量数据失败, session: %s, error: %v", sessionID, err)
	}
	if key != "" && s.archive != nil {
		_ = s.archive.Remove(ctx, key)
	}
}

func sessionInfo(doc *model.Document, built retrieval.BuildResult, uploadedAt time.Time) model.SessionInfo {
	return model.SessionInfo{
		ID:             doc.SessionID,
		DocumentName:   doc.FileName,
		DocumentID:     doc.ID,
		UploadedAt:     model.LocalTime(uploadedAt),
		Mode:           built.Kind,
		DegradedReason: built.Reason,
		ChunkCount:     doc.ChunkCount,
		PageCount:      doc.PageCount,
	}
}

func resultFrom(doc *model.Document, built retrieval.BuildResult) *ProcessResult {
	return &ProcessResult{
		SessionID:      doc.SessionID,
		DocumentID:     doc.ID,
		FileName:       doc.FileName,
		Mode:           built.Kind,
		Outcome:        built.Outcome,
		DegradedReason: built.Reason,
		PageCount:      doc.PageCount,
		ChunkCount:     doc.ChunkCount,
	}
}

// Reprocess 对同一文档的并发请求只执行一次。
func (s *documentService) Reprocess(ctx context.Context, documentID uint) (*ProcessResult, error) {
	v, err, shared := s.group.Do(strconv.FormatUint(uint64(documentID), 10), func() (interface{}, error) {
		return s.reprocess(ctx, documentID)
	})
	if shared {
		log.Debugf("[DocumentService] 复用进行中的重处理结果, DocumentID: %d", documentID)
	}
	if err != nil {
		return nil, err
	}
	return v.(*ProcessResult), nil
}

func (s *documentService) reprocess(ctx context.Context, documentID uint) (*ProcessResult, error) {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}
	if s.archive == nil || doc.ObjectKey == "" {
		return nil, ErrNoArchive
	}
	log.Infof("[DocumentService] 开始重新处理文档, DocumentID: %d, SessionID: %s", doc.ID, doc.SessionID)

	data, err := s.archive.Get(ctx, doc.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNoArchive
		}
		return nil, fmt.Errorf("读取归档文件失败: %w", err)
	}

	res, err := s.processor.Process(ctx, doc.FileName, data)
	if err != nil {
		s.markFailed(doc)
		return nil, err
	}
	built, err := s.builder.Build(ctx, doc.SessionID, res.Chunks)
	if err != nil {
		s.markFailed(doc)
		return nil, err
	}

	now := time.Now()
	doc.PageCount = res.Document.PageCount
	doc.ChunkCount = len(res.Chunks)
	doc.Mode = string(built.Kind)
	doc.DegradedReason = built.Reason
	doc.Status = model.DocumentStatusReady
	doc.ProcessedAt = &now
	if err := s.docRepo.Update(doc); err != nil {
		log.Warnf("[DocumentService] 更新文档记录失败, DocumentID: %d, error: %v", doc.ID, err)
	}

	info := sessionInfo(doc, built, doc.CreatedAt)
	if doc.CreatedAt.IsZero() {
		info.UploadedAt = model.LocalTime(now)
	}
	pctx, cancel := persistContext(ctx)
	defer cancel()
	err = s.store.SetRetriever(pctx, doc.SessionID, built.Retriever, info)
	if errors.Is(err, session.ErrNotFound) {
		// 会话已过期，以原 ID 重新创建，历史从空开始
		err = s.store.Create(pctx, session.Session{Info: info, Retriever: built.Retriever})
	}
	if err != nil {
		return nil, fmt.Errorf("恢复会话失败: %w", err)
	}

	metrics.DocumentsProcessed.WithLabelValues(string(built.Outcome)).Inc()
	log.Infof("[DocumentService] 文档重新处理完成, DocumentID: %d, mode: %s", doc.ID, built.Kind)
	return resultFrom(doc, built), nil
}

func (s *documentService) markFailed(doc *model.Document) {
	doc.Status = model.DocumentStatusFailed
	if err := s.docRepo.Update(doc); err != nil {
		log.Warnf("[DocumentService] 更新文档状态失败, DocumentID: %d, error: %v", doc.ID, err)
	}
}

func (s *documentService) ReprocessSession(ctx context.Context, sessionID string) (*ProcessResult, error) {
	doc, err := s.docRepo.FindBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Reprocess(ctx, doc.ID)
}

func (s *documentService) EnqueueReprocess(ctx context.Context, documentID uint) (bool, error) {
	if s.producer == nil {
		return false, nil
	}
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return false, err
	}
	if doc.ObjectKey == "" {
		return false, ErrNoArchive
	}
	doc.Status = model.DocumentStatusProcessing
	if err := s.docRepo.Update(doc); err != nil {
		log.Warnf("[DocumentService] 更新文档状态失败, DocumentID: %d, error: %v", doc.ID, err)
	}
	task := tasks.ReprocessTask{
		DocumentID: doc.ID,
		SessionID:  doc.SessionID,
		ObjectKey:  doc.ObjectKey,
		Reason:     "manual",
		EnqueuedAt: time.Now(),
	}
	if err := s.producer.ProduceReprocessTask(ctx, task); err != nil {
		return false, fmt.Errorf("发送重处理任务失败: %w", err)
	}
	return true, nil
}

func (s *documentService) ProcessTask(ctx context.Context, task tasks.ReprocessTask) error {
	_, err := s.Reprocess(ctx, task.DocumentID)
	if errors.Is(err, repository.ErrDocumentNotFound) || errors.Is(err, ErrNoArchive) {
		// 无法重试成功的任务直接丢弃
		log.Warnf("[DocumentService] 丢弃重处理任务, DocumentID: %d, reason: %v", task.DocumentID, err)
		return nil
	}
	return err
}

func (s *documentService) ListDocuments(_ context.Context) ([]model.Document, error) {
	return s.docRepo.List()
}

// DeleteDocument 删除文档记录、归档文件、会话和向量数据。
func (s *documentService) DeleteDocument(ctx context.Context, documentID uint) error {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return err
	}
	if err := s.docRepo.Delete(doc.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.SessionID); err != nil {
		log.Warnf("[DocumentService] 删除会话失败, session: %s, error: %v", doc.SessionID, err)
	}
	s.cleanup(ctx, doc.SessionID, doc.ObjectKey)
	log.Infof("[DocumentService] 文档已删除, DocumentID: %d", doc.ID)
	return nil
}
