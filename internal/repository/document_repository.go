// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"sort"
	"sync"

	"pdf-chat-go/internal/model"

	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示文档记录不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	Update(doc *model.Document) error
	FindByID(id uint) (*model.Document, error)
	FindBySessionID(sessionID string) (*model.Document, error)
	List() ([]model.Document, error)
	Delete(id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 GORM 实现。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) Update(doc *model.Document) error {
	return r.db.Save(doc).Error
}

func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindBySessionID(sessionID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("session_id = ?", sessionID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List 按创建时间倒序返回所有文档。
func (r *documentRepository) List() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("created_at desc").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) Delete(id uint) error {
	res := r.db.Delete(&model.Document{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// memoryDocumentRepository 是未配置 MySQL 时的进程内实现。
type memoryDocumentRepository struct {
	mu     sync.RWMutex
	nextID uint
	docs   map[uint]model.Document
}

// NewMemoryDocumentRepository 创建进程内实现，记录随进程结束而丢失。
func NewMemoryDocumentRepository() DocumentRepository {
	return &memoryDocumentRepository{docs: make(map[uint]model.Document)}
}

func (r *memoryDocumentRepository) Create(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	doc.ID = r.nextID
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memoryDocumentRepository) Update(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		return ErrDocumentNotFound
	}
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memoryDocumentRepository) FindByID(id uint) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return &doc, nil
}

func (r *memoryDocumentRepository) FindBySessionID(sessionID string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.docs {
		if doc.SessionID == sessionID {
			d := doc
			return &d, nil
		}
	}
	return nil, ErrDocumentNotFound
}

func (r *memoryDocumentRepository) List() ([]model.Document, error) {
	r.mu.RLock()
	docs := make([]model.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		docs = append(docs, doc)
	}
	r.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID > docs[j].ID })
	return docs, nil
}

func (r *memoryDocumentRepository) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}
