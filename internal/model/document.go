package model

import "time"

// 文档处理状态
const (
	DocumentStatusProcessing = 0
	DocumentStatusReady      = 1
	DocumentStatusFailed     = 2
)

// Document 对应数据库中的 documents 表，记录每个上传 PDF 的元数据。
type Document struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName       string     `gorm:"type:varchar(255);not null" json:"fileName"`
	FileMD5        string     `gorm:"type:varchar(32);not null;index" json:"fileMd5"`
	FileSize       int64      `gorm:"not null" json:"fileSize"`
	ObjectKey      string     `gorm:"type:varchar(255)" json:"objectKey"`
	SessionID      string     `gorm:"type:varchar(36);uniqueIndex" json:"sessionId"`
	PageCount      int        `gorm:"not null;default:0" json:"pageCount"`
	ChunkCount     int        `gorm:"not null;default:0" json:"chunkCount"`
	Mode           string     `gorm:"type:varchar(16)" json:"mode"`
	DegradedReason string     `gorm:"type:varchar(512)" json:"degradedReason,omitempty"`
	Status         int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt    *time.Time `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// ExtractedDocument 是文本提取的结果，提取完成后不再修改。
type ExtractedDocument struct {
	Name      string
	PageCount int
	Text      string
}
