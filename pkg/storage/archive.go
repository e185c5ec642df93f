// Package storage 保存上传的原始 PDF，以便之后重新处理。
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound 表示归档中没有该对象。
var ErrObjectNotFound = errors.New("archived object not found")

// Archive 是原始文件的归档存储。
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}
