package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskArchive 把文件保存在本地目录中，未配置 MinIO 时使用。
type DiskArchive struct {
	dir string
}

// NewDiskArchive 创建目录（如不存在）并返回归档。
func NewDiskArchive(dir string) (*DiskArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskArchive{dir: dir}, nil
}

func (a *DiskArchive) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(a.dir, filepath.FromSlash(clean)), nil
}

// Put 实现 Archive。
func (a *DiskArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := a.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// Get 实现 Archive。
func (a *DiskArchive) Get(_ context.Context, key string) ([]byte, error) {
	p, err := a.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

// Remove 实现 Archive。
func (a *DiskArchive) Remove(_ context.Context, key string) error {
	p, err := a.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
