package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"go.uber.org/zap"
)

// LocalStore 把对象保存在本地磁盘，按 key 前两位分目录
type LocalStore struct {
	basePath string
}

func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		return nil, errors.New("local storage base path is empty")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析本地存储路径: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

func (s *LocalStore) EnsureBucket(ctx context.Context) error {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("创建本地存储目录失败: %w", err)
	}
	logger.Info("本地存储目录已就绪", zap.String("path", s.basePath))
	return nil
}

func (s *LocalStore) objectPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, "\\\x00") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.basePath, shard, filepath.FromSlash(key)), nil
}

// Put 先写临时文件再 rename，读者不会看到写了一半的对象
func (s *LocalStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("创建对象目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: reader})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("写入本地对象失败: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("写入本地对象失败: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("写入本地对象失败: %w", err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (*Object, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("读取本地对象失败: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("读取本地对象失败: %w", err)
	}
	return &Object{
		Reader:      f,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
	}, nil
}

func (s *LocalStore) Remove(ctx context.Context, key string) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除本地对象失败: %w", err)
	}
	return nil
}

// contextReader 让本地拷贝也能响应取消和超时
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
