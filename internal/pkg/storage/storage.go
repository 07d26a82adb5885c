package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/3Eeeecho/go-drive/internal/config"
)

// ErrObjectNotFound 由各后端在对象不存在时返回
var ErrObjectNotFound = errors.New("object not found")

// BlobStore 定义了文件内容的存储操作，key 由调用方生成且不对外暴露
type BlobStore interface {
	// Put 写入对象；size 未知时传 -1
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Get 返回对象读取器，调用方负责关闭
	Get(ctx context.Context, key string) (*Object, error)
	// Remove 删除对象；对象不存在视为成功
	Remove(ctx context.Context, key string) error
}

// BucketInitializer 由需要在启动时创建存储桶/目录的后端实现
type BucketInitializer interface {
	EnsureBucket(ctx context.Context) error
}

type Object struct {
	Reader      io.ReadCloser
	Size        int64
	ContentType string
}

// NewBlobStore 按配置创建后端，并包上超时和重试
func NewBlobStore(cfg *config.Config) (BlobStore, error) {
	var (
		inner BlobStore
		err   error
	)
	switch cfg.Storage.Type {
	case "local":
		inner, err = NewLocalStore(cfg.Storage.LocalBasePath)
	case "minio":
		inner, err = NewMinIOStore(&cfg.MinIO)
	case "aliyun_oss":
		inner, err = NewOSSStore(&cfg.AliyunOSS)
	case "s3":
		inner, err = NewS3Store(&cfg.S3)
	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Storage.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewResilientStore(inner, cfg.Storage.OpTimeout, cfg.Storage.RetryAttempts, cfg.Storage.RetryBackoff), nil
}
