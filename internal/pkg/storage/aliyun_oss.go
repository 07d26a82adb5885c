package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"
)

type OSSStore struct {
	client *oss.Client
	bucket string
}

// NewOSSStore 创建阿里云 OSS 后端，Endpoint 需要带 http:// 或 https://
func NewOSSStore(cfg *config.AliyunOSSConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		logger.Error("初始化阿里云OSS客户端失败", zap.Error(err))
		return nil, fmt.Errorf("无法初始化阿里云OSS客户端: %w", err)
	}
	logger.Info("阿里云OSS客户端初始化成功", zap.String("endpoint", cfg.Endpoint))
	return &OSSStore{client: client, bucket: cfg.BucketName}, nil
}

func (s *OSSStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.IsBucketExist(s.bucket)
	if err != nil {
		return fmt.Errorf("检查阿里云OSS存储桶存在性失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.CreateBucket(s.bucket); err != nil && !isOSSCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
		return fmt.Errorf("创建阿里云OSS存储桶失败: %w", err)
	}
	logger.Info("阿里云OSS存储桶创建成功", zap.String("bucket", s.bucket))
	return nil
}

func (s *OSSStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return fmt.Errorf("获取OSS存储桶失败: %w", err)
	}
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if size >= 0 {
		opts = append(opts, oss.ContentLength(size))
	}
	if err := bucket.PutObject(key, reader, opts...); err != nil {
		return fmt.Errorf("阿里云OSS上传文件失败: %w", err)
	}
	return nil
}

func (s *OSSStore) Get(ctx context.Context, key string) (*Object, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return nil, fmt.Errorf("获取OSS存储桶失败: %w", err)
	}
	props, err := bucket.GetObjectDetailedMeta(key, oss.WithContext(ctx))
	if err != nil {
		if isOSSCode(err, "NoSuchKey") || isOSSStatus(err, 404) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("获取OSS对象元数据失败: %w", err)
	}
	reader, err := bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("阿里云OSS获取文件失败: %w", err)
	}
	size, _ := strconv.ParseInt(props.Get(oss.HTTPHeaderContentLength), 10, 64)
	return &Object{
		Reader:      reader,
		Size:        size,
		ContentType: props.Get(oss.HTTPHeaderContentType),
	}, nil
}

// Remove OSS 删除不存在的对象也返回成功
func (s *OSSStore) Remove(ctx context.Context, key string) error {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return fmt.Errorf("获取OSS存储桶失败: %w", err)
	}
	if err := bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("阿里云OSS删除文件失败: %w", err)
	}
	return nil
}

func isOSSCode(err error, codes ...string) bool {
	var svcErr oss.ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	for _, c := range codes {
		if svcErr.Code == c {
			return true
		}
	}
	return false
}

func isOSSStatus(err error, status int) bool {
	var svcErr oss.ServiceError
	return errors.As(err, &svcErr) && svcErr.StatusCode == status
}
