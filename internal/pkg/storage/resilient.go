package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"go.uber.org/zap"
)

// ResilientStore 给每次 blob 操作加上超时和有限次重试，并把错误归类为
// xerr.ErrStorage / xerr.ErrStorageUnavailable
type ResilientStore struct {
	inner    BlobStore
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

func NewResilientStore(inner BlobStore, timeout time.Duration, attempts int, backoff time.Duration) *ResilientStore {
	if attempts < 1 {
		attempts = 1
	}
	return &ResilientStore{inner: inner, timeout: timeout, attempts: attempts, backoff: backoff}
}

// EnsureBucket 透传给底层后端
func (s *ResilientStore) EnsureBucket(ctx context.Context) error {
	if bi, ok := s.inner.(BucketInitializer); ok {
		return bi.EnsureBucket(ctx)
	}
	return nil
}

// Put 只有 reader 可以 Seek 时才会重试，否则第一次失败就返回
func (s *ResilientStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	seeker, seekable := reader.(io.Seeker)
	return s.retry(ctx, "put", key, func(attempt int) (bool, error) {
		if attempt > 1 {
			if !seekable {
				return false, nil
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return false, nil
			}
		}
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		return true, s.inner.Put(opCtx, key, reader, size, contentType)
	})
}

// Get 的超时只约束打开对象，读取过程交给调用方的 ctx
func (s *ResilientStore) Get(ctx context.Context, key string) (*Object, error) {
	var obj *Object
	err := s.retry(ctx, "get", key, func(int) (bool, error) {
		opCtx, cancel := context.WithCancel(ctx)
		var timedOut bool
		var mu sync.Mutex
		var timer *time.Timer
		if s.timeout > 0 {
			timer = time.AfterFunc(s.timeout, func() {
				mu.Lock()
				timedOut = true
				mu.Unlock()
				cancel()
			})
		}
		o, err := s.inner.Get(opCtx, key)
		if timer != nil {
			timer.Stop()
		}
		mu.Lock()
		fired := timedOut
		mu.Unlock()
		if err != nil {
			cancel()
			if fired && ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
			}
			return true, err
		}
		o.Reader = &cancelOnClose{ReadCloser: o.Reader, cancel: cancel}
		obj = o
		return true, nil
	})
	return obj, err
}

func (s *ResilientStore) Remove(ctx context.Context, key string) error {
	return s.retry(ctx, "remove", key, func(int) (bool, error) {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		return true, s.inner.Remove(opCtx, key)
	})
}

func (s *ResilientStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// retry 执行 fn，fn 返回 attempted=false 表示不能再试
func (s *ResilientStore) retry(ctx context.Context, op, key string, fn func(attempt int) (bool, error)) error {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		attempted, err := fn(attempt)
		if !attempted {
			break
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrObjectNotFound) || ctx.Err() != nil {
			break
		}
		logger.Warn("blob 操作失败，准备重试",
			zap.String("op", op), zap.String("key", key), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < s.attempts && s.backoff > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = s.attempts
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
	}
	return classify(ctx, op, key, lastErr)
}

func classify(ctx context.Context, op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		logger.Error("blob 操作超时", zap.String("op", op), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", xerr.ErrStorageUnavailable, op, key, err)
	}
	logger.Error("blob 操作失败", zap.String("op", op), zap.String("key", key), zap.Error(err))
	return fmt.Errorf("%w: %s %s: %w", xerr.ErrStorage, op, key, err)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
