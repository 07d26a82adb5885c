package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// NodeDocument 是写入搜索引擎的节点文档
type NodeDocument struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	ParentID  string    `json:"parent_id,omitempty"`
	OwnerID   uint64    `json:"owner_id"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type,omitempty"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Indexer 维护节点名称/路径索引，失败不影响主流程
type Indexer interface {
	IndexNode(ctx context.Context, doc NodeDocument) error
	DeleteNode(ctx context.Context, id string) error
}

type ESIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewESIndexer(client *elasticsearch.Client, index string) *ESIndexer {
	return &ESIndexer{client: client, index: index}
}

func (e *ESIndexer) IndexNode(ctx context.Context, doc NodeDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化索引文档失败: %w", err)
	}
	res, err := e.client.Index(
		e.index,
		bytes.NewReader(body),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(doc.ID),
	)
	if err != nil {
		return fmt.Errorf("写入 Elasticsearch 失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("写入 Elasticsearch 失败: %s", res.Status())
	}
	return nil
}

func (e *ESIndexer) DeleteNode(ctx context.Context, id string) error {
	res, err := e.client.Delete(e.index, id, e.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("删除 Elasticsearch 文档失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除 Elasticsearch 文档失败: %s", res.Status())
	}
	return nil
}

// NopIndexer 在未启用 Elasticsearch 时使用
type NopIndexer struct{}

func (NopIndexer) IndexNode(context.Context, NodeDocument) error { return nil }
func (NopIndexer) DeleteNode(context.Context, string) error      { return nil }

// BestEffort 包装 Indexer，只记录错误不向上返回
type BestEffort struct {
	Indexer Indexer
}

func (b BestEffort) IndexNode(ctx context.Context, doc NodeDocument) error {
	if err := b.Indexer.IndexNode(ctx, doc); err != nil {
		logger.Warn("索引节点失败", zap.String("nodeID", doc.ID), zap.Error(err))
	}
	return nil
}

func (b BestEffort) DeleteNode(ctx context.Context, id string) error {
	if err := b.Indexer.DeleteNode(ctx, id); err != nil {
		logger.Warn("删除节点索引失败", zap.String("nodeID", id), zap.Error(err))
	}
	return nil
}
