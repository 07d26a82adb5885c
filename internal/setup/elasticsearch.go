package setup

import (
	"fmt"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/search"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// InitIndexer 未启用 Elasticsearch 时返回空实现
func InitIndexer(cfg *config.ElasticsearchConfig) (search.Indexer, error) {
	if !cfg.Enabled {
		return search.NopIndexer{}, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	// 尝试连接并获取集群信息，验证连接是否成功
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("connect elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info: %s", res.Status())
	}

	logger.Info("Elasticsearch client initialized successfully.", zap.String("index", cfg.Index))
	return search.NewESIndexer(client, cfg.Index), nil
}
