package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/handlers"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/router"
	"github.com/3Eeeecho/go-drive/internal/services/drive"
	"github.com/3Eeeecho/go-drive/internal/setup"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	httpServer  *http.Server
	db          *gorm.DB
	redisClient *redis.Client
}

// NewServer 负责构建所有依赖
func NewServer(cfg *config.Config) (*Server, error) {
	// 初始化数据库连接
	db, err := setup.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
	}

	// 目录列表缓存，Redis 未启用时使用进程内缓存
	listingCache, redisClient, err := setup.InitListingCache(context.Background(), &cfg.Redis)
	if err != nil {
		setup.CloseMySQLDB(db)
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	blobs, err := setup.InitStorage(cfg)
	if err != nil {
		setup.CloseRedis(redisClient)
		setup.CloseMySQLDB(db)
		return nil, err
	}

	indexer, err := setup.InitIndexer(&cfg.Elasticsearch)
	if err != nil {
		// 搜索索引不影响网盘主流程
		logger.Warn("Elasticsearch unavailable, search indexing disabled", zap.Error(err))
		indexer = nil
	}

	svc, err := drive.New(drive.Deps{
		DB:      db,
		Blobs:   blobs,
		Cache:   listingCache,
		Indexer: indexer,
	}, drive.OptionsFromConfig(cfg))
	if err != nil {
		setup.CloseRedis(redisClient)
		setup.CloseMySQLDB(db)
		return nil, err
	}

	//  初始化 Handlers
	folderHandler := handlers.NewFolderHandler(svc)
	fileHandler := handlers.NewFileHandler(svc)
	userHandler := handlers.NewUserHandler(svc)
	serverHandler := handlers.NewServerHandler(svc)

	engine := router.InitRouter(folderHandler, fileHandler, userHandler, serverHandler, cfg)

	addr := ":" + cfg.Server.Port
	logger.Info(fmt.Sprintf("Server is running on %s", cfg.Server.Port))
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: engine,
		},
		db:          db,
		redisClient: redisClient,
	}, nil
}

// Run 启动服务器并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) {
	defer setup.CloseMySQLDB(s.db)
	defer setup.CloseRedis(s.redisClient)

	// 启动 HTTP 服务器
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	// 优雅关机
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	logger.Info("Server exited gracefully")
}
