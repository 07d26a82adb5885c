package drive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/cache"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/search"
	"github.com/3Eeeecho/go-drive/internal/pkg/storage"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repos 汇总引擎用到的三个仓库
type Repos struct {
	Users   repositories.UserRepository
	Folders repositories.FolderRepository
	Files   repositories.FileRepository
}

func NewRepos(db *gorm.DB) Repos {
	return Repos{
		Users:   repositories.NewUserRepository(db),
		Folders: repositories.NewFolderRepository(db),
		Files:   repositories.NewFileRepository(db),
	}
}

// WithTx 返回绑定到事务的一组仓库
func (r Repos) WithTx(tx *gorm.DB) Repos {
	return Repos{
		Users:   r.Users.WithTx(tx),
		Folders: r.Folders.WithTx(tx),
		Files:   r.Files.WithTx(tx),
	}
}

// engine 是各个 store/service 共享的依赖
type engine struct {
	tm       TransactionManager
	repos    Repos
	blobs    storage.BlobStore
	cache    cache.Cache
	cacheTTL time.Duration
	indexer  search.Indexer
	indexing bool // 为 false 时跳过建索引所需的路径计算
	maxDepth int
	tempDir  string
}

func (e *engine) walker(r Repos) *TreeWalker {
	return NewTreeWalker(r.Folders, r.Files, e.maxDepth)
}

func (e *engine) quota(r Repos) *QuotaLedger {
	return NewQuotaLedger(r.Users)
}

// inTx 在事务里执行 fn，fn 拿到的是绑定事务的仓库
func (e *engine) inTx(ctx context.Context, fn func(r Repos) error) error {
	return e.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		return fn(e.repos.WithTx(tx))
	})
}

// errChainMoved 表示加锁后发现祖先链已被并发移动改变
var errChainMoved = errors.New("ancestor chain changed")

// maxChainAttempts 是祖先链被并发改变时整个事务的最大尝试次数
const maxChainAttempts = 3

// inTxStable 与 inTx 相同，fn 返回 errChainMoved 时重新执行整个事务
func (e *engine) inTxStable(ctx context.Context, fn func(r Repos) error) error {
	for attempt := 1; ; attempt++ {
		err := e.inTx(ctx, fn)
		if !errors.Is(err, errChainMoved) {
			return err
		}
		if attempt >= maxChainAttempts {
			return fmt.Errorf("%w: folder tree changed concurrently: %w", xerr.ErrConflict, err)
		}
		logger.Warn("ancestor chain changed, retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
	}
}

// lockChains 锁定 chains 中的全部目录 (按 id 排序加锁)，再确认每条链与加锁后的父指针一致
// 每条链从某个目录开始，依次是它的父目录，最后一个必须是根目录
func lockChains(ctx context.Context, r Repos, chains ...[]string) (map[string]*models.Folder, error) {
	var ids []string
	for _, c := range chains {
		ids = append(ids, c...)
	}
	locked, err := r.Folders.LockByIDs(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for _, c := range chains {
		if err := verifyChain(locked, c); err != nil {
			return nil, err
		}
	}
	return locked, nil
}

func verifyChain(locked map[string]*models.Folder, chain []string) error {
	for i, id := range chain {
		f, ok := locked[id]
		if !ok {
			return fmt.Errorf("%w: folder %s not locked", errChainMoved, id)
		}
		if i == len(chain)-1 {
			if f.ParentID != nil {
				return fmt.Errorf("%w: folder %s is no longer the root of the chain", errChainMoved, id)
			}
			continue
		}
		if f.ParentID == nil || *f.ParentID != chain[i+1] {
			return fmt.Errorf("%w: parent of folder %s is no longer %s", errChainMoved, id, chain[i+1])
		}
	}
	return nil
}

// invalidate 删除这些目录的列表缓存，失败只记日志
func (e *engine) invalidate(ctx context.Context, folderIDs ...string) {
	keys := cache.ListingKeys(folderIDs...)
	if len(keys) == 0 {
		return
	}
	if err := e.cache.Del(context.WithoutCancel(ctx), keys...); err != nil {
		logger.Warn("invalidate listing cache failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (e *engine) index(ctx context.Context, node models.Node) {
	if !e.indexing {
		return
	}
	ctx = context.WithoutCancel(ctx)
	path, err := NewPathResolver(e.walker(e.repos)).Resolve(ctx, node)
	if err != nil {
		logger.Warn("resolve path for index failed", zap.String("nodeID", node.NodeID()), zap.Error(err))
		return
	}
	e.indexAt(ctx, node, path)
}

// reindexSubtree 重新索引 folder 和它的全部后代
// 改名、移动、回收和跨用户移动都会改变后代文档里的路径、状态或属主
func (e *engine) reindexSubtree(ctx context.Context, folder *models.Folder) {
	if !e.indexing {
		return
	}
	ctx = context.WithoutCancel(ctx)
	w := e.walker(e.repos)
	base, err := NewPathResolver(w).Resolve(ctx, folder)
	if err != nil {
		logger.Warn("resolve path for index failed", zap.String("nodeID", folder.ID), zap.Error(err))
		return
	}
	e.indexAt(ctx, folder, base)

	// 前序遍历保证父目录的路径先于子节点算出
	paths := map[string]string{folder.ID: base}
	err = w.ForEachDescendant(ctx, folder, true, func(n models.Node, _ int) error {
		path := paths[*n.ParentNodeID()] + "/" + n.DisplayName()
		if n.Kind() == models.KindFolder {
			paths[n.NodeID()] = path
		}
		e.indexAt(ctx, n, path)
		return nil
	})
	if err != nil {
		logger.Warn("reindex subtree failed", zap.String("folderID", folder.ID), zap.Error(err))
	}
}

func (e *engine) indexAt(ctx context.Context, node models.Node, path string) {
	doc := search.NodeDocument{
		ID:        node.NodeID(),
		Kind:      string(node.Kind()),
		Name:      node.DisplayName(),
		Path:      path,
		OwnerID:   node.OwnerID(),
		Size:      node.ByteSize(),
		State:     node.CurrentState().String(),
		UpdatedAt: time.Now(),
	}
	if parent := node.ParentNodeID(); parent != nil {
		doc.ParentID = *parent
	}
	if f, ok := node.(*models.File); ok {
		doc.MimeType = f.MimeType
	}
	_ = e.indexer.IndexNode(ctx, doc)
}

func (e *engine) unindex(ctx context.Context, id string) {
	_ = e.indexer.DeleteNode(context.WithoutCancel(ctx), id)
}

// requireState 检查节点状态，不满足时返回 ErrInvalidState
func requireState(node models.Node, want models.NodeState) error {
	if node.CurrentState() != want {
		return fmt.Errorf("%w: %s %s is %s, want %s",
			xerr.ErrInvalidState, node.Kind(), node.NodeID(), node.CurrentState(), want)
	}
	return nil
}
