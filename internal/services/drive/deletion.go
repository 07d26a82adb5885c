package drive

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"go.uber.org/zap"
)

const opPermanentDelete = "permanent_delete"

// errLeftDeleteSet 表示节点在删除过程中被移出了要删除的子树，跳过即可
var errLeftDeleteSet = errors.New("node left the delete set")

// DeletionService 负责彻底删除，只接受已在回收站中的节点
type DeletionService struct {
	*engine
	folders *FolderStore
	files   *FileStore
}

// PermanentDeleteFile 删除回收站中的文件；文件已不存在时直接成功
func (s *DeletionService) PermanentDeleteFile(ctx context.Context, fileID string) error {
	err := s.files.purge(ctx, fileID, func(f *models.File) error {
		return requireState(f, models.StateTrashed)
	})
	if err != nil {
		return xerr.NewNodeError(opPermanentDelete, string(models.KindFile), fileID, err)
	}
	return nil
}

// PermanentDeleteFolder 自底向上逐个删除子树中的节点，每个节点一个事务
// 中途失败时已删除的部分保持删除，错误里带有失败节点的 id，重试即可继续
func (s *DeletionService) PermanentDeleteFolder(ctx context.Context, folderID string) error {
	folder, err := s.repos.Folders.FindByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, xerr.ErrNotFound) {
			return nil
		}
		return err
	}
	if folder.IsRoot() {
		return fmt.Errorf("%w: delete folder %s", xerr.ErrRootImmutable, folderID)
	}
	if err := requireState(folder, models.StateTrashed); err != nil {
		return err
	}

	st, err := s.walker(s.repos).collect(ctx, folder, true)
	if err != nil {
		return xerr.NewNodeError(opPermanentDelete, string(models.KindFolder), folderID, err)
	}
	inSet := make(map[string]struct{}, len(st.folderIDs))
	for _, id := range st.folderIDs {
		inSet[id] = struct{}{}
	}
	underDeletedFolder := func(parentID string) bool {
		_, ok := inSet[parentID]
		return ok
	}

	// 前序反转后，每个节点都排在它的父目录之前
	nodes := slices.Clone(st.nodes)
	slices.Reverse(nodes)
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return xerr.NewNodeError(opPermanentDelete, string(n.Kind()), n.NodeID(), err)
		}

		switch n.Kind() {
		case models.KindFile:
			err = s.files.purge(ctx, n.NodeID(), func(f *models.File) error {
				if f.State == models.StateTrashed || underDeletedFolder(f.FolderID) {
					return nil
				}
				return errLeftDeleteSet
			})
		case models.KindFolder:
			err = s.folders.deleteEmpty(ctx, n.NodeID(), func(f *models.Folder) error {
				if f.ParentID != nil && underDeletedFolder(*f.ParentID) {
					return nil
				}
				return errLeftDeleteSet
			})
		}
		if errors.Is(err, errLeftDeleteSet) {
			logger.Info("PermanentDeleteFolder: node moved out during delete, skipped", zap.String("nodeID", n.NodeID()))
			continue
		}
		if err != nil {
			logger.Error("PermanentDeleteFolder: aborted", zap.String("folderID", folderID), zap.String("failedNode", n.NodeID()), zap.Error(err))
			return xerr.NewNodeError(opPermanentDelete, string(n.Kind()), n.NodeID(), err)
		}
	}

	err = s.folders.deleteEmpty(ctx, folderID, func(f *models.Folder) error {
		return requireState(f, models.StateTrashed)
	})
	if err != nil {
		return xerr.NewNodeError(opPermanentDelete, string(models.KindFolder), folderID, err)
	}
	logger.Info("Folder permanently deleted", zap.String("folderID", folderID), zap.Int("nodes", len(nodes)+1))
	return nil
}
