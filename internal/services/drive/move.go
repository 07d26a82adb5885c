package drive

import (
	"context"
	"fmt"
	"slices"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/repositories"
	"go.uber.org/zap"
)

// MoveService 在一个事务里完成移动：改父节点、两侧祖先大小、跨用户时的属主和配额
type MoveService struct {
	*engine
}

// moveTarget 是已加锁并校验过的目标目录及其祖先链
type moveTarget struct {
	folder *models.Folder
	chain  []string // 目标目录加上它的全部祖先
}

// lockTarget 锁定新旧属主和新旧两条祖先链上的全部目录，并确认两条链在加锁后仍然成立
func (s *MoveService) lockTarget(ctx context.Context, r Repos, dest *models.Folder, destAncestors, oldChain []string, oldOwner uint64) (*moveTarget, error) {
	if _, err := r.Users.LockByIDs(ctx, oldOwner, dest.OwnedByID); err != nil {
		return nil, err
	}
	chain := append([]string{dest.ID}, destAncestors...)
	locked, err := lockChains(ctx, r, chain, oldChain)
	if err != nil {
		return nil, err
	}
	current := locked[dest.ID]
	if err := requireState(current, models.StateActive); err != nil {
		return nil, err
	}
	if current.OwnedByID != dest.OwnedByID {
		return nil, fmt.Errorf("%w: owner of folder %s changed", errChainMoved, dest.ID)
	}
	return &moveTarget{folder: current, chain: chain}, nil
}

// MoveFolder 把目录连同子树移动到 destID 下；目标目录的属主成为整棵子树的新属主
func (s *MoveService) MoveFolder(ctx context.Context, folderID, destID string, m repositories.Mutation) (*models.Folder, error) {
	var (
		folder     *models.Folder
		oldChain   []string
		newChain   []string
		subtreeIDs []string
		moved      bool
	)
	err := s.inTxStable(ctx, func(r Repos) error {
		subtreeIDs, moved = nil, false
		locked, err := r.Folders.LockByIDs(ctx, folderID)
		if err != nil {
			return err
		}
		folder = locked[folderID]
		if folder.IsRoot() {
			return fmt.Errorf("%w: move folder %s", xerr.ErrRootImmutable, folderID)
		}
		if destID == folderID {
			return fmt.Errorf("%w: folder %s into itself", xerr.ErrCycle, folderID)
		}

		w := s.walker(r)
		dest, err := r.Folders.FindByID(ctx, destID)
		if err != nil {
			return err
		}
		destAncestors, err := w.AncestorIDs(ctx, dest)
		if err != nil {
			return err
		}
		if slices.Contains(destAncestors, folderID) {
			return fmt.Errorf("%w: folder %s into its descendant %s", xerr.ErrCycle, folderID, destID)
		}
		if err := requireState(dest, models.StateActive); err != nil {
			return err
		}
		if *folder.ParentID == destID {
			return nil
		}
		if folder.State == models.StateActive {
			taken, err := r.Folders.NameTaken(ctx, destID, dest.OwnedByID, folder.Name, folder.ID)
			if err != nil {
				return err
			}
			if taken {
				logger.Warn("MoveFolder: name conflict at destination", zap.String("folderID", folderID), zap.String("destID", destID))
				return fmt.Errorf("%w: folder %q already exists in %s", xerr.ErrConflict, folder.Name, destID)
			}
		}

		oldChain, err = w.AncestorIDs(ctx, folder)
		if err != nil {
			return err
		}
		target, err := s.lockTarget(ctx, r, dest, destAncestors, oldChain, folder.OwnedByID)
		if err != nil {
			return err
		}
		newChain = target.chain
		// 加锁后的链才是可信的，并发的交叉移动只能在这里被发现
		if slices.Contains(newChain, folderID) {
			return fmt.Errorf("%w: folder %s into its descendant %s", xerr.ErrCycle, folderID, destID)
		}

		if err := r.Folders.AddSize(ctx, oldChain, -folder.Size, repositories.SystemMutation); err != nil {
			return err
		}
		newOwner := target.folder.OwnedByID
		if newOwner != folder.OwnedByID {
			st, err := w.collect(ctx, folder, true)
			if err != nil {
				return err
			}
			subtreeIDs = st.folderIDs
			if err := s.transferOwnership(ctx, r, folder.OwnedByID, newOwner, folder.Size, func() error {
				if err := r.Folders.ReassignOwner(ctx, st.folderIDs, newOwner, repositories.SystemMutation); err != nil {
					return err
				}
				return r.Files.ReassignOwnerInFolders(ctx, st.folderIDs, newOwner, repositories.SystemMutation)
			}); err != nil {
				return err
			}
			folder.OwnedByID = newOwner
		}
		if err := r.Folders.SetParent(ctx, folderID, destID, m); err != nil {
			return err
		}
		if err := r.Folders.AddSize(ctx, newChain, folder.Size, repositories.SystemMutation); err != nil {
			return err
		}
		folder.ParentID = &destID
		folder.UpdatedByID = m.UpdatedBy(folder.UpdatedByID)
		moved = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return folder, nil
	}

	s.invalidate(ctx, append(append(oldChain, newChain...), subtreeIDs...)...)
	s.reindexSubtree(ctx, folder)
	logger.Info("Folder moved", zap.String("folderID", folderID), zap.String("destID", destID), zap.Int("reassigned", len(subtreeIDs)))
	return folder, nil
}

// MoveFile 把单个文件移动到 destID 下
func (s *MoveService) MoveFile(ctx context.Context, fileID, destID string, m repositories.Mutation) (*models.File, error) {
	var (
		file     *models.File
		oldChain []string
		newChain []string
		moved    bool
	)
	err := s.inTxStable(ctx, func(r Repos) error {
		moved = false
		var err error
		file, err = r.Files.LockByID(ctx, fileID)
		if err != nil {
			return err
		}

		w := s.walker(r)
		dest, err := r.Folders.FindByID(ctx, destID)
		if err != nil {
			return err
		}
		if err := requireState(dest, models.StateActive); err != nil {
			return err
		}
		if file.FolderID == destID {
			return nil
		}
		if file.State == models.StateActive {
			taken, err := r.Files.NameTaken(ctx, destID, dest.OwnedByID, file.Name, file.Extension, file.ID)
			if err != nil {
				return err
			}
			if taken {
				logger.Warn("MoveFile: name conflict at destination", zap.String("fileID", fileID), zap.String("destID", destID))
				return fmt.Errorf("%w: file %q already exists in %s", xerr.ErrConflict, file.FullName(), destID)
			}
		}

		destAncestors, err := w.AncestorIDs(ctx, dest)
		if err != nil {
			return err
		}
		oldChain, err = w.AncestorIDs(ctx, file)
		if err != nil {
			return err
		}
		target, err := s.lockTarget(ctx, r, dest, destAncestors, oldChain, file.OwnedByID)
		if err != nil {
			return err
		}
		newChain = target.chain

		if err := r.Folders.AddSize(ctx, oldChain, -file.Size, repositories.SystemMutation); err != nil {
			return err
		}
		newOwner := target.folder.OwnedByID
		if newOwner != file.OwnedByID {
			if err := s.transferOwnership(ctx, r, file.OwnedByID, newOwner, file.Size, func() error {
				return r.Files.ReassignOwner(ctx, fileID, newOwner, repositories.SystemMutation)
			}); err != nil {
				return err
			}
			file.OwnedByID = newOwner
		}
		if err := r.Files.SetFolder(ctx, fileID, destID, m); err != nil {
			return err
		}
		if err := r.Folders.AddSize(ctx, newChain, file.Size, repositories.SystemMutation); err != nil {
			return err
		}
		file.FolderID = destID
		file.UpdatedByID = m.UpdatedBy(file.UpdatedByID)
		moved = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return file, nil
	}

	s.invalidate(ctx, append(oldChain, newChain...)...)
	s.index(ctx, file)
	logger.Info("File moved", zap.String("fileID", fileID), zap.String("destID", destID))
	return file, nil
}

// transferOwnership 先归还旧属主的配额，再改属主，最后向新属主扣配额
// 新属主空间不足时返回 ErrQuotaExceeded，由外层事务回滚
func (s *MoveService) transferOwnership(ctx context.Context, r Repos, from, to uint64, size int64, reassign func() error) error {
	q := s.quota(r)
	if err := q.Release(ctx, from, size); err != nil {
		return err
	}
	if err := reassign(); err != nil {
		return err
	}
	if err := q.Charge(ctx, to, size); err != nil {
		logger.Warn("move: destination owner has no room", zap.Uint64("from", from), zap.Uint64("to", to), zap.Int64("size", size))
		return err
	}
	return nil
}
