package drive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/utils"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FolderStore 负责目录的增改、回收和恢复
type FolderStore struct {
	*engine
}

// CreateRoot 为用户创建以用户名命名的根目录；已存在时直接返回
func (s *FolderStore) CreateRoot(ctx context.Context, userID uint64) (*models.Folder, error) {
	var root *models.Folder
	err := s.inTx(ctx, func(r Repos) error {
		locked, err := r.Users.LockByIDs(ctx, userID)
		if err != nil {
			return err
		}
		user := locked[userID]

		if user.FolderID != nil {
			root, err = r.Folders.FindByID(ctx, *user.FolderID)
			if err == nil {
				return nil
			}
			if !errors.Is(err, xerr.ErrNotFound) {
				return err
			}
		}
		if existing, err := r.Folders.FindRootByOwner(ctx, userID); err == nil {
			root = existing
			return r.Users.SetRootFolder(ctx, userID, existing.ID)
		} else if !errors.Is(err, xerr.ErrNotFound) {
			return err
		}

		root = &models.Folder{
			ID:          uuid.NewString(),
			Name:        user.Username,
			OwnedByID:   userID,
			CreatedByID: userID,
			UpdatedByID: userID,
			State:       models.StateActive,
		}
		if err := r.Folders.Create(ctx, root); err != nil {
			return err
		}
		return r.Users.SetRootFolder(ctx, userID, root.ID)
	})
	if err != nil {
		logger.Error("CreateRoot: failed to provision root folder", zap.Uint64("userID", userID), zap.Error(err))
		return nil, err
	}
	return root, nil
}

// Create 在 parentID 下新建目录，ownerID 必须与父目录的属主一致
func (s *FolderStore) Create(ctx context.Context, ownerID uint64, parentID, name string, actorID uint64) (*models.Folder, error) {
	if !utils.ValidateName(name) {
		return nil, fmt.Errorf("%w: %q", xerr.ErrNameInvalid, name)
	}

	var folder *models.Folder
	err := s.inTx(ctx, func(r Repos) error {
		locked, err := r.Folders.LockByIDs(ctx, parentID)
		if err != nil {
			return err
		}
		parent := locked[parentID]
		if err := requireState(parent, models.StateActive); err != nil {
			return err
		}
		if parent.OwnedByID != ownerID {
			return fmt.Errorf("%w: folder %s is not owned by user %d", xerr.ErrForbidden, parentID, ownerID)
		}

		taken, err := r.Folders.NameTaken(ctx, parentID, ownerID, name, "")
		if err != nil {
			return err
		}
		if taken {
			logger.Warn("Create: folder name conflict", zap.String("parentID", parentID), zap.String("name", name))
			return fmt.Errorf("%w: folder %q", xerr.ErrConflict, name)
		}

		folder = &models.Folder{
			ID:          uuid.NewString(),
			Name:        name,
			ParentID:    &parentID,
			OwnedByID:   ownerID,
			CreatedByID: actorID,
			UpdatedByID: actorID,
			State:       models.StateActive,
		}
		return r.Folders.Create(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, parentID)
	s.index(ctx, folder)
	logger.Info("Folder created", zap.String("folderID", folder.ID), zap.String("parentID", parentID), zap.Uint64("ownerID", ownerID))
	return folder, nil
}

// Rename 在当前父目录范围内检查重名
func (s *FolderStore) Rename(ctx context.Context, folderID, newName string, m repositories.Mutation) (*models.Folder, error) {
	if !utils.ValidateName(newName) {
		return nil, fmt.Errorf("%w: %q", xerr.ErrNameInvalid, newName)
	}

	var folder *models.Folder
	err := s.inTx(ctx, func(r Repos) error {
		locked, err := r.Folders.LockByIDs(ctx, folderID)
		if err != nil {
			return err
		}
		folder = locked[folderID]
		if err := requireState(folder, models.StateActive); err != nil {
			return err
		}
		if folder.Name == newName {
			return nil
		}
		if !folder.IsRoot() {
			taken, err := r.Folders.NameTaken(ctx, *folder.ParentID, folder.OwnedByID, newName, folder.ID)
			if err != nil {
				return err
			}
			if taken {
				logger.Warn("Rename: folder name conflict", zap.String("folderID", folderID), zap.String("name", newName))
				return fmt.Errorf("%w: folder %q", xerr.ErrConflict, newName)
			}
		}
		if err := r.Folders.Rename(ctx, folderID, newName, m); err != nil {
			return err
		}
		folder.Name = newName
		folder.UpdatedByID = m.UpdatedBy(folder.UpdatedByID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if folder.ParentID != nil {
		s.invalidate(ctx, *folder.ParentID)
	}
	s.invalidate(ctx, folder.ID)
	s.reindexSubtree(ctx, folder)
	return folder, nil
}

// Trash 把目录及整个子树标记为回收站状态，不改变任何聚合大小
func (s *FolderStore) Trash(ctx context.Context, folderID string, m repositories.Mutation) error {
	var (
		folder   *models.Folder
		affected []string
	)
	err := s.inTx(ctx, func(r Repos) error {
		locked, err := r.Folders.LockByIDs(ctx, folderID)
		if err != nil {
			return err
		}
		folder = locked[folderID]
		if folder.IsRoot() {
			return fmt.Errorf("%w: trash folder %s", xerr.ErrRootImmutable, folderID)
		}
		if err := requireState(folder, models.StateActive); err != nil {
			return err
		}

		// 回收站中的子目录下可能有单独恢复过的节点，所以要穿过它们继续遍历，只标记 Active 的节点
		st, err := s.walker(r).collect(ctx, folder, true)
		if err != nil {
			return err
		}
		folderIDs, fileIDs := st.activeIDs()
		now := time.Now()
		if err := r.Folders.MarkTrashed(ctx, append([]string{folder.ID}, folderIDs...), now, m); err != nil {
			return err
		}
		if err := r.Files.MarkTrashed(ctx, fileIDs, now, m); err != nil {
			return err
		}
		affected = append(st.folderIDs, *folder.ParentID)
		folder.State = models.StateTrashed
		folder.DeletedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, affected...)
	s.reindexSubtree(ctx, folder)
	logger.Info("Folder trashed", zap.String("folderID", folderID), zap.Int("folders", len(affected)-1))
	return nil
}

// Restore 只恢复这一个目录，子节点保持各自的状态
func (s *FolderStore) Restore(ctx context.Context, folderID string, m repositories.Mutation) error {
	var folder *models.Folder
	err := s.inTx(ctx, func(r Repos) error {
		locked, err := r.Folders.LockByIDs(ctx, folderID)
		if err != nil {
			return err
		}
		folder = locked[folderID]
		if err := requireState(folder, models.StateTrashed); err != nil {
			return err
		}
		taken, err := r.Folders.NameTaken(ctx, *folder.ParentID, folder.OwnedByID, folder.Name, folder.ID)
		if err != nil {
			return err
		}
		if taken {
			logger.Warn("Restore: folder name conflict", zap.String("folderID", folderID), zap.String("name", folder.Name))
			return fmt.Errorf("%w: folder %q", xerr.ErrConflict, folder.Name)
		}
		if err := r.Folders.MarkActive(ctx, folderID, m); err != nil {
			return err
		}
		folder.State = models.StateActive
		folder.DeletedAt = nil
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, *folder.ParentID, folder.ID)
	s.index(ctx, folder)
	logger.Info("Folder restored", zap.String("folderID", folderID))
	return nil
}

// deleteEmpty 删除已经清空的目录行；allowed 校验加锁后的当前状态
func (s *FolderStore) deleteEmpty(ctx context.Context, folderID string, allowed func(*models.Folder) error) error {
	var parentID *string
	err := s.inTx(ctx, func(r Repos) error {
		locked, err := r.Folders.LockByIDs(ctx, folderID)
		if err != nil {
			if errors.Is(err, xerr.ErrNotFound) {
				return nil
			}
			return err
		}
		folder := locked[folderID]
		if folder.IsRoot() {
			return fmt.Errorf("%w: delete folder %s", xerr.ErrRootImmutable, folderID)
		}
		if err := allowed(folder); err != nil {
			return err
		}
		parentID = folder.ParentID

		files, err := r.Files.ListByFolder(ctx, folderID, true)
		if err != nil {
			return err
		}
		children, err := r.Folders.ListChildren(ctx, folderID, true)
		if err != nil {
			return err
		}
		if len(files) > 0 || len(children) > 0 {
			return fmt.Errorf("%w: folder %s gained new children during delete", xerr.ErrInvalidState, folderID)
		}
		if folder.Size != 0 {
			return fmt.Errorf("%w: empty folder %s still reports %d bytes", xerr.ErrCorruptTree, folderID, folder.Size)
		}
		return r.Folders.Delete(ctx, folderID)
	})
	if err != nil {
		return err
	}
	if parentID != nil {
		s.invalidate(ctx, *parentID)
	}
	s.invalidate(ctx, folderID)
	s.unindex(ctx, folderID)
	return nil
}
