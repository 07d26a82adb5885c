package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FolderRepository 是 drive_folders 的数据访问接口
type FolderRepository interface {
	WithTx(tx *gorm.DB) FolderRepository
	Create(ctx context.Context, folder *models.Folder) error
	FindByID(ctx context.Context, id string) (*models.Folder, error)
	// LockByIDs 按 id 升序加写锁，缺失的行直接返回 ErrFolderNotFound
	LockByIDs(ctx context.Context, ids ...string) (map[string]*models.Folder, error)
	FindRootByOwner(ctx context.Context, ownerID uint64) (*models.Folder, error)
	ListChildren(ctx context.Context, parentID string, includeTrashed bool) ([]models.Folder, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]models.Folder, error)
	// PageByOwner 分页返回用户的全部目录 (含回收站)，page 从 1 开始
	PageByOwner(ctx context.Context, ownerID uint64, page, pageSize int) ([]models.Folder, int64, error)
	ListTrashed(ctx context.Context, ownerID uint64) ([]models.Folder, error)
	// NameTaken 检查同一父目录下是否已有未进回收站的同名目录
	NameTaken(ctx context.Context, parentID string, ownerID uint64, name, excludeID string) (bool, error)
	Rename(ctx context.Context, id, name string, m Mutation) error
	SetParent(ctx context.Context, id, parentID string, m Mutation) error
	// MarkTrashed 只修改仍处于 Active 的行，已在回收站的保留原来的时间
	MarkTrashed(ctx context.Context, ids []string, at time.Time, m Mutation) error
	MarkActive(ctx context.Context, id string, m Mutation) error
	// AddSize 和 ReassignOwner 是聚合维护，调用方通常传 SystemMutation
	AddSize(ctx context.Context, ids []string, delta int64, m Mutation) error
	ReassignOwner(ctx context.Context, ids []string, ownerID uint64, m Mutation) error
	Delete(ctx context.Context, id string) error
}

type folderRepository struct {
	db *gorm.DB
}

var _ FolderRepository = (*folderRepository)(nil)

func NewFolderRepository(db *gorm.DB) FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) WithTx(tx *gorm.DB) FolderRepository {
	return &folderRepository{db: tx}
}

func (r *folderRepository) Create(ctx context.Context, folder *models.Folder) error {
	if err := r.db.WithContext(ctx).Create(folder).Error; err != nil {
		logger.Error("Create: Failed to create folder in DB", zap.String("name", folder.Name), zap.Uint64("ownerID", folder.OwnedByID), zap.Error(err))
		return dbError("create folder", err)
	}
	return nil
}

func (r *folderRepository) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	var folder models.Folder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("folder %s: %w", id, xerr.ErrFolderNotFound)
		}
		return nil, dbError("find folder", err)
	}
	return &folder, nil
}

func (r *folderRepository) LockByIDs(ctx context.Context, ids ...string) (map[string]*models.Folder, error) {
	sorted := sortedUnique(ids)
	if len(sorted) == 0 {
		return map[string]*models.Folder{}, nil
	}
	var folders []models.Folder
	err := forUpdate(r.db.WithContext(ctx)).Where("id IN ?", sorted).Order("id").Find(&folders).Error
	if err != nil {
		return nil, dbError("lock folders", err)
	}
	out := make(map[string]*models.Folder, len(folders))
	for i := range folders {
		out[folders[i].ID] = &folders[i]
	}
	for _, id := range sorted {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("folder %s: %w", id, xerr.ErrFolderNotFound)
		}
	}
	return out, nil
}

func (r *folderRepository) FindRootByOwner(ctx context.Context, ownerID uint64) (*models.Folder, error) {
	var folder models.Folder
	err := r.db.WithContext(ctx).Where("owned_by_id = ? AND parent_id IS NULL", ownerID).Order("created_at").First(&folder).Error
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("root of user %d: %w", ownerID, xerr.ErrFolderNotFound)
		}
		return nil, dbError("find root folder", err)
	}
	return &folder, nil
}

func (r *folderRepository) ListChildren(ctx context.Context, parentID string, includeTrashed bool) ([]models.Folder, error) {
	var folders []models.Folder
	query := r.db.WithContext(ctx).Where("parent_id = ?", parentID)
	if !includeTrashed {
		query = query.Where("state = ?", models.StateActive)
	}
	if err := query.Order("name ASC, id ASC").Find(&folders).Error; err != nil {
		logger.Error("Error listing child folders", zap.String("parentID", parentID), zap.Error(err))
		return nil, dbError("list child folders", err)
	}
	return folders, nil
}

func (r *folderRepository) ListByOwner(ctx context.Context, ownerID uint64) ([]models.Folder, error) {
	var folders []models.Folder
	if err := r.db.WithContext(ctx).Where("owned_by_id = ?", ownerID).Order("id").Find(&folders).Error; err != nil {
		return nil, dbError("list folders by owner", err)
	}
	return folders, nil
}

func (r *folderRepository) PageByOwner(ctx context.Context, ownerID uint64, page, pageSize int) ([]models.Folder, int64, error) {
	var (
		folders []models.Folder
		total   int64
	)
	query := r.db.WithContext(ctx).Model(&models.Folder{}).Where("owned_by_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbError("count folders by owner", err)
	}
	err := query.Order("created_at ASC, id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&folders).Error
	if err != nil {
		return nil, 0, dbError("page folders by owner", err)
	}
	return folders, total, nil
}

func (r *folderRepository) ListTrashed(ctx context.Context, ownerID uint64) ([]models.Folder, error) {
	var folders []models.Folder
	err := r.db.WithContext(ctx).
		Where("owned_by_id = ? AND state = ?", ownerID, models.StateTrashed).
		Order("deleted_at DESC, name ASC").Find(&folders).Error
	if err != nil {
		logger.Error("Error finding trashed folders", zap.Uint64("ownerID", ownerID), zap.Error(err))
		return nil, dbError("list trashed folders", err)
	}
	return folders, nil
}

func (r *folderRepository) NameTaken(ctx context.Context, parentID string, ownerID uint64, name, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Folder{}).
		Where("parent_id = ? AND owned_by_id = ? AND name = ? AND state = ?", parentID, ownerID, name, models.StateActive)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, dbError("check folder name", err)
	}
	return count > 0, nil
}

func (r *folderRepository) update(ctx context.Context, op, id string, values map[string]any) error {
	// 调用方已持有该行，不用 RowsAffected 判断存在性
	if err := r.db.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", id).UpdateColumns(values).Error; err != nil {
		return dbError(op, err)
	}
	return nil
}

func (r *folderRepository) Rename(ctx context.Context, id, name string, m Mutation) error {
	return r.update(ctx, "rename folder", id, m.columns(map[string]any{"name": name}))
}

func (r *folderRepository) SetParent(ctx context.Context, id, parentID string, m Mutation) error {
	return r.update(ctx, "move folder", id, m.columns(map[string]any{"parent_id": parentID}))
}

func (r *folderRepository) MarkTrashed(ctx context.Context, ids []string, at time.Time, m Mutation) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.Folder{}).
		Where("id IN ? AND state = ?", ids, models.StateActive).
		UpdateColumns(m.columns(map[string]any{"state": models.StateTrashed, "deleted_at": at})).Error
	if err != nil {
		return dbError("trash folders", err)
	}
	return nil
}

func (r *folderRepository) MarkActive(ctx context.Context, id string, m Mutation) error {
	return r.update(ctx, "restore folder", id, m.columns(map[string]any{"state": models.StateActive, "deleted_at": nil}))
}

func (r *folderRepository) AddSize(ctx context.Context, ids []string, delta int64, m Mutation) error {
	if len(ids) == 0 || delta == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.Folder{}).Where("id IN ?", ids).
		UpdateColumns(m.columns(map[string]any{"size": gorm.Expr("size + ?", delta)})).Error
	if err != nil {
		return dbError("update folder sizes", err)
	}
	return nil
}

func (r *folderRepository) ReassignOwner(ctx context.Context, ids []string, ownerID uint64, m Mutation) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.Folder{}).Where("id IN ?", ids).
		UpdateColumns(m.columns(map[string]any{"owned_by_id": ownerID})).Error
	if err != nil {
		return dbError("reassign folder owner", err)
	}
	return nil
}

func (r *folderRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Folder{}).Error; err != nil {
		return dbError("delete folder", err)
	}
	return nil
}
