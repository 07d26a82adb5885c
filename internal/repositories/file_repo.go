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

// FileRepository 是 drive_files 的数据访问接口
type FileRepository interface {
	WithTx(tx *gorm.DB) FileRepository
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id string) (*models.File, error)
	LockByID(ctx context.Context, id string) (*models.File, error)
	ListByFolder(ctx context.Context, folderID string, includeTrashed bool) ([]models.File, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]models.File, error)
	PageByOwner(ctx context.Context, ownerID uint64, page, pageSize int) ([]models.File, int64, error)
	ListTrashed(ctx context.Context, ownerID uint64) ([]models.File, error)
	// NameTaken 以 name + extension 判断同目录下未进回收站的重名文件
	NameTaken(ctx context.Context, folderID string, ownerID uint64, name, ext, excludeID string) (bool, error)
	Rename(ctx context.Context, id, name, ext string, m Mutation) error
	SetFolder(ctx context.Context, id, folderID string, m Mutation) error
	MarkTrashed(ctx context.Context, ids []string, at time.Time, m Mutation) error
	MarkActive(ctx context.Context, id string, m Mutation) error
	// ReassignOwnerInFolders 修改这些目录下所有文件 (含回收站) 的属主
	ReassignOwnerInFolders(ctx context.Context, folderIDs []string, ownerID uint64, m Mutation) error
	ReassignOwner(ctx context.Context, id string, ownerID uint64, m Mutation) error
	SumSizeByOwner(ctx context.Context, ownerID uint64) (int64, error)
	Delete(ctx context.Context, id string) error
}

type fileRepository struct {
	db *gorm.DB
}

var _ FileRepository = (*fileRepository)(nil)

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) WithTx(tx *gorm.DB) FileRepository {
	return &fileRepository{db: tx}
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		logger.Error("Create: Failed to create file in DB", zap.Error(err), zap.Uint64("ownerID", file.OwnedByID), zap.String("fileName", file.FullName()))
		return dbError("create file", err)
	}
	return nil
}

func (r *fileRepository) FindByID(ctx context.Context, id string) (*models.File, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

func (r *fileRepository) LockByID(ctx context.Context, id string) (*models.File, error) {
	return r.find(ctx, forUpdate(r.db.WithContext(ctx)), id)
}

func (r *fileRepository) find(ctx context.Context, db *gorm.DB, id string) (*models.File, error) {
	var file models.File
	if err := db.Where("id = ?", id).First(&file).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("file %s: %w", id, xerr.ErrFileNotFound)
		}
		return nil, dbError("find file", err)
	}
	return &file, nil
}

func (r *fileRepository) ListByFolder(ctx context.Context, folderID string, includeTrashed bool) ([]models.File, error) {
	var files []models.File
	query := r.db.WithContext(ctx).Where("folder_id = ?", folderID)
	if !includeTrashed {
		query = query.Where("state = ?", models.StateActive)
	}
	if err := query.Order("name ASC, extension ASC, id ASC").Find(&files).Error; err != nil {
		logger.Error("Error listing files in folder", zap.String("folderID", folderID), zap.Error(err))
		return nil, dbError("list files", err)
	}
	return files, nil
}

func (r *fileRepository) ListByOwner(ctx context.Context, ownerID uint64) ([]models.File, error) {
	var files []models.File
	if err := r.db.WithContext(ctx).Where("owned_by_id = ?", ownerID).Order("id").Find(&files).Error; err != nil {
		return nil, dbError("list files by owner", err)
	}
	return files, nil
}

func (r *fileRepository) PageByOwner(ctx context.Context, ownerID uint64, page, pageSize int) ([]models.File, int64, error) {
	var (
		files []models.File
		total int64
	)
	query := r.db.WithContext(ctx).Model(&models.File{}).Where("owned_by_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbError("count files by owner", err)
	}
	err := query.Order("created_at ASC, id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&files).Error
	if err != nil {
		return nil, 0, dbError("page files by owner", err)
	}
	return files, total, nil
}

func (r *fileRepository) ListTrashed(ctx context.Context, ownerID uint64) ([]models.File, error) {
	var files []models.File
	err := r.db.WithContext(ctx).
		Where("owned_by_id = ? AND state = ?", ownerID, models.StateTrashed).
		Order("deleted_at DESC, name ASC").Find(&files).Error
	if err != nil {
		logger.Error("Error finding trashed files", zap.Uint64("ownerID", ownerID), zap.Error(err))
		return nil, dbError("list trashed files", err)
	}
	return files, nil
}

func (r *fileRepository) NameTaken(ctx context.Context, folderID string, ownerID uint64, name, ext, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.File{}).
		Where("folder_id = ? AND owned_by_id = ? AND name = ? AND extension = ? AND state = ?",
			folderID, ownerID, name, ext, models.StateActive)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, dbError("check file name", err)
	}
	return count > 0, nil
}

func (r *fileRepository) update(ctx context.Context, op, id string, values map[string]any) error {
	if err := r.db.WithContext(ctx).Model(&models.File{}).Where("id = ?", id).UpdateColumns(values).Error; err != nil {
		return dbError(op, err)
	}
	return nil
}

func (r *fileRepository) Rename(ctx context.Context, id, name, ext string, m Mutation) error {
	return r.update(ctx, "rename file", id, m.columns(map[string]any{"name": name, "extension": ext}))
}

func (r *fileRepository) SetFolder(ctx context.Context, id, folderID string, m Mutation) error {
	return r.update(ctx, "move file", id, m.columns(map[string]any{"folder_id": folderID}))
}

func (r *fileRepository) MarkTrashed(ctx context.Context, ids []string, at time.Time, m Mutation) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.File{}).
		Where("id IN ? AND state = ?", ids, models.StateActive).
		UpdateColumns(m.columns(map[string]any{"state": models.StateTrashed, "deleted_at": at})).Error
	if err != nil {
		return dbError("trash files", err)
	}
	return nil
}

func (r *fileRepository) MarkActive(ctx context.Context, id string, m Mutation) error {
	return r.update(ctx, "restore file", id, m.columns(map[string]any{"state": models.StateActive, "deleted_at": nil}))
}

func (r *fileRepository) ReassignOwnerInFolders(ctx context.Context, folderIDs []string, ownerID uint64, m Mutation) error {
	if len(folderIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.File{}).Where("folder_id IN ?", folderIDs).
		UpdateColumns(m.columns(map[string]any{"owned_by_id": ownerID})).Error
	if err != nil {
		return dbError("reassign file owner", err)
	}
	return nil
}

func (r *fileRepository) ReassignOwner(ctx context.Context, id string, ownerID uint64, m Mutation) error {
	return r.update(ctx, "reassign file owner", id, m.columns(map[string]any{"owned_by_id": ownerID}))
}

func (r *fileRepository) SumSizeByOwner(ctx context.Context, ownerID uint64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.File{}).Where("owned_by_id = ?", ownerID).
		Select("COALESCE(SUM(size), 0)").Scan(&total).Error
	if err != nil {
		return 0, dbError("sum file sizes", err)
	}
	return total, nil
}

func (r *fileRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.File{}).Error; err != nil {
		return dbError("delete file", err)
	}
	return nil
}
