package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uint64) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// LockByIDs 按 id 升序对用户行加写锁
	LockByIDs(ctx context.Context, ids ...uint64) (map[uint64]*models.User, error)
	AddUsedBytes(ctx context.Context, id uint64, delta int64) error
	SetRootFolder(ctx context.Context, id uint64, folderID string) error
}

type userRepository struct {
	db *gorm.DB
}

var _ UserRepository = (*userRepository)(nil)

// NewUserRepository 创建一个新的 UserRepository 实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		logger.Error("Error creating user", zap.String("username", user.Username), zap.Error(err))
		return dbError("create user", err)
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("user %d: %w", id, xerr.ErrNotFound)
		}
		return nil, dbError("find user", err)
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("user %q: %w", username, xerr.ErrNotFound)
		}
		return nil, dbError("find user by username", err)
	}
	return &user, nil
}

func (r *userRepository) LockByIDs(ctx context.Context, ids ...uint64) (map[uint64]*models.User, error) {
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	users := make(map[uint64]*models.User, len(sorted))
	for _, id := range sorted {
		if _, ok := users[id]; ok {
			continue
		}
		var user models.User
		if err := forUpdate(r.db.WithContext(ctx)).First(&user, id).Error; err != nil {
			if notFound(err) {
				return nil, fmt.Errorf("user %d: %w", id, xerr.ErrNotFound)
			}
			return nil, dbError("lock user", err)
		}
		users[id] = &user
	}
	return users, nil
}

func (r *userRepository) AddUsedBytes(ctx context.Context, id uint64, delta int64) error {
	if delta == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("used_drive_bytes", gorm.Expr("used_drive_bytes + ?", delta)).Error
	if err != nil {
		return dbError("update used bytes", err)
	}
	return nil
}

func (r *userRepository) SetRootFolder(ctx context.Context, id uint64, folderID string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("folder_id", folderID).Error
	if err != nil {
		return dbError("set root folder", err)
	}
	return nil
}
