package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/storage"
	"github.com/3Eeeecho/go-drive/internal/pkg/utils"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/repositories"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxNameAttempts 是上传重名时尝试的最大编号
const maxNameAttempts = 1000

// UploadRequest 描述一次上传；Name 为带扩展名的完整文件名
type UploadRequest struct {
	OwnerID  uint64
	FolderID string
	Name     string
	Reader   io.Reader
	SizeHint int64 // 未知时为 -1
	MimeType string
	ActorID  uint64
}

// FileStore 负责文件的上传、下载、重命名和回收
type FileStore struct {
	*engine
}

// Upload 先把内容写入 blob 存储，再在一个事务里扣配额、建记录、更新祖先大小
// 事务失败时删除已写入的 blob
func (s *FileStore) Upload(ctx context.Context, req UploadRequest) (*models.File, error) {
	if !utils.ValidateName(req.Name) {
		return nil, fmt.Errorf("%w: %q", xerr.ErrNameInvalid, req.Name)
	}
	name, ext := utils.SplitFileName(req.Name)

	parent, err := s.repos.Folders.FindByID(ctx, req.FolderID)
	if err != nil {
		return nil, err
	}
	if err := requireState(parent, models.StateActive); err != nil {
		return nil, err
	}
	if parent.OwnedByID != req.OwnerID {
		return nil, fmt.Errorf("%w: folder %s is not owned by user %d", xerr.ErrForbidden, parent.ID, req.OwnerID)
	}
	owner, err := s.repos.Users.FindByID(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	free := owner.FreeDriveBytes()
	if req.SizeHint > free {
		logger.Warn("Upload: declared size exceeds quota", zap.Uint64("userID", req.OwnerID), zap.Int64("size", req.SizeHint), zap.Int64("free", free))
		return nil, fmt.Errorf("%w: upload of %d bytes, %d free", xerr.ErrQuotaExceeded, req.SizeHint, free)
	}

	spool, size, err := s.spool(req.Reader, free)
	if err != nil {
		return nil, err
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	contentType := req.MimeType
	if contentType == "" {
		contentType, err = sniff(spool)
		if err != nil {
			return nil, err
		}
	}

	key := uuid.NewString()
	if err := s.blobs.Put(ctx, key, spool, size, contentType); err != nil {
		logger.Error("Upload: failed to store blob", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	var (
		file  *models.File
		chain []string
	)
	err = s.inTxStable(ctx, func(r Repos) error {
		// 父目录可能在写 blob 期间被移动，祖先链必须在事务内重新读取并在加锁后校验
		fresh, err := r.Folders.FindByID(ctx, req.FolderID)
		if err != nil {
			return err
		}
		ancestors, err := s.walker(r).AncestorIDs(ctx, fresh)
		if err != nil {
			return err
		}
		chain = append([]string{fresh.ID}, ancestors...)
		if _, err := r.Users.LockByIDs(ctx, req.OwnerID); err != nil {
			return err
		}
		locked, err := lockChains(ctx, r, chain)
		if err != nil {
			return err
		}
		current := locked[parent.ID]
		if err := requireState(current, models.StateActive); err != nil {
			return err
		}
		if current.OwnedByID != req.OwnerID {
			return fmt.Errorf("%w: folder %s changed owner", xerr.ErrForbidden, parent.ID)
		}

		if err := s.quota(r).Charge(ctx, req.OwnerID, size); err != nil {
			return err
		}

		final, err := uniqueFileName(ctx, r, parent.ID, req.OwnerID, name, ext)
		if err != nil {
			return err
		}

		file = &models.File{
			ID:          uuid.NewString(),
			Name:        final,
			Extension:   ext,
			MimeType:    contentType,
			Size:        size,
			FolderID:    parent.ID,
			OwnedByID:   req.OwnerID,
			CreatedByID: req.ActorID,
			UpdatedByID: req.ActorID,
			StorageKey:  key,
			State:       models.StateActive,
		}
		if err := r.Files.Create(ctx, file); err != nil {
			return err
		}
		return r.Folders.AddSize(ctx, chain, size, repositories.SystemMutation)
	})
	if err != nil {
		if rmErr := s.blobs.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			logger.Error("Upload: failed to remove orphaned blob", zap.String("key", key), zap.Error(rmErr))
		}
		return nil, err
	}

	s.invalidate(ctx, chain...)
	s.index(ctx, file)
	logger.Info("File uploaded", zap.String("fileID", file.ID), zap.String("folderID", parent.ID), zap.Int64("size", size))
	return file, nil
}

// spool 把上传内容写入临时文件，最多读取 limit+1 字节用于判断是否超额
func (s *FileStore) spool(r io.Reader, limit int64) (*os.File, int64, error) {
	tmp, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		return nil, 0, fmt.Errorf("%w: create spool file: %w", xerr.ErrStorage, err)
	}
	discard := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	n, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if err != nil {
		discard()
		return nil, 0, fmt.Errorf("%w: read upload body: %w", xerr.ErrStorage, err)
	}
	if n > limit {
		discard()
		return nil, 0, fmt.Errorf("%w: upload exceeds the %d free bytes", xerr.ErrQuotaExceeded, limit)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		discard()
		return nil, 0, fmt.Errorf("%w: rewind spool file: %w", xerr.ErrStorage, err)
	}
	return tmp, n, nil
}

func sniff(f *os.File) (string, error) {
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: detect content type: %w", xerr.ErrStorage, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("%w: rewind spool file: %w", xerr.ErrStorage, err)
	}
	return mtype.String(), nil
}

// uniqueFileName 依次尝试 "name", "name (1)" ... "name (1000)"
func uniqueFileName(ctx context.Context, r Repos, folderID string, ownerID uint64, name, ext string) (string, error) {
	for n := 0; n <= maxNameAttempts; n++ {
		candidate := utils.NumberedName(name, n)
		taken, err := r.Files.NameTaken(ctx, folderID, ownerID, candidate, ext, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free name for %q after %d attempts", xerr.ErrConflict, name, maxNameAttempts)
}

// Download 只允许下载 Active 的文件，调用方负责关闭 Object.Reader
func (s *FileStore) Download(ctx context.Context, fileID string) (*models.File, *storage.Object, error) {
	file, err := s.repos.Files.FindByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireState(file, models.StateActive); err != nil {
		return nil, nil, err
	}
	obj, err := s.blobs.Get(ctx, file.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			logger.Error("Download: blob missing for file", zap.String("fileID", fileID), zap.String("key", file.StorageKey))
		}
		return nil, nil, err
	}
	return file, obj, nil
}

// Rename 的 newName 为完整文件名，扩展名随之改变
func (s *FileStore) Rename(ctx context.Context, fileID, newName string, m repositories.Mutation) (*models.File, error) {
	if !utils.ValidateName(newName) {
		return nil, fmt.Errorf("%w: %q", xerr.ErrNameInvalid, newName)
	}
	name, ext := utils.SplitFileName(newName)

	var file *models.File
	err := s.inTx(ctx, func(r Repos) error {
		var err error
		file, err = r.Files.LockByID(ctx, fileID)
		if err != nil {
			return err
		}
		if err := requireState(file, models.StateActive); err != nil {
			return err
		}
		if file.Name == name && file.Extension == ext {
			return nil
		}
		taken, err := r.Files.NameTaken(ctx, file.FolderID, file.OwnedByID, name, ext, file.ID)
		if err != nil {
			return err
		}
		if taken {
			logger.Warn("Rename: file name conflict", zap.String("fileID", fileID), zap.String("name", newName))
			return fmt.Errorf("%w: file %q", xerr.ErrConflict, newName)
		}
		if err := r.Files.Rename(ctx, fileID, name, ext, m); err != nil {
			return err
		}
		file.Name, file.Extension, file.UpdatedByID = name, ext, m.UpdatedBy(file.UpdatedByID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, file.FolderID)
	s.index(ctx, file)
	return file, nil
}

// Trash 只改变状态，配额和目录大小保持不变
func (s *FileStore) Trash(ctx context.Context, fileID string, m repositories.Mutation) error {
	var file *models.File
	err := s.inTx(ctx, func(r Repos) error {
		var err error
		file, err = r.Files.LockByID(ctx, fileID)
		if err != nil {
			return err
		}
		if err := requireState(file, models.StateActive); err != nil {
			return err
		}
		now := time.Now()
		if err := r.Files.MarkTrashed(ctx, []string{fileID}, now, m); err != nil {
			return err
		}
		file.State, file.DeletedAt = models.StateTrashed, &now
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, file.FolderID)
	s.index(ctx, file)
	logger.Info("File trashed", zap.String("fileID", fileID))
	return nil
}

// Restore 不要求父目录处于 Active
func (s *FileStore) Restore(ctx context.Context, fileID string, m repositories.Mutation) error {
	var file *models.File
	err := s.inTx(ctx, func(r Repos) error {
		var err error
		file, err = r.Files.LockByID(ctx, fileID)
		if err != nil {
			return err
		}
		if err := requireState(file, models.StateTrashed); err != nil {
			return err
		}
		taken, err := r.Files.NameTaken(ctx, file.FolderID, file.OwnedByID, file.Name, file.Extension, file.ID)
		if err != nil {
			return err
		}
		if taken {
			logger.Warn("Restore: file name conflict", zap.String("fileID", fileID), zap.String("name", file.FullName()))
			return fmt.Errorf("%w: file %q", xerr.ErrConflict, file.FullName())
		}
		if err := r.Files.MarkActive(ctx, fileID, m); err != nil {
			return err
		}
		file.State, file.DeletedAt = models.StateActive, nil
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, file.FolderID)
	s.index(ctx, file)
	logger.Info("File restored", zap.String("fileID", fileID))
	return nil
}

// purge 在一个事务里删除文件行、归还配额、扣减祖先大小并删除 blob
// allowed 决定当前状态下能否删除；行已不存在时视为成功
func (s *FileStore) purge(ctx context.Context, fileID string, allowed func(*models.File) error) error {
	var (
		file      *models.File
		ancestors []string
	)
	err := s.inTxStable(ctx, func(r Repos) error {
		var err error
		file, err = r.Files.LockByID(ctx, fileID)
		if err != nil {
			if errors.Is(err, xerr.ErrNotFound) {
				file = nil
				return nil
			}
			return err
		}
		if err := allowed(file); err != nil {
			return err
		}

		ancestors, err = s.walker(r).AncestorIDs(ctx, file)
		if err != nil {
			return err
		}
		if _, err := r.Users.LockByIDs(ctx, file.OwnedByID); err != nil {
			return err
		}
		if _, err := lockChains(ctx, r, ancestors); err != nil {
			return err
		}

		if err := s.quota(r).Release(ctx, file.OwnedByID, file.Size); err != nil {
			return err
		}
		if err := r.Folders.AddSize(ctx, ancestors, -file.Size, repositories.SystemMutation); err != nil {
			return err
		}
		if err := r.Files.Delete(ctx, fileID); err != nil {
			return err
		}
		// blob 删除失败时回滚整个事务，记录和配额保持不变
		return s.blobs.Remove(ctx, file.StorageKey)
	})
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}

	s.invalidate(ctx, ancestors...)
	s.unindex(ctx, fileID)
	logger.Info("File permanently deleted", zap.String("fileID", fileID), zap.Int64("size", file.Size))
	return nil
}
