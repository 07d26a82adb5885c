package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ArchiveBuilder 把目录子树打包为临时 zip 文件，同时进行的打包数量受 sem 限制
type ArchiveBuilder struct {
	*engine
	sem *semaphore.Weighted
}

// PackageFolder 返回临时 zip 的路径，调用方发送完毕后负责删除
// 只打包 Active 的节点；路径相对于 folder，文件位于压缩包根目录
func (b *ArchiveBuilder) PackageFolder(ctx context.Context, folderID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", xerr.ErrArchive, err)
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: waiting for archive worker: %w", xerr.ErrArchive, err)
	}
	defer b.sem.Release(1)

	folder, err := b.repos.Folders.FindByID(ctx, folderID)
	if err != nil {
		return "", err
	}
	if err := requireState(folder, models.StateActive); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(b.tempDir, "archive-*.zip")
	if err != nil {
		return "", fmt.Errorf("%w: create archive: %w", xerr.ErrArchive, err)
	}
	archivePath := tmp.Name()

	entries, err := b.write(ctx, tmp, folder)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(archivePath)
		logger.Error("PackageFolder: failed to build archive", zap.String("folderID", folderID), zap.Error(err))
		if xerr.Is(err, xerr.ErrArchive) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", xerr.ErrArchive, err)
	}

	logger.Info("Folder packaged", zap.String("folderID", folderID), zap.String("archive", archivePath), zap.Int("entries", entries))
	return archivePath, nil
}

func (b *ArchiveBuilder) write(ctx context.Context, w io.Writer, folder *models.Folder) (int, error) {
	zw := zip.NewWriter(w)
	entries := 0
	// dirs[i] 是深度 i+1 处当前所在的目录名
	var dirs []string

	err := b.walker(b.repos).ForEachDescendant(ctx, folder, false, func(n models.Node, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(dirs) > depth-1 {
			dirs = dirs[:depth-1]
		}
		name := path.Join(append(append([]string{}, dirs...), n.DisplayName())...)

		switch node := n.(type) {
		case *models.Folder:
			dirs = append(dirs, node.Name)
			if _, err := zw.CreateHeader(&zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: node.UpdatedAt}); err != nil {
				return err
			}
		case *models.File:
			if err := b.addFile(ctx, zw, name, node); err != nil {
				return err
			}
		}
		entries++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return entries, nil
}

// addFile 从 blob 存储流式写入，不把整个文件读进内存
func (b *ArchiveBuilder) addFile(ctx context.Context, zw *zip.Writer, name string, file *models.File) error {
	obj, err := b.blobs.Get(ctx, file.StorageKey)
	if err != nil {
		return xerr.NewNodeError("archive", string(models.KindFile), file.ID, err)
	}
	defer obj.Reader.Close()

	modified := file.UpdatedAt
	if modified.IsZero() {
		modified = time.Now()
	}
	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, obj.Reader); err != nil {
		return xerr.NewNodeError("archive", string(models.KindFile), file.ID, err)
	}
	return nil
}
