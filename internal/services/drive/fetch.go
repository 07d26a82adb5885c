package drive

import (
	"context"
	"fmt"
	"slices"

	"github.com/3Eeeecho/go-drive/internal/pkg/utils"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/shirou/gopsutil/v4/disk"
)

const DefaultPageSize = 25

// 允许的每页条数
var pageSizes = []int{10, 25, 50, 100}

type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func normalizePage(page, pageSize int) (int, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if !slices.Contains(pageSizes, pageSize) {
		return 0, 0, fmt.Errorf("%w: page_size must be one of %v", xerr.ErrInvalidParams, pageSizes)
	}
	return page, pageSize, nil
}

// GetFile 返回单个文件，回收站中的也可以读取
func (s *Service) GetFile(ctx context.Context, p Principal, fileID string) (*FileView, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, file.OwnedByID, CapFetchFiles); err != nil {
		return nil, err
	}
	return s.fileView(ctx, file), nil
}

// CurrentRoot 返回调用者自己的根目录
func (s *Service) CurrentRoot(ctx context.Context, p Principal) (*FolderView, error) {
	user, err := s.eng.repos.Users.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if user.FolderID == nil {
		return nil, fmt.Errorf("%w: user %d has no drive yet", xerr.ErrFolderNotFound, p.UserID)
	}
	root, err := s.loadFolder(ctx, *user.FolderID)
	if err != nil {
		return nil, err
	}
	return s.folderView(ctx, root), nil
}

// ListOwnedFolders 分页列出某个用户的全部目录，包括回收站中的
func (s *Service) ListOwnedFolders(ctx context.Context, p Principal, ownerID uint64, page, pageSize int) (*Page[FolderView], error) {
	if err := authorize(p, ownerID, CapFetchFolders); err != nil {
		return nil, err
	}
	page, pageSize, err := normalizePage(page, pageSize)
	if err != nil {
		return nil, err
	}
	folders, total, err := s.eng.repos.Folders.PageByOwner(ctx, ownerID, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := &Page[FolderView]{Items: make([]FolderView, 0, len(folders)), Total: total, Page: page, PageSize: pageSize}
	for i := range folders {
		out.Items = append(out.Items, *s.folderView(ctx, &folders[i]))
	}
	return out, nil
}

func (s *Service) ListOwnedFiles(ctx context.Context, p Principal, ownerID uint64, page, pageSize int) (*Page[FileView], error) {
	if err := authorize(p, ownerID, CapFetchFiles); err != nil {
		return nil, err
	}
	page, pageSize, err := normalizePage(page, pageSize)
	if err != nil {
		return nil, err
	}
	files, total, err := s.eng.repos.Files.PageByOwner(ctx, ownerID, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := &Page[FileView]{Items: make([]FileView, 0, len(files)), Total: total, Page: page, PageSize: pageSize}
	for i := range files {
		out.Items = append(out.Items, *s.fileView(ctx, &files[i]))
	}
	return out, nil
}

type SpaceView struct {
	Bytes     uint64 `json:"bytes"`
	Formatted string `json:"formatted"`
}

type DiskStats struct {
	Total SpaceView `json:"total"`
	Free  SpaceView `json:"free"`
	Used  SpaceView `json:"used"`
}

func spaceView(bytes uint64) SpaceView {
	return SpaceView{Bytes: bytes, Formatted: utils.FormatSize(int64(bytes))}
}

// Stats 统计数据目录所在磁盘的空间，used = total - free
func (s *Service) Stats(ctx context.Context) (*DiskStats, error) {
	usage, err := disk.UsageWithContext(ctx, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: disk usage of %s: %w", xerr.ErrStorage, s.dataDir, err)
	}
	used := uint64(0)
	if usage.Total > usage.Free {
		used = usage.Total - usage.Free
	}
	return &DiskStats{
		Total: spaceView(usage.Total),
		Free:  spaceView(usage.Free),
		Used:  spaceView(used),
	}, nil
}
