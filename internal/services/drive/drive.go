package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/cache"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/search"
	"github.com/3Eeeecho/go-drive/internal/pkg/storage"
	"github.com/3Eeeecho/go-drive/internal/pkg/utils"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// Deps 是 Service 的外部依赖；Cache 和 Indexer 可以为空
type Deps struct {
	DB      *gorm.DB
	Blobs   storage.BlobStore
	Cache   cache.Cache
	Indexer search.Indexer
}

type Options struct {
	DefaultAllocatedBytes int64
	MaxTreeDepth          int
	ArchiveWorkers        int64
	ListingCacheTTL       time.Duration
	TempDir               string
	// DataDir 是统计磁盘空间的目录，默认与 TempDir 相同
	DataDir               string
}

func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		DefaultAllocatedBytes: cfg.Drive.DefaultAllocatedBytes,
		MaxTreeDepth:          cfg.Drive.MaxTreeDepth,
		ArchiveWorkers:        cfg.Drive.ArchiveWorkers,
		ListingCacheTTL:       cfg.Drive.ListingCacheTTL,
		TempDir:               cfg.Storage.TempDir,
	}
	// 对象存储后端没有本地数据目录，只能统计临时目录所在的磁盘
	if cfg.Storage.Type == "local" {
		opts.DataDir = cfg.Storage.LocalBasePath
	}
	return opts
}

// Service 是 drive 引擎对外的入口，所有操作都先经过权限检查点
type Service struct {
	eng      *engine
	folders  *FolderStore
	files    *FileStore
	moves    *MoveService
	deletion *DeletionService
	archives *ArchiveBuilder

	defaultAllocated int64
	dataDir          string
}

func New(deps Deps, opts Options) (*Service, error) {
	if deps.DB == nil || deps.Blobs == nil {
		return nil, errors.New("drive: DB and Blobs are required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryCache()
	}
	_, nop := deps.Indexer.(search.NopIndexer)
	indexing := deps.Indexer != nil && !nop
	if deps.Indexer == nil {
		deps.Indexer = search.NopIndexer{}
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("drive: create temp dir: %w", err)
	}
	if opts.DataDir == "" {
		opts.DataDir = opts.TempDir
	}
	if opts.ArchiveWorkers <= 0 {
		opts.ArchiveWorkers = 1
	}
	if opts.ListingCacheTTL <= 0 {
		opts.ListingCacheTTL = 5 * time.Minute
	}

	eng := &engine{
		tm:       NewTransactionManager(deps.DB),
		repos:    NewRepos(deps.DB),
		blobs:    deps.Blobs,
		cache:    deps.Cache,
		cacheTTL: opts.ListingCacheTTL,
		indexer:  search.BestEffort{Indexer: deps.Indexer},
		indexing: indexing,
		maxDepth: opts.MaxTreeDepth,
		tempDir:  opts.TempDir,
	}
	folders := &FolderStore{engine: eng}
	files := &FileStore{engine: eng}
	return &Service{
		eng:              eng,
		folders:          folders,
		files:            files,
		moves:            &MoveService{engine: eng},
		deletion:         &DeletionService{engine: eng, folders: folders, files: files},
		archives:         &ArchiveBuilder{engine: eng, sem: semaphore.NewWeighted(opts.ArchiveWorkers)},
		defaultAllocated: opts.DefaultAllocatedBytes,
		dataDir:          opts.DataDir,
	}, nil
}

// FolderView 是返回给调用方的目录，附带路径和格式化后的大小
type FolderView struct {
	*models.Folder
	Path          string `json:"path"`
	FormattedSize string `json:"formatted_size"`
}

type FileView struct {
	*models.File
	FullName      string `json:"full_name"`
	Path          string `json:"path"`
	FormattedSize string `json:"formatted_size"`
}

type Listing struct {
	Folder  FolderView   `json:"folder"`
	Folders []FolderView `json:"folders"`
	Files   []FileView   `json:"files"`
}

type TrashListing struct {
	Folders []FolderView `json:"folders"`
	Files   []FileView   `json:"files"`
}

type UsageView struct {
	UserID         uint64 `json:"user_id"`
	AllocatedBytes int64  `json:"allocated_bytes"`
	UsedBytes      int64  `json:"used_bytes"`
	FreeBytes      int64  `json:"free_bytes"`
	Allocated      string `json:"allocated"`
	Used           string `json:"used"`
	Free           string `json:"free"`
}

func (s *Service) path(ctx context.Context, node models.Node) string {
	p, err := NewPathResolver(s.eng.walker(s.eng.repos)).Resolve(ctx, node)
	if err != nil {
		logger.Warn("resolve path failed", zap.String("nodeID", node.NodeID()), zap.Error(err))
	}
	return p
}

func (s *Service) folderView(ctx context.Context, f *models.Folder) *FolderView {
	return &FolderView{Folder: f, Path: s.path(ctx, f), FormattedSize: utils.FormatSize(f.Size)}
}

func (s *Service) fileView(ctx context.Context, f *models.File) *FileView {
	return &FileView{File: f, FullName: f.FullName(), Path: s.path(ctx, f), FormattedSize: utils.FormatSize(f.Size)}
}

func (s *Service) loadFolder(ctx context.Context, id string) (*models.Folder, error) {
	return s.eng.repos.Folders.FindByID(ctx, id)
}

func (s *Service) loadFile(ctx context.Context, id string) (*models.File, error) {
	return s.eng.repos.Files.FindByID(ctx, id)
}

// ProvisionUser 创建用户 (已存在则复用) 并确保根目录存在
func (s *Service) ProvisionUser(ctx context.Context, username string, allocatedBytes int64) (*models.User, error) {
	if !utils.ValidateName(username) {
		return nil, fmt.Errorf("%w: username %q", xerr.ErrNameInvalid, username)
	}
	user, err := s.eng.repos.Users.FindByUsername(ctx, username)
	if errors.Is(err, xerr.ErrNotFound) {
		if allocatedBytes <= 0 {
			allocatedBytes = s.defaultAllocated
		}
		user = &models.User{Username: username, AllocatedDriveBytes: allocatedBytes}
		err = s.eng.repos.Users.Create(ctx, user)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.folders.CreateRoot(ctx, user.ID); err != nil {
		return nil, err
	}
	return s.eng.repos.Users.FindByID(ctx, user.ID)
}

// CreateRootFolder 幂等地创建用户根目录
func (s *Service) CreateRootFolder(ctx context.Context, userID uint64) (*FolderView, error) {
	root, err := s.folders.CreateRoot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.folderView(ctx, root), nil
}

// CreateFolder 新目录的属主取自父目录
func (s *Service) CreateFolder(ctx context.Context, p Principal, parentID, name string) (*FolderView, error) {
	parent, err := s.loadFolder(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, parent.OwnedByID, CapCreateFolders); err != nil {
		return nil, err
	}
	folder, err := s.folders.Create(ctx, parent.OwnedByID, parentID, name, p.UserID)
	if err != nil {
		return nil, err
	}
	return s.folderView(ctx, folder), nil
}

// UploadInput 是 UploadFile 的参数；Size 未知时为 -1
type UploadInput struct {
	FolderID string
	Name     string
	Reader   io.Reader
	Size     int64
	MimeType string
}

func (s *Service) UploadFile(ctx context.Context, p Principal, in UploadInput) (*FileView, error) {
	parent, err := s.loadFolder(ctx, in.FolderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, parent.OwnedByID, CapCreateFiles); err != nil {
		return nil, err
	}
	file, err := s.files.Upload(ctx, UploadRequest{
		OwnerID:  parent.OwnedByID,
		FolderID: in.FolderID,
		Name:     in.Name,
		Reader:   in.Reader,
		SizeHint: in.Size,
		MimeType: in.MimeType,
		ActorID:  p.UserID,
	})
	if err != nil {
		return nil, err
	}
	return s.fileView(ctx, file), nil
}

func (s *Service) RenameFolder(ctx context.Context, p Principal, folderID, name string) (*FolderView, error) {
	folder, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, folder.OwnedByID, CapUpdateFolders); err != nil {
		return nil, err
	}
	folder, err = s.folders.Rename(ctx, folderID, name, p.mutation())
	if err != nil {
		return nil, err
	}
	return s.folderView(ctx, folder), nil
}

func (s *Service) RenameFile(ctx context.Context, p Principal, fileID, name string) (*FileView, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, file.OwnedByID, CapUpdateFiles); err != nil {
		return nil, err
	}
	file, err = s.files.Rename(ctx, fileID, name, p.mutation())
	if err != nil {
		return nil, err
	}
	return s.fileView(ctx, file), nil
}

// authorizeMove 需要同时拥有被移动节点和目标目录上的权限
func (s *Service) authorizeMove(ctx context.Context, p Principal, ownerID uint64, destID string, c Capability) error {
	if err := authorize(p, ownerID, c); err != nil {
		return err
	}
	dest, err := s.loadFolder(ctx, destID)
	if err != nil {
		return err
	}
	return authorize(p, dest.OwnedByID, c)
}

func (s *Service) MoveFolder(ctx context.Context, p Principal, folderID, destID string) (*FolderView, error) {
	folder, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeMove(ctx, p, folder.OwnedByID, destID, CapMoveFolders); err != nil {
		return nil, err
	}
	folder, err = s.moves.MoveFolder(ctx, folderID, destID, p.mutation())
	if err != nil {
		return nil, err
	}
	return s.folderView(ctx, folder), nil
}

func (s *Service) MoveFile(ctx context.Context, p Principal, fileID, destID string) (*FileView, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeMove(ctx, p, file.OwnedByID, destID, CapMoveFiles); err != nil {
		return nil, err
	}
	file, err = s.moves.MoveFile(ctx, fileID, destID, p.mutation())
	if err != nil {
		return nil, err
	}
	return s.fileView(ctx, file), nil
}

func (s *Service) TrashFolder(ctx context.Context, p Principal, folderID string) error {
	folder, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return err
	}
	if err := authorize(p, folder.OwnedByID, CapTrashFolders); err != nil {
		return err
	}
	return s.folders.Trash(ctx, folderID, p.mutation())
}

func (s *Service) TrashFile(ctx context.Context, p Principal, fileID string) error {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := authorize(p, file.OwnedByID, CapTrashFiles); err != nil {
		return err
	}
	return s.files.Trash(ctx, fileID, p.mutation())
}

func (s *Service) RestoreFolder(ctx context.Context, p Principal, folderID string) error {
	folder, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return err
	}
	if err := authorize(p, folder.OwnedByID, CapRestoreFolders); err != nil {
		return err
	}
	return s.folders.Restore(ctx, folderID, p.mutation())
}

func (s *Service) RestoreFile(ctx context.Context, p Principal, fileID string) error {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := authorize(p, file.OwnedByID, CapRestoreFiles); err != nil {
		return err
	}
	return s.files.Restore(ctx, fileID, p.mutation())
}

// PermanentDeleteFolder 对已经不存在的目录返回成功
func (s *Service) PermanentDeleteFolder(ctx context.Context, p Principal, folderID string) error {
	folder, err := s.loadFolder(ctx, folderID)
	if errors.Is(err, xerr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := authorize(p, folder.OwnedByID, CapDeleteFolders); err != nil {
		return err
	}
	return s.deletion.PermanentDeleteFolder(ctx, folderID)
}

func (s *Service) PermanentDeleteFile(ctx context.Context, p Principal, fileID string) error {
	file, err := s.loadFile(ctx, fileID)
	if errors.Is(err, xerr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := authorize(p, file.OwnedByID, CapDeleteFiles); err != nil {
		return err
	}
	return s.deletion.PermanentDeleteFile(ctx, fileID)
}

// DownloadFile 返回文件内容，调用方负责关闭 Object.Reader
func (s *Service) DownloadFile(ctx context.Context, p Principal, fileID string) (*FileView, *storage.Object, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(p, file.OwnedByID, CapDownloadFiles); err != nil {
		return nil, nil, err
	}
	file, obj, err := s.files.Download(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	return s.fileView(ctx, file), obj, nil
}

// PackageFolder 返回临时 zip 路径，调用方发送后负责删除
func (s *Service) PackageFolder(ctx context.Context, p Principal, folderID string) (string, error) {
	folder, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return "", err
	}
	if err := authorize(p, folder.OwnedByID, CapDownloadFolders); err != nil {
		return "", err
	}
	return s.archives.PackageFolder(ctx, folderID)
}

// GetPath 返回 "/root/a/b" 形式的路径，每次根据当前树计算
func (s *Service) GetPath(ctx context.Context, p Principal, kind models.NodeKind, id string) (string, error) {
	var (
		node models.Node
		c    Capability
	)
	switch kind {
	case models.KindFolder:
		folder, err := s.loadFolder(ctx, id)
		if err != nil {
			return "", err
		}
		node, c = folder, CapFetchFolders
	case models.KindFile:
		file, err := s.loadFile(ctx, id)
		if err != nil {
			return "", err
		}
		node, c = file, CapFetchFiles
	default:
		return "", fmt.Errorf("%w: unknown node kind %q", xerr.ErrInvalidParams, kind)
	}
	if err := authorize(p, node.OwnerID(), c); err != nil {
		return "", err
	}
	return NewPathResolver(s.eng.walker(s.eng.repos)).Resolve(ctx, node)
}

func (s *Service) FormatSize(bytes int64) string {
	return utils.FormatSize(bytes)
}

// ListFolder 返回目录及其直接子节点；子节点列表走缓存，路径每次重新计算
func (s *Service) ListFolder(ctx context.Context, p Principal, folderID string, includeTrashed bool) (*Listing, error) {
	folder, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, folder.OwnedByID, CapFetchFolders); err != nil {
		return nil, err
	}

	key := cache.ListingKey(folderID, includeTrashed)
	var children models.FolderListing
	if err := s.eng.cache.Get(ctx, key, &children); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("ListFolder: cache read failed", zap.String("key", key), zap.Error(err))
		}
		if children.Folders, err = s.eng.repos.Folders.ListChildren(ctx, folderID, includeTrashed); err != nil {
			return nil, err
		}
		if children.Files, err = s.eng.repos.Files.ListByFolder(ctx, folderID, includeTrashed); err != nil {
			return nil, err
		}
		if err := s.eng.cache.Set(ctx, key, &children, s.eng.cacheTTL); err != nil {
			logger.Warn("ListFolder: cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	view := s.folderView(ctx, folder)
	listing := &Listing{
		Folder:  *view,
		Folders: make([]FolderView, 0, len(children.Folders)),
		Files:   make([]FileView, 0, len(children.Files)),
	}
	for i := range children.Folders {
		f := &children.Folders[i]
		listing.Folders = append(listing.Folders, FolderView{Folder: f, Path: view.Path + "/" + f.Name, FormattedSize: utils.FormatSize(f.Size)})
	}
	for i := range children.Files {
		f := &children.Files[i]
		listing.Files = append(listing.Files, FileView{File: f, FullName: f.FullName(), Path: view.Path + "/" + f.FullName(), FormattedSize: utils.FormatSize(f.Size)})
	}
	return listing, nil
}

// ListTrash 列出调用者自己回收站中的节点
func (s *Service) ListTrash(ctx context.Context, p Principal) (*TrashListing, error) {
	folders, err := s.eng.repos.Folders.ListTrashed(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	files, err := s.eng.repos.Files.ListTrashed(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	out := &TrashListing{
		Folders: make([]FolderView, 0, len(folders)),
		Files:   make([]FileView, 0, len(files)),
	}
	for i := range folders {
		out.Folders = append(out.Folders, *s.folderView(ctx, &folders[i]))
	}
	for i := range files {
		out.Files = append(out.Files, *s.fileView(ctx, &files[i]))
	}
	return out, nil
}

func (s *Service) Usage(ctx context.Context, p Principal, userID uint64) (*UsageView, error) {
	if err := authorize(p, userID, CapFetchFolders); err != nil {
		return nil, err
	}
	user, err := s.eng.repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UsageView{
		UserID:         user.ID,
		AllocatedBytes: user.AllocatedDriveBytes,
		UsedBytes:      user.UsedDriveBytes,
		FreeBytes:      user.FreeDriveBytes(),
		Allocated:      utils.FormatSize(user.AllocatedDriveBytes),
		Used:           utils.FormatSize(user.UsedDriveBytes),
		Free:           utils.FormatSize(user.FreeDriveBytes()),
	}, nil
}

// SizeMismatch 是一个聚合大小与实际文件之和不一致的目录
type SizeMismatch struct {
	FolderID string `json:"folder_id"`
	Stored   int64  `json:"stored"`
	Actual   int64  `json:"actual"`
}

type AuditReport struct {
	UserID      uint64         `json:"user_id"`
	LedgerBytes int64          `json:"ledger_bytes"`
	FileBytes   int64          `json:"file_bytes"`
	Folders     []SizeMismatch `json:"folders,omitempty"`
}

func (r *AuditReport) Consistent() bool {
	return r.LedgerBytes == r.FileBytes && len(r.Folders) == 0
}

// Audit 根据文件重新计算用户的已用空间和每个目录的大小
// 子树总是属于同一个用户，所以只需要加载该用户的节点
func (s *Service) Audit(ctx context.Context, userID uint64) (*AuditReport, error) {
	user, err := s.eng.repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	folders, err := s.eng.repos.Folders.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	files, err := s.eng.repos.Files.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	parents := make(map[string]*string, len(folders))
	actual := make(map[string]int64, len(folders))
	for i := range folders {
		parents[folders[i].ID] = folders[i].ParentID
		actual[folders[i].ID] = 0
	}

	fileBytes, err := s.eng.repos.Files.SumSizeByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{UserID: userID, LedgerBytes: user.UsedDriveBytes, FileBytes: fileBytes}
	for i := range files {
		id := &files[i].FolderID
		for steps := 0; id != nil; steps++ {
			if steps > len(folders) {
				return nil, fmt.Errorf("%w: ancestor loop above file %s", xerr.ErrCorruptTree, files[i].ID)
			}
			parent, ok := parents[*id]
			if !ok {
				break
			}
			actual[*id] += files[i].Size
			id = parent
		}
	}
	for i := range folders {
		f := &folders[i]
		if f.Size != actual[f.ID] {
			report.Folders = append(report.Folders, SizeMismatch{FolderID: f.ID, Stored: f.Size, Actual: actual[f.ID]})
		}
	}
	if !report.Consistent() {
		logger.Warn("Audit: inconsistent aggregates", zap.Uint64("userID", userID),
			zap.Int64("ledger", report.LedgerBytes), zap.Int64("files", report.FileBytes), zap.Int("folders", len(report.Folders)))
	}
	return report, nil
}
