package drive

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// faultyStore 包装真实的本地存储，按需注入 Put/Remove 失败
type faultyStore struct {
	storage.BlobStore
	mu        sync.Mutex
	putErr    error
	removeErr error
}

func (f *faultyStore) failPut(err error) {
	f.mu.Lock()
	f.putErr = err
	f.mu.Unlock()
}

func (f *faultyStore) failRemove(err error) {
	f.mu.Lock()
	f.removeErr = err
	f.mu.Unlock()
}

func (f *faultyStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.BlobStore.Put(ctx, key, r, size, contentType)
}

func (f *faultyStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	err := f.removeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.BlobStore.Remove(ctx, key)
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	svc     *Service
	faults  *faultyStore
	blobDir string
	tempDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger.SetLogger(zap.NewNop())

	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "drive.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	blobDir := filepath.Join(dir, "blobs")
	local, err := storage.NewLocalStore(blobDir)
	require.NoError(t, err)
	faults := &faultyStore{BlobStore: local}

	tempDir := filepath.Join(dir, "tmp")
	svc, err := New(Deps{
		DB:    db,
		Blobs: storage.NewResilientStore(faults, 5*time.Second, 1, 0),
	}, Options{TempDir: tempDir, ArchiveWorkers: 2, MaxTreeDepth: 64})
	require.NoError(t, err)

	return &harness{t: t, ctx: context.Background(), db: db, svc: svc, faults: faults, blobDir: blobDir, tempDir: tempDir}
}

// user 创建用户并返回它的 Principal 和根目录 id
func (h *harness) user(name string, allocated int64) (Principal, string) {
	h.t.Helper()
	u, err := h.svc.ProvisionUser(h.ctx, name, allocated)
	require.NoError(h.t, err)
	require.NotNil(h.t, u.FolderID)
	return NewPrincipal(u.ID), *u.FolderID
}

func (h *harness) mkdir(p Principal, parentID, name string) string {
	h.t.Helper()
	f, err := h.svc.CreateFolder(h.ctx, p, parentID, name)
	require.NoError(h.t, err)
	return f.ID
}

func (h *harness) upload(p Principal, folderID, name, content string) *FileView {
	h.t.Helper()
	f, err := h.svc.UploadFile(h.ctx, p, UploadInput{
		FolderID: folderID,
		Name:     name,
		Reader:   strings.NewReader(content),
		Size:     int64(len(content)),
	})
	require.NoError(h.t, err)
	return f
}

func (h *harness) uploadSized(p Principal, folderID, name string, size int) (*FileView, error) {
	return h.svc.UploadFile(h.ctx, p, UploadInput{
		FolderID: folderID,
		Name:     name,
		Reader:   bytes.NewReader(bytes.Repeat([]byte("x"), size)),
		Size:     int64(size),
		MimeType: "application/octet-stream",
	})
}

func (h *harness) folder(id string) *models.Folder {
	h.t.Helper()
	f, err := h.svc.eng.repos.Folders.FindByID(h.ctx, id)
	require.NoError(h.t, err)
	return f
}

func (h *harness) file(id string) *models.File {
	h.t.Helper()
	f, err := h.svc.eng.repos.Files.FindByID(h.ctx, id)
	require.NoError(h.t, err)
	return f
}

func (h *harness) used(p Principal) int64 {
	h.t.Helper()
	u, err := h.svc.eng.repos.Users.FindByID(h.ctx, p.UserID)
	require.NoError(h.t, err)
	return u.UsedDriveBytes
}

// requireConsistent 校验目录大小和用户已用空间都与文件一致
func (h *harness) requireConsistent(users ...Principal) {
	h.t.Helper()
	for _, p := range users {
		report, err := h.svc.Audit(h.ctx, p.UserID)
		require.NoError(h.t, err)
		require.Truef(h.t, report.Consistent(), "audit for user %d: %+v", p.UserID, report)
	}
}

func (h *harness) blobCount() int {
	h.t.Helper()
	n := 0
	err := filepath.WalkDir(h.blobDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0
	}
	return n
}
