package drive

import (
	"testing"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFile_IncludesTrashedAndChecksOwner(t *testing.T) {
	h := newHarness(t)
	p1, root := h.user("u1", 1<<20)
	p2, _ := h.user("u2", 1<<20)
	f := h.upload(p1, root, "a.txt", "a")
	require.NoError(t, h.svc.TrashFile(h.ctx, p1, f.ID))

	got, err := h.svc.GetFile(h.ctx, p1, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateTrashed, got.State)
	assert.Equal(t, "/u1/a.txt", got.Path)

	_, err = h.svc.GetFile(h.ctx, p2, f.ID)
	assert.ErrorIs(t, err, xerr.ErrForbidden)
	_, err = h.svc.GetFile(h.ctx, NewPrincipal(p2.UserID, string(CapFetchFiles)), f.ID)
	assert.NoError(t, err)

	_, err = h.svc.GetFile(h.ctx, p1, "missing")
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)
}

func TestCurrentRoot(t *testing.T) {
	h := newHarness(t)
	p, root := h.user("u1", 1<<20)

	view, err := h.svc.CurrentRoot(h.ctx, p)
	require.NoError(t, err)
	assert.Equal(t, root, view.ID)
	assert.Equal(t, "/u1", view.Path)

	_, err = h.svc.CurrentRoot(h.ctx, NewPrincipal(4242))
	assert.ErrorIs(t, err, xerr.ErrNotFound)
}

func TestListOwnedFolders_Pages(t *testing.T) {
	h := newHarness(t)
	p1, root := h.user("u1", 1<<20)
	p2, _ := h.user("u2", 1<<20)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"} {
		h.mkdir(p1, root, name)
	}

	first, err := h.svc.ListOwnedFolders(h.ctx, p1, p1.UserID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(12), first.Total)
	assert.Len(t, first.Items, 10)

	second, err := h.svc.ListOwnedFolders(h.ctx, p1, p1.UserID, 2, 10)
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.Equal(t, 2, second.Page)

	seen := map[string]bool{}
	for _, f := range append(first.Items, second.Items...) {
		seen[f.ID] = true
	}
	assert.Len(t, seen, 12)

	_, err = h.svc.ListOwnedFolders(h.ctx, p2, p1.UserID, 1, 10)
	assert.ErrorIs(t, err, xerr.ErrForbidden)
	_, err = h.svc.ListOwnedFolders(h.ctx, p1, p1.UserID, 1, 30)
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)
}

func TestListOwnedFiles(t *testing.T) {
	h := newHarness(t)
	p, root := h.user("u1", 1<<20)
	docs := h.mkdir(p, root, "docs")
	h.upload(p, root, "a.txt", "a")
	h.upload(p, docs, "b.txt", "b")

	page, err := h.svc.ListOwnedFiles(h.ctx, p, p.UserID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Len(t, page.Items, 2)
}

func TestNormalizePage(t *testing.T) {
	page, size, err := normalizePage(-3, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)

	for _, size := range []int{10, 25, 50, 100} {
		_, _, err := normalizePage(1, size)
		assert.NoError(t, err, size)
	}
	_, _, err = normalizePage(1, -10)
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.tempDir, h.svc.dataDir)

	stats, err := h.svc.Stats(h.ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.Total.Bytes)
	assert.Equal(t, stats.Total.Bytes, stats.Free.Bytes+stats.Used.Bytes)
	assert.Equal(t, h.svc.FormatSize(int64(stats.Free.Bytes)), stats.Free.Formatted)

	h.svc.dataDir = h.tempDir + "/missing"
	_, err = h.svc.Stats(h.ctx)
	assert.ErrorIs(t, err, xerr.ErrStorage)
}
