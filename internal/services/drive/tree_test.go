package drive

import (
	"errors"
	"testing"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeWalker_PreOrderFilesFirst(t *testing.T) {
	h := newHarness(t)
	p, root := h.user("u1", 1<<20)
	a := h.mkdir(p, root, "a")
	h.mkdir(p, a, "a1")
	h.mkdir(p, root, "b")
	h.upload(p, root, "r.txt", "r")
	h.upload(p, a, "x.txt", "x")

	var visited []string
	w := h.svc.eng.walker(h.svc.eng.repos)
	err := w.ForEachDescendant(h.ctx, h.folder(root), false, func(n models.Node, depth int) error {
		visited = append(visited, n.DisplayName())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r.txt", "a", "x.txt", "a1", "b"}, visited)
}

func TestTreeWalker_SkipChildrenAndDepth(t *testing.T) {
	h := newHarness(t)
	p, root := h.user("u1", 1<<20)
	a := h.mkdir(p, root, "a")
	h.upload(p, a, "x.txt", "x")
	h.mkdir(p, root, "b")

	depths := map[string]int{}
	w := h.svc.eng.walker(h.svc.eng.repos)
	err := w.ForEachDescendant(h.ctx, h.folder(root), false, func(n models.Node, depth int) error {
		depths[n.DisplayName()] = depth
		if n.DisplayName() == "a" {
			return errSkipChildren
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, depths)

	visitErr := errors.New("stop")
	err = w.ForEachDescendant(h.ctx, h.folder(root), false, func(models.Node, int) error { return visitErr })
	assert.ErrorIs(t, err, visitErr)
}

func TestTreeWalker_CorruptTree(t *testing.T) {
	h := newHarness(t)
	p, root := h.user("u1", 1<<20)
	a := h.mkdir(p, root, "a")
	b := h.mkdir(p, a, "b")

	// 人为制造 a <-> b 的环
	require.NoError(t, h.db.Model(&models.Folder{}).Where("id = ?", a).Update("parent_id", b).Error)
	w := h.svc.eng.walker(h.svc.eng.repos)
	_, err := w.AncestorIDs(h.ctx, h.folder(b))
	assert.ErrorIs(t, err, xerr.ErrCorruptTree)

	// 父目录不存在
	require.NoError(t, h.db.Model(&models.Folder{}).Where("id = ?", a).Update("parent_id", "missing").Error)
	_, err = NewPathResolver(w).Resolve(h.ctx, h.folder(b))
	assert.ErrorIs(t, err, xerr.ErrCorruptTree)
	code, _ := xerr.CodeOf(err)
	assert.Equal(t, xerr.CorruptTreeCode, code)
}

func TestTreeWalker_DepthBound(t *testing.T) {
	h := newHarness(t)
	p, root := h.user("u1", 1<<20)
	parent := root
	for _, name := range []string{"1", "2", "3", "4"} {
		parent = h.mkdir(p, parent, name)
	}

	shallow := NewTreeWalker(h.svc.eng.repos.Folders, h.svc.eng.repos.Files, 3)
	err := shallow.ForEachDescendant(h.ctx, h.folder(root), false, func(models.Node, int) error { return nil })
	assert.ErrorIs(t, err, xerr.ErrCorruptTree)
	_, err = shallow.AncestorIDs(h.ctx, h.folder(parent))
	assert.ErrorIs(t, err, xerr.ErrCorruptTree)
}

func TestTreeWalker_AncestorsStopAtTrashed(t *testing.T) {
	h := newHarness(t)
	p, root := h.user("u1", 1<<20)
	a := h.mkdir(p, root, "a")
	b := h.mkdir(p, a, "b")
	c := h.mkdir(p, b, "c")
	require.NoError(t, h.svc.TrashFolder(h.ctx, p, a))
	require.NoError(t, h.svc.RestoreFolder(h.ctx, p, b))
	require.NoError(t, h.svc.RestoreFolder(h.ctx, p, c))

	w := h.svc.eng.walker(h.svc.eng.repos)
	var active []string
	err := w.ForEachAncestor(h.ctx, h.folder(c), false, func(f *models.Folder) error {
		active = append(active, f.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, active)

	all, err := w.AncestorIDs(h.ctx, h.folder(c))
	require.NoError(t, err)
	assert.Equal(t, []string{b, a, root}, all)
}

func TestQuotaLedger_ReleaseClampsAtZero(t *testing.T) {
	h := newHarness(t)
	p, _ := h.user("u1", 100)

	err := h.svc.eng.inTx(h.ctx, func(r Repos) error {
		q := h.svc.eng.quota(r)
		if err := q.Charge(h.ctx, p.UserID, 40); err != nil {
			return err
		}
		if err := q.Charge(h.ctx, p.UserID, 61); !errors.Is(err, xerr.ErrQuotaExceeded) {
			return errors.New("expected quota exceeded")
		}
		return q.Release(h.ctx, p.UserID, 1000)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.used(p))

	err = h.svc.eng.inTx(h.ctx, func(r Repos) error {
		return h.svc.eng.quota(r).Charge(h.ctx, p.UserID, -1)
	})
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)
}
