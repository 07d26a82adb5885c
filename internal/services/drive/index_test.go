package drive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-drive/internal/pkg/search"
	"github.com/3Eeeecho/go-drive/internal/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memIndexer 把文档保存在内存里，便于断言索引内容
type memIndexer struct {
	mu   sync.Mutex
	docs map[string]search.NodeDocument
}

func (m *memIndexer) IndexNode(_ context.Context, doc search.NodeDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *memIndexer) DeleteNode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memIndexer) doc(t *testing.T, id string) search.NodeDocument {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	require.Truef(t, ok, "no document for %s", id)
	return doc
}

// withIndexer 用同一个数据库重建 Service，并挂上内存索引
func (h *harness) withIndexer() *memIndexer {
	h.t.Helper()
	idx := &memIndexer{docs: map[string]search.NodeDocument{}}
	local, err := storage.NewLocalStore(h.blobDir)
	require.NoError(h.t, err)
	svc, err := New(Deps{
		DB:      h.db,
		Blobs:   storage.NewResilientStore(local, 5*time.Second, 1, 0),
		Indexer: idx,
	}, Options{TempDir: h.tempDir, ArchiveWorkers: 2, MaxTreeDepth: 64})
	require.NoError(h.t, err)
	h.svc = svc
	return idx
}

func TestIndex_FolderRenameAndTrashUpdateDescendants(t *testing.T) {
	h := newHarness(t)
	idx := h.withIndexer()
	p, root := h.user("alice", 1000)
	docs := h.mkdir(p, root, "docs")
	inner := h.mkdir(p, docs, "inner")
	r := h.upload(p, docs, "r.txt", "report")
	deep := h.upload(p, inner, "deep.txt", "deep")
	assert.Equal(t, "/alice/docs/r.txt", idx.doc(t, r.ID).Path)

	_, err := h.svc.RenameFolder(h.ctx, p, docs, "papers")
	require.NoError(t, err)
	assert.Equal(t, "/alice/papers", idx.doc(t, docs).Path)
	assert.Equal(t, "/alice/papers/inner", idx.doc(t, inner).Path)
	assert.Equal(t, "/alice/papers/r.txt", idx.doc(t, r.ID).Path)
	assert.Equal(t, "/alice/papers/inner/deep.txt", idx.doc(t, deep.ID).Path)

	require.NoError(t, h.svc.TrashFolder(h.ctx, p, docs))
	for _, id := range []string{docs, inner, r.ID, deep.ID} {
		assert.Equal(t, "trashed", idx.doc(t, id).State, id)
	}
	assert.Equal(t, "/alice/papers/r.txt", idx.doc(t, r.ID).Path)
}

func TestIndex_CrossOwnerMoveUpdatesOwnerAndPath(t *testing.T) {
	h := newHarness(t)
	idx := h.withIndexer()
	p1, root1 := h.user("alice", 1000)
	p2, root2 := h.user("bob", 1000)
	docs := h.mkdir(p1, root1, "docs")
	f := h.upload(p1, docs, "a.txt", "hello")

	_, err := h.svc.MoveFolder(h.ctx, NewPrincipal(p1.UserID, string(CapMoveFolders)), docs, root2)
	require.NoError(t, err)

	doc := idx.doc(t, f.ID)
	assert.Equal(t, p2.UserID, doc.OwnerID)
	assert.Equal(t, "/bob/docs/a.txt", doc.Path)
	assert.Equal(t, p2.UserID, idx.doc(t, docs).OwnerID)
	assert.Equal(t, root2, idx.doc(t, docs).ParentID)
}

func TestIndex_PermanentDeleteRemovesDocuments(t *testing.T) {
	h := newHarness(t)
	idx := h.withIndexer()
	p, root := h.user("alice", 1000)
	docs := h.mkdir(p, root, "docs")
	f := h.upload(p, docs, "a.txt", "hello")

	require.NoError(t, h.svc.PermanentDeleteFolder(h.ctx, p, docs))
	idx.mu.Lock()
	defer idx.mu.Unlock()
	assert.NotContains(t, idx.docs, f.ID)
	assert.NotContains(t, idx.docs, docs)
}
