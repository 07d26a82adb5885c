package drive

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/repositories"
)

// DefaultMaxTreeDepth 是祖先链/子树遍历的上限
const DefaultMaxTreeDepth = 10000

// VisitFunc 在遍历到每个节点时调用；depth 为相对起点的层数，起点的直接子节点为 1
type VisitFunc func(node models.Node, depth int) error

// AncestorFunc 按子到根的顺序接收每个祖先目录
type AncestorFunc func(folder *models.Folder) error

// errSkipChildren 由 VisitFunc 对目录返回，表示不再进入该目录
var errSkipChildren = errors.New("skip children")

// TreeWalker 只负责遍历，不做任何修改
type TreeWalker struct {
	folders  repositories.FolderRepository
	files    repositories.FileRepository
	maxDepth int
}

func NewTreeWalker(folders repositories.FolderRepository, files repositories.FileRepository, maxDepth int) *TreeWalker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTreeDepth
	}
	return &TreeWalker{folders: folders, files: files, maxDepth: maxDepth}
}

// ForEachAncestor 从 node 的父目录开始向上直到根目录
// includeTrashed 为 false 时遇到回收站中的祖先即停止
func (w *TreeWalker) ForEachAncestor(ctx context.Context, node models.Node, includeTrashed bool, visit AncestorFunc) error {
	seen := map[string]struct{}{node.NodeID(): {}}
	parentID := node.ParentNodeID()
	for steps := 0; parentID != nil; steps++ {
		if steps >= w.maxDepth {
			return fmt.Errorf("%w: ancestor chain of %s exceeds %d levels", xerr.ErrCorruptTree, node.NodeID(), w.maxDepth)
		}
		if _, ok := seen[*parentID]; ok {
			return fmt.Errorf("%w: cycle at folder %s above %s", xerr.ErrCorruptTree, *parentID, node.NodeID())
		}
		seen[*parentID] = struct{}{}

		parent, err := w.folders.FindByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, xerr.ErrNotFound) {
				return fmt.Errorf("%w: dangling parent %s above %s: %w", xerr.ErrCorruptTree, *parentID, node.NodeID(), err)
			}
			return err
		}
		if !includeTrashed && parent.State != models.StateActive {
			return nil
		}
		if err := visit(parent); err != nil {
			return err
		}
		parentID = parent.ParentID
	}
	return nil
}

// AncestorIDs 返回包含回收站目录在内的全部祖先 id，子到根
func (w *TreeWalker) AncestorIDs(ctx context.Context, node models.Node) ([]string, error) {
	var ids []string
	err := w.ForEachAncestor(ctx, node, true, func(f *models.Folder) error {
		ids = append(ids, f.ID)
		return nil
	})
	return ids, err
}

// ForEachDescendant 深度优先前序遍历 folder 的子树
// 每个目录先访问它的文件，再依次访问子目录并递归进入
func (w *TreeWalker) ForEachDescendant(ctx context.Context, folder *models.Folder, includeTrashed bool, visit VisitFunc) error {
	seen := map[string]struct{}{folder.ID: {}}
	return w.descend(ctx, folder, 0, includeTrashed, seen, visit)
}

func (w *TreeWalker) descend(ctx context.Context, folder *models.Folder, depth int, includeTrashed bool, seen map[string]struct{}, visit VisitFunc) error {
	if depth >= w.maxDepth {
		return fmt.Errorf("%w: subtree of %s exceeds %d levels", xerr.ErrCorruptTree, folder.ID, w.maxDepth)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	files, err := w.files.ListByFolder(ctx, folder.ID, includeTrashed)
	if err != nil {
		return err
	}
	for i := range files {
		if err := visit(&files[i], depth+1); err != nil {
			return err
		}
	}

	children, err := w.folders.ListChildren(ctx, folder.ID, includeTrashed)
	if err != nil {
		return err
	}
	for i := range children {
		child := &children[i]
		if _, ok := seen[child.ID]; ok {
			return fmt.Errorf("%w: folder %s reached twice under %s", xerr.ErrCorruptTree, child.ID, folder.ID)
		}
		seen[child.ID] = struct{}{}

		if err := visit(child, depth+1); err != nil {
			if errors.Is(err, errSkipChildren) {
				continue
			}
			return err
		}
		if err := w.descend(ctx, child, depth+1, includeTrashed, seen, visit); err != nil {
			return err
		}
	}
	return nil
}

// subtree 是一次子树遍历的快照
type subtree struct {
	nodes     []models.Node // 前序
	folderIDs []string      // 包含起点
	fileIDs   []string
}

func (w *TreeWalker) collect(ctx context.Context, folder *models.Folder, includeTrashed bool) (*subtree, error) {
	st := &subtree{folderIDs: []string{folder.ID}}
	err := w.ForEachDescendant(ctx, folder, includeTrashed, func(n models.Node, _ int) error {
		st.nodes = append(st.nodes, n)
		switch n.Kind() {
		case models.KindFolder:
			st.folderIDs = append(st.folderIDs, n.NodeID())
		case models.KindFile:
			st.fileIDs = append(st.fileIDs, n.NodeID())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// activeIDs 返回子树中 Active 的目录和文件 id，不含起点
func (st *subtree) activeIDs() (folderIDs, fileIDs []string) {
	for _, n := range st.nodes {
		if n.CurrentState() != models.StateActive {
			continue
		}
		switch n.Kind() {
		case models.KindFolder:
			folderIDs = append(folderIDs, n.NodeID())
		case models.KindFile:
			fileIDs = append(fileIDs, n.NodeID())
		}
	}
	return folderIDs, fileIDs
}
