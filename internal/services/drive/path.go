package drive

import (
	"context"
	"strings"

	"github.com/3Eeeecho/go-drive/internal/models"
)

// PathResolver 每次都从当前树结构重新计算路径，不做缓存
type PathResolver struct {
	walker *TreeWalker
}

func NewPathResolver(walker *TreeWalker) *PathResolver {
	return &PathResolver{walker: walker}
}

// Resolve 返回 "/root/a/b.txt" 形式的完整路径
func (p *PathResolver) Resolve(ctx context.Context, node models.Node) (string, error) {
	segments := []string{node.DisplayName()}
	err := p.walker.ForEachAncestor(ctx, node, true, func(f *models.Folder) error {
		segments = append(segments, f.Name)
		return nil
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segments[i])
	}
	return b.String(), nil
}
