package drive

import (
	"fmt"

	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/repositories"
)

// Capability 是操作他人节点时需要的权限名
type Capability string

const (
	CapCreateFolders   Capability = "create_folders"
	CapUpdateFolders   Capability = "update_folders"
	CapMoveFolders     Capability = "move_folders"
	CapTrashFolders    Capability = "trash_folders"
	CapRestoreFolders  Capability = "restore_folders"
	CapDeleteFolders   Capability = "delete_folders"
	CapDownloadFolders Capability = "download_folders"
	CapFetchFolders    Capability = "fetch_folders"

	CapCreateFiles   Capability = "create_files"
	CapUpdateFiles   Capability = "update_files"
	CapMoveFiles     Capability = "move_files"
	CapTrashFiles    Capability = "trash_files"
	CapRestoreFiles  Capability = "restore_files"
	CapDeleteFiles   Capability = "delete_files"
	CapDownloadFiles Capability = "download_files"
	CapFetchFiles    Capability = "fetch_files"
)

// Principal 是发起请求的用户；System 用于内部任务，跳过所有检查
type Principal struct {
	UserID       uint64
	Capabilities map[Capability]struct{}
	System       bool
}

func NewPrincipal(userID uint64, caps ...string) Principal {
	p := Principal{UserID: userID, Capabilities: make(map[Capability]struct{}, len(caps))}
	for _, c := range caps {
		p.Capabilities[Capability(c)] = struct{}{}
	}
	return p
}

// SystemPrincipal 以 userID 的身份执行，不做权限检查
func SystemPrincipal(userID uint64) Principal {
	return Principal{UserID: userID, System: true}
}

// mutation 系统任务的写入不刷新 updated_by_id / updated_at
func (p Principal) mutation() repositories.Mutation {
	if p.System {
		return repositories.SystemMutation
	}
	return repositories.ByActor(p.UserID)
}

func (p Principal) Can(c Capability) bool {
	if p.System {
		return true
	}
	_, ok := p.Capabilities[c]
	return ok
}

// authorize 属主总是可以操作自己的节点，其它情况需要对应的权限
func authorize(p Principal, ownerID uint64, c Capability) error {
	if p.System || p.UserID == ownerID || p.Can(c) {
		return nil
	}
	return fmt.Errorf("%w: user %d lacks %s on a node owned by %d", xerr.ErrForbidden, p.UserID, c, ownerID)
}
