package models

// NodeState 是节点生命周期的显式状态，取代"deleted_at 是否为空"的隐式判断
type NodeState uint8

const (
	StateActive  NodeState = 1 // 正常
	StateTrashed NodeState = 2 // 回收站
	StateGone    NodeState = 3 // 已永久删除，行已不存在，仅用于返回值
)

func (s NodeState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTrashed:
		return "trashed"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

type NodeKind string

const (
	KindFolder NodeKind = "folder"
	KindFile   NodeKind = "file"
)

// Node 是目录树遍历时 folder 和 file 的公共视图
type Node interface {
	NodeID() string
	Kind() NodeKind
	// ParentNodeID 对根目录返回 nil，文件永远非 nil
	ParentNodeID() *string
	// DisplayName 是路径中的一段，文件带扩展名
	DisplayName() string
	OwnerID() uint64
	CurrentState() NodeState
	ByteSize() int64
}

// FolderListing 是一个目录及其直接子节点，供列表接口和缓存使用
type FolderListing struct {
	Folder  *Folder  `json:"folder"`
	Folders []Folder `json:"folders"`
	Files   []File   `json:"files"`
}

// All 返回需要自动迁移的模型
func All() []any {
	return []any{&User{}, &Folder{}, &File{}}
}
