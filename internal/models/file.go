package models

import "time"

// File 对应 drive_files 表
type File struct {
	ID          string     `gorm:"type:char(36);primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(255);not null;index:idx_file_sibling,priority:3" json:"name"`
	Extension   string     `gorm:"type:varchar(32);not null;default:''" json:"extension"`
	MimeType    string     `gorm:"type:varchar(128);not null;default:''" json:"mime_type"`
	Size        int64      `gorm:"not null;default:0" json:"size"` // 创建后不可变
	FolderID    string     `gorm:"type:char(36);not null;index:idx_file_sibling,priority:1" json:"folder_id"`
	OwnedByID   uint64     `gorm:"not null;index:idx_file_sibling,priority:2" json:"owned_by_id"`
	CreatedByID uint64     `gorm:"not null" json:"created_by_id"`
	UpdatedByID uint64     `gorm:"not null" json:"updated_by_id"`
	StorageKey  string     `gorm:"type:varchar(255);not null" json:"-"` // blob 后端的对象 key，不对外暴露
	State       NodeState  `gorm:"type:tinyint unsigned;not null;default:1;index" json:"state"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定 GORM 使用的表名
func (File) TableName() string {
	return "drive_files"
}

// FullName 返回带扩展名的文件名
func (f *File) FullName() string {
	if f.Extension == "" {
		return f.Name
	}
	return f.Name + "." + f.Extension
}

func (f *File) NodeID() string          { return f.ID }
func (f *File) Kind() NodeKind          { return KindFile }
func (f *File) ParentNodeID() *string   { return &f.FolderID }
func (f *File) DisplayName() string     { return f.FullName() }
func (f *File) OwnerID() uint64         { return f.OwnedByID }
func (f *File) CurrentState() NodeState { return f.State }
func (f *File) ByteSize() int64         { return f.Size }
