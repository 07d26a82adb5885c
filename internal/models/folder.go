package models

import "time"

// Folder 对应 drive_folders 表
type Folder struct {
	ID          string     `gorm:"type:char(36);primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(255);not null;index:idx_folder_sibling,priority:3" json:"name"`
	ParentID    *string    `gorm:"type:char(36);index:idx_folder_sibling,priority:1" json:"parent_id"` // 根目录为 null
	OwnedByID   uint64     `gorm:"not null;index:idx_folder_sibling,priority:2" json:"owned_by_id"`
	CreatedByID uint64     `gorm:"not null" json:"created_by_id"`
	UpdatedByID uint64     `gorm:"not null" json:"updated_by_id"`
	Size        int64      `gorm:"not null;default:0" json:"size"` // 所有后代文件大小之和
	State       NodeState  `gorm:"type:tinyint unsigned;not null;default:1;index" json:"state"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"` // 进入回收站的时间
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定 GORM 使用的表名
func (Folder) TableName() string {
	return "drive_folders"
}

func (f *Folder) IsRoot() bool { return f.ParentID == nil }

func (f *Folder) NodeID() string          { return f.ID }
func (f *Folder) Kind() NodeKind          { return KindFolder }
func (f *Folder) ParentNodeID() *string   { return f.ParentID }
func (f *Folder) DisplayName() string     { return f.Name }
func (f *Folder) OwnerID() uint64         { return f.OwnedByID }
func (f *Folder) CurrentState() NodeState { return f.State }
func (f *Folder) ByteSize() int64         { return f.Size }
