package models

import "time"

// User 对应 users 表；账号本身由外部系统管理，这里只保存配额和根目录
type User struct {
	ID                  uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username            string    `gorm:"type:varchar(64);unique;not null" json:"username"`
	AllocatedDriveBytes int64     `gorm:"not null;default:0" json:"allocated_drive_bytes"`
	UsedDriveBytes      int64     `gorm:"not null;default:0" json:"used_drive_bytes"`
	FolderID            *string   `gorm:"type:char(36)" json:"folder_id"` // 根目录
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定 GORM 使用的表名
func (User) TableName() string {
	return "users"
}

func (u *User) FreeDriveBytes() int64 {
	if u.UsedDriveBytes >= u.AllocatedDriveBytes {
		return 0
	}
	return u.AllocatedDriveBytes - u.UsedDriveBytes
}
