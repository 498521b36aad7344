package models

import (
	"time"
)

// User 用户表（简化版，认证由外部网关完成）
type User struct {
	UserID       uint       `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username     string     `gorm:"column:username;size:100;uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"column:email;size:200;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null" json:"-"`
	CreateTime   time.Time  `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime   *time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (User) TableName() string {
	return "users"
}
