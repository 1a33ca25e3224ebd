package model

import (
	"time"
)

// UserSession Normal 模式下保存的 Overseerr 会话 Cookie
type UserSession struct {
	ID             uint   `json:"id" gorm:"primarykey"`
	TelegramUserID int64  `json:"telegram_user_id" gorm:"uniqueIndex;not null"`
	Cookie         string `json:"-" gorm:"not null"` // connect.sid，不参与序列化
	Email          string `json:"email"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定表名
func (UserSession) TableName() string {
	return "user_sessions"
}
