package model

import (
	"time"
)

// BotUser Telegram 用户在机器人侧的授权记录
type BotUser struct {
	ID                uint   `json:"id" gorm:"primarykey"`
	TelegramUserID    int64  `json:"telegram_user_id" gorm:"uniqueIndex;not null"`
	Username          string `json:"username"`
	DisplayName       string `json:"display_name"`
	IsAdmin           bool   `json:"is_admin" gorm:"default:false"`
	IsAuthorized      bool   `json:"is_authorized" gorm:"default:false"`
	IsBlocked         bool   `json:"is_blocked" gorm:"default:false"`
	OverseerrUserID   int    `json:"overseerr_user_id"`   // API 模式下代为提交请求的 Overseerr 用户
	OverseerrUserName string `json:"overseerr_user_name"` // 显示名，选择列表回显用
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName 指定表名
func (BotUser) TableName() string {
	return "bot_users"
}
