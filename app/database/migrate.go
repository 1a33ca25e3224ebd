package database

import "seerr-relay/app/model"

func AutoMigrate() error {
	// 自动迁移表结构
	return DB.AutoMigrate(
		&model.BotUser{},
		&model.UserSession{},
		&model.TrackedRequest{},
	)
}
