package database

import (
	"seerr-relay/app/config"
	"seerr-relay/app/logger"
	"seerr-relay/app/model"

	"gorm.io/gorm"
)

// SeedAdmins 把配置中的管理员 ID 同步到用户表。
// 已存在的记录只提升权限位，不覆盖其余字段；配置中移除的管理员会被降级。
func SeedAdmins(cfg *config.Config, log *logger.Logger) error {
	if len(cfg.Bot.Admins) == 0 {
		log.Warnf("配置中未设置管理员，审批命令将不可用")
	}

	adminSet := make(map[int64]struct{}, len(cfg.Bot.Admins))
	for _, id := range cfg.Bot.Admins {
		adminSet[id] = struct{}{}

		var user model.BotUser
		err := DB.Where("telegram_user_id = ?", id).First(&user).Error
		switch {
		case err == nil:
			if !user.IsAdmin || !user.IsAuthorized {
				user.IsAdmin = true
				user.IsAuthorized = true
				if err := DB.Save(&user).Error; err != nil {
					return err
				}
				log.Infof("用户 %d 提升为管理员", id)
			}
		case err == gorm.ErrRecordNotFound:
			user = model.BotUser{
				TelegramUserID: id,
				IsAdmin:        true,
				IsAuthorized:   true,
			}
			if err := DB.Create(&user).Error; err != nil {
				return err
			}
			log.Infof("管理员 %d 已创建", id)
		default:
			return err
		}
	}

	// 降级不在配置中的管理员
	var stale []model.BotUser
	if err := DB.Where("is_admin = ?", true).Find(&stale).Error; err != nil {
		return err
	}
	for _, user := range stale {
		if _, ok := adminSet[user.TelegramUserID]; !ok {
			user.IsAdmin = false
			if err := DB.Save(&user).Error; err != nil {
				return err
			}
			log.Infof("用户 %d 管理员权限已移除", user.TelegramUserID)
		}
	}

	return nil
}
