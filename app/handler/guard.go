package handler

import (
	"errors"
	"sync"

	"seerr-relay/app/config"
	"seerr-relay/app/database"
	"seerr-relay/app/model"

	"gorm.io/gorm"
)

// Decision 访问判定结果
type Decision int

const (
	Allow Decision = iota
	DenyBlocked
	DenyNotAuthorized
	DenyNotAdmin
	DenyWrongChat
)

// Guard 访问控制：用户授权状态来自数据库，
// 群组模式下还要核对聊天和话题是否是配置的主群。
// 配置引用被热重载协程并发替换，读写都要过锁。
type Guard struct {
	mu  sync.RWMutex
	cfg *config.Config
}

// NewGuard 创建访问守卫
func NewGuard(cfg *config.Config) *Guard {
	return &Guard{cfg: cfg}
}

// UpdateConfig 配置热更新后替换引用
func (g *Guard) UpdateConfig(cfg *config.Config) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

func (g *Guard) config() *config.Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Lookup 按 Telegram 用户 ID 查找用户，不存在时返回 nil 不报错
func (g *Guard) Lookup(telegramUserID int64) (*model.BotUser, error) {
	var user model.BotUser
	err := database.DB.Where("telegram_user_id = ?", telegramUserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Check 普通命令的访问判定
func (g *Guard) Check(user *model.BotUser, chatID int64, threadID int) Decision {
	if user != nil && user.IsBlocked {
		return DenyBlocked
	}
	if d := g.checkChat(chatID, threadID); d != Allow {
		return d
	}
	if user == nil || !user.IsAuthorized {
		return DenyNotAuthorized
	}
	return Allow
}

// CheckAdmin 管理命令的访问判定。管理命令只在私聊里执行，
// 群里点出来的审批结果对所有成员可见，不该在群里操作。
func (g *Guard) CheckAdmin(user *model.BotUser, isPrivateChat bool) Decision {
	if user != nil && user.IsBlocked {
		return DenyBlocked
	}
	if user == nil || !user.IsAuthorized {
		return DenyNotAuthorized
	}
	if !user.IsAdmin {
		return DenyNotAdmin
	}
	if !isPrivateChat {
		return DenyWrongChat
	}
	return Allow
}

// checkChat 群组模式下只接受配置的主群和话题，私聊始终放行
func (g *Guard) checkChat(chatID int64, threadID int) Decision {
	cfg := g.config()
	if !cfg.Bot.GroupMode || chatID > 0 {
		return Allow
	}
	if chatID != cfg.Bot.PrimaryChatID {
		return DenyWrongChat
	}
	if cfg.Bot.PrimaryThreadID != 0 && threadID != cfg.Bot.PrimaryThreadID {
		return DenyWrongChat
	}
	return Allow
}

// DenyMessage 判定结果对应的用户提示，Allow 返回空串
func DenyMessage(d Decision) string {
	switch d {
	case DenyBlocked:
		return "🚫 *Access denied.* Your account has been blocked."
	case DenyNotAuthorized:
		return "🔒 *Not authorized.* Use /start to request access."
	case DenyNotAdmin:
		return "⛔ *Admin only.* This command requires administrator privileges."
	case DenyWrongChat:
		return "⚠️ *Wrong chat.* This command is not available here."
	}
	return ""
}
