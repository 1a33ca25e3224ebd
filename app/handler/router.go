package handler

import (
	"context"
	"strings"

	"seerr-relay/app/config"
	"seerr-relay/app/logger"
	"seerr-relay/app/overseerr"
	"seerr-relay/app/session"
	"seerr-relay/app/telegram"

	"go.uber.org/zap"
)

// Router 顶层事件路由：解析命令、做访问判定，再分派给
// 命令处理器或审批流程。实现 telegram.Handler。
type Router struct {
	msg      Messenger
	commands *Commands
	admin    *AdminFlow
	guard    *Guard
	sessions *session.Manager
	log      *logger.Logger
}

// NewRouter 组装事件路由
func NewRouter(msg Messenger, client *overseerr.Client, cfg *config.Config, log *logger.Logger) *Router {
	sessions := session.NewManager()
	return &Router{
		msg:      msg,
		commands: NewCommands(msg, client, cfg, log),
		admin:    NewAdminFlow(msg, client, sessions, log),
		guard:    NewGuard(cfg),
		sessions: sessions,
		log:      log,
	}
}

// UpdateConfig 配置热更新入口。配置引用由 Guard 与 Commands
// 各自加锁持有，热重载协程与聊天 worker 并发读写是安全的。
func (r *Router) UpdateConfig(cfg *config.Config) {
	r.guard.UpdateConfig(cfg)
	r.commands.UpdateConfig(cfg)
	r.log.Info("事件路由已应用新配置")
}

// HandleMessage 处理文本消息
func (r *Router) HandleMessage(ctx context.Context, m *telegram.Message) {
	if m.From == nil || m.Text == "" {
		return
	}

	user, err := r.guard.Lookup(m.From.ID)
	if err != nil {
		r.log.Error("查询用户失败", zap.Int64("telegram_user_id", m.From.ID), zap.Error(err))
		return
	}

	command, args := parseCommand(m.Text)

	// /start 在授权之前就要可用
	if command == "/start" {
		if user != nil && user.IsBlocked {
			return
		}
		r.commands.Start(ctx, m, user)
		return
	}

	// 非命令文本可能是口令输入
	if command == "" {
		r.commands.TryPassword(ctx, m, user)
		return
	}

	switch command {
	case "/pending":
		if d := r.guard.CheckAdmin(user, m.Chat.Type == "private"); d != Allow {
			r.deny(ctx, m, d)
			return
		}
		r.admin.ShowPending(ctx, m.Chat.ID, m.MessageThreadID)
	case "/check":
		if d := r.guard.Check(user, m.Chat.ID, m.MessageThreadID); d != Allow {
			r.deny(ctx, m, d)
			return
		}
		r.commands.Check(ctx, m, strings.Join(args, " "))
	case "/login":
		if d := r.guard.Check(user, m.Chat.ID, m.MessageThreadID); d != Allow {
			r.deny(ctx, m, d)
			return
		}
		r.commands.Login(ctx, m, args)
	case "/logout":
		if d := r.guard.Check(user, m.Chat.ID, m.MessageThreadID); d != Allow {
			r.deny(ctx, m, d)
			return
		}
		r.commands.Logout(ctx, m)
	case "/help":
		r.commands.Help(ctx, m, user != nil && user.IsAdmin)
	default:
		// 未知命令不回声，群里尤其不该刷屏
		r.log.Debug("忽略未知命令",
			zap.String("command", command), zap.Int64("chat_id", m.Chat.ID))
	}
}

// HandleCallback 处理按钮回调
func (r *Router) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		_ = r.msg.AnswerCallback(ctx, cb.ID, "⚠️ This message is too old", true)
		return
	}

	user, err := r.guard.Lookup(cb.From.ID)
	if err != nil {
		r.log.Error("查询用户失败", zap.Int64("telegram_user_id", cb.From.ID), zap.Error(err))
		_ = r.msg.AnswerCallback(ctx, cb.ID, "❌ Something went wrong", true)
		return
	}

	if strings.HasPrefix(cb.Data, "admin_") {
		if d := r.guard.CheckAdmin(user, cb.Message.Chat.Type == "private"); d != Allow {
			_ = r.msg.AnswerCallback(ctx, cb.ID, "⛔ Admin only", true)
			return
		}
		if !r.admin.HandleCallback(ctx, cb) {
			_ = r.msg.AnswerCallback(ctx, cb.ID, "⚠️ Unknown action", true)
		}
		return
	}

	if d := r.guard.Check(user, cb.Message.Chat.ID, cb.Message.MessageThreadID); d != Allow {
		_ = r.msg.AnswerCallback(ctx, cb.ID, "🔒 Not authorized", true)
		return
	}
	if !r.commands.HandleCallback(ctx, cb, user) {
		_ = r.msg.AnswerCallback(ctx, cb.ID, "⚠️ Unknown action", true)
	}
}

func (r *Router) deny(ctx context.Context, m *telegram.Message, d Decision) {
	// 群里走错聊天的消息直接忽略，避免打扰无关话题
	if d == DenyWrongChat && m.Chat.Type != "private" {
		return
	}
	_, _ = r.msg.SendMessage(ctx, m.Chat.ID, m.MessageThreadID, DenyMessage(d), nil)
}

// parseCommand 拆出命令与参数。"/check@botname foo" 也要能识别。
// 非命令消息返回空命令。
func parseCommand(text string) (command string, args []string) {
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text)
	command = fields[0]
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	return command, fields[1:]
}
