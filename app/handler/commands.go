package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"seerr-relay/app/config"
	"seerr-relay/app/database"
	"seerr-relay/app/logger"
	"seerr-relay/app/model"
	"seerr-relay/app/overseerr"
	"seerr-relay/app/telegram"
	"seerr-relay/app/utils"

	"go.uber.org/zap"
)

// 搜索与身份选择的回调数据前缀
const (
	cbRequestHD   = "req_"     // req_<movie|tv>_<tmdbID>
	cbRequest4K   = "req4k_"   // req4k_<movie|tv>_<tmdbID>
	cbSeason      = "season_"  // season_<hd|4k>_<tmdbID>_<all|N>
	cbSelectUser  = "setuser_" // setuser_<overseerrUserID>
	maxSearchHits = 5
	maxAuthTries  = 3
)

// Searcher 搜索与提交请求所需的客户端能力
type Searcher interface {
	Search(ctx context.Context, query string) ([]overseerr.SearchResult, error)
	SubmitRequest(ctx context.Context, p overseerr.RequestParams) (bool, error)
	Seasons(ctx context.Context, tmdbID int) ([]int, error)
	Users(ctx context.Context) ([]overseerr.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	Logout(ctx context.Context, cookie string) error
}

// Commands 普通用户命令：授权、搜索和提交请求。
// 口令输入是跨消息的对话状态，进程内存即可，重启后重新输入。
// 配置引用被热重载协程并发替换，读取走 config()。
type Commands struct {
	msg Messenger
	api Searcher
	log *logger.Logger

	cfgMu sync.RWMutex
	cfg   *config.Config

	mu       sync.Mutex
	awaiting map[int64]int // telegram user ID -> 已失败的口令次数
}

// NewCommands 创建命令处理器
func NewCommands(msg Messenger, api Searcher, cfg *config.Config, log *logger.Logger) *Commands {
	return &Commands{
		msg:      msg,
		api:      api,
		cfg:      cfg,
		log:      log,
		awaiting: make(map[int64]int),
	}
}

// UpdateConfig 配置热更新后替换引用
func (c *Commands) UpdateConfig(cfg *config.Config) {
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
}

func (c *Commands) config() *config.Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// Start 处理 /start：登记用户并视配置进入口令授权流程
func (c *Commands) Start(ctx context.Context, m *telegram.Message, user *model.BotUser) {
	chatID := m.Chat.ID
	threadID := m.MessageThreadID

	if user == nil {
		user = &model.BotUser{
			TelegramUserID: m.From.ID,
			Username:       m.From.Username,
			DisplayName:    strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
		}
		if err := database.DB.Create(user).Error; err != nil {
			c.log.Error("登记用户失败", zap.Int64("telegram_user_id", m.From.ID), zap.Error(err))
			_, _ = c.msg.SendMessage(ctx, chatID, threadID,
				"❌ *Something went wrong.* Please try again later.", nil)
			return
		}
		c.log.Infof("新用户 %d (%s) 已登记", m.From.ID, m.From.Username)
	}

	if user.IsAuthorized {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"👋 *Welcome back!*\n\nUse /check <title> to search for movies and TV shows.", nil)
		return
	}

	if c.config().Bot.PasswordHash == "" {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"🔒 *Access pending.*\n\nAn administrator needs to authorize your account before you can use this bot.", nil)
		return
	}

	c.mu.Lock()
	c.awaiting[m.From.ID] = 0
	c.mu.Unlock()
	_, _ = c.msg.SendMessage(ctx, chatID, threadID,
		"🔑 *Access password required.*\n\nPlease reply with the access password to continue.", nil)
}

// TryPassword 消费一条可能是口令的文本。返回是否消费了这条消息。
func (c *Commands) TryPassword(ctx context.Context, m *telegram.Message, user *model.BotUser) bool {
	c.mu.Lock()
	tries, waiting := c.awaiting[m.From.ID]
	c.mu.Unlock()
	if !waiting || user == nil {
		return false
	}

	chatID := m.Chat.ID
	threadID := m.MessageThreadID

	if utils.VerifyPassword(m.Text, c.config().Bot.PasswordHash) {
		user.IsAuthorized = true
		if err := database.DB.Save(user).Error; err != nil {
			c.log.Error("保存授权状态失败", zap.Int64("telegram_user_id", m.From.ID), zap.Error(err))
			_, _ = c.msg.SendMessage(ctx, chatID, threadID,
				"❌ *Something went wrong.* Please try again later.", nil)
			return true
		}
		c.mu.Lock()
		delete(c.awaiting, m.From.ID)
		c.mu.Unlock()
		c.log.Infof("用户 %d 通过口令授权", m.From.ID)
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"✅ *Access granted!*\n\nUse /check <title> to search for movies and TV shows.", nil)
		return true
	}

	tries++
	if tries >= maxAuthTries {
		c.mu.Lock()
		delete(c.awaiting, m.From.ID)
		c.mu.Unlock()
		c.log.Warnf("用户 %d 口令连续失败 %d 次", m.From.ID, tries)
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"🚫 *Too many failed attempts.*\n\nUse /start to try again.", nil)
		return true
	}
	c.mu.Lock()
	c.awaiting[m.From.ID] = tries
	c.mu.Unlock()
	_, _ = c.msg.SendMessage(ctx, chatID, threadID,
		fmt.Sprintf("❌ *Wrong password.* %d attempt(s) remaining.", maxAuthTries-tries), nil)
	return true
}

// Help 处理 /help
func (c *Commands) Help(ctx context.Context, m *telegram.Message, isAdmin bool) {
	text := "🎬 *Available commands*\n\n" +
		"/check <title> - search for a movie or TV show\n" +
		"/start - register and authorize\n" +
		"/help - show this message"
	if c.config().Bot.Mode == "normal" {
		text += "\n/login <email> <password> - sign in to Overseerr\n/logout - end your Overseerr session"
	}
	if isAdmin {
		text += "\n\n*Admin*\n/pending - review pending requests"
	}
	_, _ = c.msg.SendMessage(ctx, m.Chat.ID, m.MessageThreadID, text, nil)
}

// Login 处理 /login（Normal 模式）：用邮箱密码换取 Overseerr 会话
func (c *Commands) Login(ctx context.Context, m *telegram.Message, args []string) {
	chatID := m.Chat.ID
	threadID := m.MessageThreadID

	if c.config().Bot.Mode != "normal" {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"ℹ️ *Login not needed.* Requests are submitted on your behalf in this mode.", nil)
		return
	}
	if m.Chat.Type != "private" {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"🔒 *Please use /login in a private chat.* Never share credentials in a group.", nil)
		return
	}
	if len(args) != 2 {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"Usage: /login <email> <password>", nil)
		return
	}

	cookie, err := c.api.Login(ctx, args[0], args[1])
	if err != nil {
		userMsg, fields := overseerr.Classify(err)
		c.log.Error("Overseerr 登录失败", append(fields, zap.Int64("telegram_user_id", m.From.ID))...)
		_, _ = c.msg.SendMessage(ctx, chatID, threadID, userMsg, nil)
		return
	}

	sess := model.UserSession{TelegramUserID: m.From.ID, Cookie: cookie, Email: args[0]}
	err = database.DB.Where("telegram_user_id = ?", m.From.ID).
		Assign(model.UserSession{Cookie: cookie, Email: args[0]}).
		FirstOrCreate(&sess).Error
	if err != nil {
		c.log.Error("保存会话失败", zap.Int64("telegram_user_id", m.From.ID), zap.Error(err))
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"❌ *Something went wrong.* Please try again later.", nil)
		return
	}

	// Telegram 聊天记录里留着明文密码，提示用户删掉
	_, _ = c.msg.SendMessage(ctx, chatID, threadID,
		"✅ *Signed in to Overseerr.*\n\nYour requests will now be made with your own account. You may want to delete the message containing your password.", nil)
}

// Logout 处理 /logout：注销 Overseerr 会话并删除本地记录
func (c *Commands) Logout(ctx context.Context, m *telegram.Message) {
	chatID := m.Chat.ID
	threadID := m.MessageThreadID

	var sess model.UserSession
	if err := database.DB.Where("telegram_user_id = ?", m.From.ID).First(&sess).Error; err != nil {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID, "ℹ️ *No active session.*", nil)
		return
	}

	// 远端注销失败不阻止本地清理
	if err := c.api.Logout(ctx, sess.Cookie); err != nil {
		c.log.Warn("Overseerr 注销失败", zap.Int64("telegram_user_id", m.From.ID), zap.Error(err))
	}
	database.DB.Delete(&sess)
	_, _ = c.msg.SendMessage(ctx, chatID, threadID, "👋 *Signed out of Overseerr.*", nil)
}

// Check 处理 /check：搜索媒体并附上可用性与请求按钮
func (c *Commands) Check(ctx context.Context, m *telegram.Message, query string) {
	chatID := m.Chat.ID
	threadID := m.MessageThreadID

	if query == "" {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			"Usage: /check <title>\n\nExample: /check The Matrix", nil)
		return
	}

	results, err := c.api.Search(ctx, query)
	if err != nil {
		userMsg, fields := overseerr.Classify(err)
		c.log.Error("搜索失败", append(fields, zap.String("query", query))...)
		_, _ = c.msg.SendMessage(ctx, chatID, threadID, userMsg, nil)
		return
	}
	if len(results) == 0 {
		_, _ = c.msg.SendMessage(ctx, chatID, threadID,
			fmt.Sprintf("🔍 *No results found for* \"%s\"\n\nTry a different title or check the spelling.", query), nil)
		return
	}
	if len(results) > maxSearchHits {
		results = results[:maxSearchHits]
	}

	for _, r := range results {
		caption := searchCaption(r)
		markup := requestButtons(r)

		if r.PosterURL != "" {
			if _, err := c.msg.SendPhoto(ctx, chatID, threadID, r.PosterURL, caption, markup); err == nil {
				continue
			}
		}
		if _, err := c.msg.SendMessage(ctx, chatID, threadID, caption, markup); err != nil {
			c.log.Error("发送搜索结果失败", zap.Int("tmdb_id", r.TmdbID), zap.Error(err))
		}
	}
}

// searchCaption 搜索结果的说明文本，含 HD 与 4K 的可用性
func searchCaption(r overseerr.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", mediaEmoji(r.MediaType), r.Title)
	if r.Year != "" {
		fmt.Fprintf(&b, " (%s)", r.Year)
	}
	fmt.Fprintf(&b, "\n📂 *Type:* %s", mediaTypeDisplay(r.MediaType))
	fmt.Fprintf(&b, "\n🎞️ *HD:* %s", overseerr.InterpretStatus(r.StatusHD))
	fmt.Fprintf(&b, "\n💎 *4K:* %s", overseerr.InterpretStatus(r.Status4K))
	if r.Overview != "" {
		fmt.Fprintf(&b, "\n\n📖 %s", truncate(r.Overview, 200))
	}
	return b.String()
}

// requestButtons 按可用性生成请求按钮，都不可请求时返回 nil
func requestButtons(r overseerr.SearchResult) *telegram.InlineKeyboardMarkup {
	var row []telegram.InlineKeyboardButton
	if overseerr.CanRequest(r.StatusHD) {
		row = append(row, telegram.InlineKeyboardButton{
			Text:         "📥 Request HD",
			CallbackData: fmt.Sprintf("%s%s_%d", cbRequestHD, r.MediaType, r.TmdbID),
		})
	}
	if overseerr.CanRequest(r.Status4K) {
		row = append(row, telegram.InlineKeyboardButton{
			Text:         "💎 Request 4K",
			CallbackData: fmt.Sprintf("%s%s_%d", cbRequest4K, r.MediaType, r.TmdbID),
		})
	}
	if len(row) == 0 {
		return nil
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
}

// HandleCallback 分派搜索请求、选季与身份选择回调，返回是否已处理
func (c *Commands) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery, user *model.BotUser) bool {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbRequest4K):
		c.submit(ctx, cb, user, strings.TrimPrefix(data, cbRequest4K), true)
	case strings.HasPrefix(data, cbRequestHD):
		c.submit(ctx, cb, user, strings.TrimPrefix(data, cbRequestHD), false)
	case strings.HasPrefix(data, cbSeason):
		c.handleSeason(ctx, cb, user, strings.TrimPrefix(data, cbSeason))
	case strings.HasPrefix(data, cbSelectUser):
		c.selectUser(ctx, cb, user, strings.TrimPrefix(data, cbSelectUser))
	default:
		return false
	}
	return true
}

// submit 处理请求按钮。电影直接提交，剧集先弹选季器。
func (c *Commands) submit(ctx context.Context, cb *telegram.CallbackQuery, user *model.BotUser, suffix string, is4K bool) {
	mediaType, tmdbID, ok := splitRequestData(suffix)
	if !ok {
		_ = c.msg.AnswerCallback(ctx, cb.ID, "❌ Invalid request", true)
		return
	}

	if mediaType == "tv" {
		c.promptSeasons(ctx, cb, user, tmdbID, is4K)
		return
	}
	c.submitRequest(ctx, cb, user, overseerr.RequestParams{
		TmdbID: tmdbID, MediaType: mediaType, Is4K: is4K,
	})
}

// promptSeasons 剧集请求前弹出选季器。
// 拿不到季列表或只有一季时退回整剧请求，不阻塞用户。
func (c *Commands) promptSeasons(ctx context.Context, cb *telegram.CallbackQuery, user *model.BotUser, tmdbID int, is4K bool) {
	all := overseerr.RequestParams{TmdbID: tmdbID, MediaType: "tv", Is4K: is4K}

	seasons, err := c.api.Seasons(ctx, tmdbID)
	if err != nil || len(seasons) <= 1 {
		if err != nil {
			c.log.Warn("获取季列表失败，按整剧提交", zap.Int("tmdb_id", tmdbID), zap.Error(err))
		}
		c.submitRequest(ctx, cb, user, all)
		return
	}

	quality := "hd"
	if is4K {
		quality = "4k"
	}
	rows := [][]telegram.InlineKeyboardButton{{
		{Text: "📥 All seasons", CallbackData: fmt.Sprintf("%s%s_%d_all", cbSeason, quality, tmdbID)},
	}}
	row := []telegram.InlineKeyboardButton{}
	for _, n := range seasons {
		row = append(row, telegram.InlineKeyboardButton{
			Text:         fmt.Sprintf("S%d", n),
			CallbackData: fmt.Sprintf("%s%s_%d_%d", cbSeason, quality, tmdbID, n),
		})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	_, _ = c.msg.SendMessage(ctx, cb.Message.Chat.ID, cb.Message.MessageThreadID,
		"📺 *Which season(s) would you like to request?*",
		&telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
	_ = c.msg.AnswerCallback(ctx, cb.ID, "", false)
}

// handleSeason 处理选季回调，suffix 形如 <hd|4k>_<tmdbID>_<all|N>
func (c *Commands) handleSeason(ctx context.Context, cb *telegram.CallbackQuery, user *model.BotUser, suffix string) {
	parts := strings.SplitN(suffix, "_", 3)
	if len(parts) != 3 || (parts[0] != "hd" && parts[0] != "4k") {
		_ = c.msg.AnswerCallback(ctx, cb.ID, "❌ Invalid request", true)
		return
	}
	tmdbID, err := strconv.Atoi(parts[1])
	if err != nil || tmdbID <= 0 {
		_ = c.msg.AnswerCallback(ctx, cb.ID, "❌ Invalid request", true)
		return
	}

	params := overseerr.RequestParams{TmdbID: tmdbID, MediaType: "tv", Is4K: parts[0] == "4k"}
	if parts[2] != "all" {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n <= 0 {
			_ = c.msg.AnswerCallback(ctx, cb.ID, "❌ Invalid request", true)
			return
		}
		params.Seasons = []int{n}
	}

	// 选完就把选季器收掉
	_ = c.msg.DeleteMessage(ctx, cb.Message.Chat.ID, cb.Message.MessageID)
	c.submitRequest(ctx, cb, user, params)
}

// submitRequest 提交媒体请求，身份按运行模式决定：
// normal 用用户自己的会话 Cookie，api 用 API Key 代指定用户请求，
// shared 用 API Key 以机器人身份请求。
func (c *Commands) submitRequest(ctx context.Context, cb *telegram.CallbackQuery, user *model.BotUser, params overseerr.RequestParams) {
	chatID := cb.Message.Chat.ID

	switch c.config().Bot.Mode {
	case "normal":
		var sess model.UserSession
		if err := database.DB.Where("telegram_user_id = ?", cb.From.ID).First(&sess).Error; err != nil {
			_ = c.msg.AnswerCallback(ctx, cb.ID, "🔑 Use /login first", true)
			return
		}
		params.Cookie = sess.Cookie
	case "api":
		if user == nil || user.OverseerrUserID == 0 {
			c.promptUserSelection(ctx, chatID, cb.Message.MessageThreadID)
			_ = c.msg.AnswerCallback(ctx, cb.ID, "👤 Pick your Overseerr user first", true)
			return
		}
		params.UserID = user.OverseerrUserID
	}

	already, err := c.api.SubmitRequest(ctx, params)
	if err != nil {
		userMsg, fields := overseerr.Classify(err)
		c.log.Error("提交请求失败",
			append(fields, zap.Int("tmdb_id", params.TmdbID), zap.String("media_type", params.MediaType))...)
		_, _ = c.msg.SendMessage(ctx, chatID, cb.Message.MessageThreadID, userMsg, nil)
		_ = c.msg.AnswerCallback(ctx, cb.ID, "❌ Request failed", true)
		return
	}

	if already {
		_ = c.msg.AnswerCallback(ctx, cb.ID, "ℹ️ Already requested", false)
		_, _ = c.msg.SendMessage(ctx, chatID, cb.Message.MessageThreadID,
			"ℹ️ *Already requested.*\n\nThis title has already been requested and is waiting to be processed.", nil)
		return
	}

	what := "HD"
	if params.Is4K {
		what = "4K"
	}
	if len(params.Seasons) == 1 {
		what = fmt.Sprintf("%s, Season %d", what, params.Seasons[0])
	}
	c.log.Infof("用户 %d 提交了 %s 请求 (tmdb %d, %s)", cb.From.ID, params.MediaType, params.TmdbID, what)
	_ = c.msg.AnswerCallback(ctx, cb.ID, "✅ Request submitted!", false)
	_, _ = c.msg.SendMessage(ctx, chatID, cb.Message.MessageThreadID,
		fmt.Sprintf("✅ *Request submitted!* (%s)\n\nYou'll be able to watch it once it has been approved and downloaded.", what), nil)
}

// promptUserSelection API 模式下让用户认领 Overseerr 身份
func (c *Commands) promptUserSelection(ctx context.Context, chatID int64, threadID int) {
	users, err := c.api.Users(ctx)
	if err != nil {
		userMsg, fields := overseerr.Classify(err)
		c.log.Error("获取用户列表失败", fields...)
		_, _ = c.msg.SendMessage(ctx, chatID, threadID, userMsg, nil)
		return
	}

	rows := make([][]telegram.InlineKeyboardButton, 0, len(users))
	for _, u := range users {
		label := u.DisplayName
		if label == "" {
			label = u.Email
		}
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         label,
			CallbackData: cbSelectUser + strconv.Itoa(u.ID),
		}})
	}
	_, _ = c.msg.SendMessage(ctx, chatID, threadID,
		"👤 *Who are you in Overseerr?*\n\nPick your user so requests are made under your name:",
		&telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
}

// selectUser 记录用户认领的 Overseerr 身份
func (c *Commands) selectUser(ctx context.Context, cb *telegram.CallbackQuery, user *model.BotUser, rawID string) {
	if user == nil {
		_ = c.msg.AnswerCallback(ctx, cb.ID, "🔒 Use /start first", true)
		return
	}
	overseerrID, err := strconv.Atoi(rawID)
	if err != nil || overseerrID <= 0 {
		_ = c.msg.AnswerCallback(ctx, cb.ID, "❌ Invalid selection", true)
		return
	}

	user.OverseerrUserID = overseerrID
	user.OverseerrUserName = ""
	if users, err := c.api.Users(ctx); err == nil {
		for _, u := range users {
			if u.ID == overseerrID {
				user.OverseerrUserName = u.DisplayName
				if user.OverseerrUserName == "" {
					user.OverseerrUserName = u.Email
				}
				break
			}
		}
	}
	if err := database.DB.Save(user).Error; err != nil {
		c.log.Error("保存身份选择失败", zap.Int64("telegram_user_id", user.TelegramUserID), zap.Error(err))
		_ = c.msg.AnswerCallback(ctx, cb.ID, "❌ Something went wrong", true)
		return
	}

	_ = c.msg.DeleteMessage(ctx, cb.Message.Chat.ID, cb.Message.MessageID)
	_ = c.msg.AnswerCallback(ctx, cb.ID, "✅ Linked! Tap the request button again", false)
}

// splitRequestData 解析 "<movie|tv>_<tmdbID>" 形式的回调数据尾部
func splitRequestData(suffix string) (mediaType string, tmdbID int, ok bool) {
	parts := strings.SplitN(suffix, "_", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return "", 0, false
	}
	if parts[0] != "movie" && parts[0] != "tv" {
		return "", 0, false
	}
	return parts[0], id, true
}
