package handler

import (
	"context"
	"strings"
	"testing"

	"seerr-relay/app/config"
	"seerr-relay/app/database"
	"seerr-relay/app/model"
	"seerr-relay/app/overseerr"
	"seerr-relay/app/telegram"
	"seerr-relay/app/utils"
)

// fakeSearcher 可配置的假搜索与请求提交服务
type fakeSearcher struct {
	Results   []overseerr.SearchResult
	SearchErr error

	Already   bool
	SubmitErr error
	Submitted []overseerr.RequestParams

	SeasonList []int
	SeasonsErr error

	UserList []overseerr.User
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]overseerr.SearchResult, error) {
	return f.Results, f.SearchErr
}

func (f *fakeSearcher) SubmitRequest(ctx context.Context, p overseerr.RequestParams) (bool, error) {
	f.Submitted = append(f.Submitted, p)
	return f.Already, f.SubmitErr
}

func (f *fakeSearcher) Seasons(ctx context.Context, tmdbID int) ([]int, error) {
	return f.SeasonList, f.SeasonsErr
}

func (f *fakeSearcher) Users(ctx context.Context) ([]overseerr.User, error) {
	return f.UserList, nil
}

func (f *fakeSearcher) Login(ctx context.Context, email, password string) (string, error) {
	return "cookie-abc", nil
}

func (f *fakeSearcher) Logout(ctx context.Context, cookie string) error {
	return nil
}

func textMessage(userID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 1,
		Chat:      telegram.Chat{ID: userID, Type: "private"},
		From:      &telegram.User{ID: userID, Username: "alice", FirstName: "Alice"},
		Text:      text,
	}
}

func newTestCommands(t *testing.T, password string) (*Commands, *fakeMessenger, *fakeSearcher) {
	t.Helper()
	setupTestDB(t)

	hash := ""
	if password != "" {
		var err error
		hash, err = utils.HashPassword(password)
		if err != nil {
			t.Fatalf("生成口令哈希失败: %v", err)
		}
	}

	msg := newFakeMessenger()
	api := &fakeSearcher{}
	cfg := &config.Config{Bot: config.BotConfig{Mode: "shared", PasswordHash: hash}}
	return NewCommands(msg, api, cfg, testLogger()), msg, api
}

func TestStartRegistersAndPromptsPassword(t *testing.T) {
	c, msg, _ := newTestCommands(t, "sekret")

	c.Start(context.Background(), textMessage(7, "/start"), nil)

	var user model.BotUser
	if err := database.DB.Where("telegram_user_id = ?", 7).First(&user).Error; err != nil {
		t.Fatalf("/start 应登记用户: %v", err)
	}
	if user.IsAuthorized {
		t.Fatal("新用户不应直接授权")
	}
	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "password") {
		t.Errorf("应提示输入口令: %s", last.Text)
	}
}

func TestPasswordGrantsAccess(t *testing.T) {
	c, msg, _ := newTestCommands(t, "sekret")

	m := textMessage(7, "/start")
	c.Start(context.Background(), m, nil)

	var user model.BotUser
	database.DB.Where("telegram_user_id = ?", 7).First(&user)

	// 错一次再对一次
	if !c.TryPassword(context.Background(), textMessage(7, "wrong"), &user) {
		t.Fatal("等待口令时应消费文本消息")
	}
	if !c.TryPassword(context.Background(), textMessage(7, "sekret"), &user) {
		t.Fatal("正确口令应被消费")
	}

	database.DB.Where("telegram_user_id = ?", 7).First(&user)
	if !user.IsAuthorized {
		t.Fatal("正确口令后应授权")
	}
	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "Access granted") {
		t.Errorf("应提示授权成功: %s", last.Text)
	}

	// 授权完成后普通文本不再被消费
	if c.TryPassword(context.Background(), textMessage(7, "hello"), &user) {
		t.Fatal("授权后不应再消费文本")
	}
}

func TestPasswordLockoutAfterThreeFailures(t *testing.T) {
	c, msg, _ := newTestCommands(t, "sekret")

	c.Start(context.Background(), textMessage(7, "/start"), nil)
	var user model.BotUser
	database.DB.Where("telegram_user_id = ?", 7).First(&user)

	for i := 0; i < 3; i++ {
		c.TryPassword(context.Background(), textMessage(7, "nope"), &user)
	}

	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "Too many failed attempts") {
		t.Errorf("三次失败后应锁定: %s", last.Text)
	}
	// 锁定后输入不再被消费
	if c.TryPassword(context.Background(), textMessage(7, "sekret"), &user) {
		t.Fatal("锁定后应要求重新 /start")
	}
}

func TestCheckNoResults(t *testing.T) {
	c, msg, _ := newTestCommands(t, "")

	c.Check(context.Background(), textMessage(7, "/check nothing"), "nothing")

	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "No results found") {
		t.Errorf("应提示无结果: %s", last.Text)
	}
}

func TestCheckRendersResultsWithButtons(t *testing.T) {
	c, msg, api := newTestCommands(t, "")
	api.Results = []overseerr.SearchResult{
		{TmdbID: 550, MediaType: "movie", Title: "Fight Club", Year: "1999",
			StatusHD: overseerr.MediaStatusUnknown, Status4K: overseerr.MediaStatusAvailable},
	}

	c.Check(context.Background(), textMessage(7, "/check fight club"), "fight club")

	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "Fight Club") {
		t.Fatalf("结果文案不对: %s", last.Text)
	}
	if last.Markup == nil || len(last.Markup.InlineKeyboard[0]) != 1 {
		t.Fatal("HD 可请求且 4K 已可用时应只有一个请求按钮")
	}
	if last.Markup.InlineKeyboard[0][0].CallbackData != "req_movie_550" {
		t.Errorf("回调数据不对: %s", last.Markup.InlineKeyboard[0][0].CallbackData)
	}
}

func TestSubmitSharedMode(t *testing.T) {
	c, msg, api := newTestCommands(t, "")
	user := &model.BotUser{TelegramUserID: 1, IsAuthorized: true}
	database.DB.Create(user)

	handled := c.HandleCallback(context.Background(), callback("req_movie_550", 10, 1), user)
	if !handled {
		t.Fatal("请求回调应被认领")
	}
	if len(api.Submitted) != 1 {
		t.Fatalf("期望提交一次, 实际 %d", len(api.Submitted))
	}
	p := api.Submitted[0]
	if p.TmdbID != 550 || p.MediaType != "movie" || p.Is4K || p.UserID != 0 || p.Cookie != "" {
		t.Errorf("shared 模式参数不对: %+v", p)
	}
	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "Request submitted") {
		t.Errorf("应提示提交成功: %s", last.Text)
	}
}

func TestSubmitAlreadyRequested(t *testing.T) {
	c, msg, api := newTestCommands(t, "")
	api.Already = true
	user := &model.BotUser{TelegramUserID: 1, IsAuthorized: true}
	database.DB.Create(user)

	c.HandleCallback(context.Background(), callback("req4k_tv_100", 10, 1), user)

	if len(api.Submitted) != 1 || !api.Submitted[0].Is4K {
		t.Fatalf("4K 参数不对: %+v", api.Submitted)
	}
	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "Already requested") {
		t.Errorf("202 应提示已请求过: %s", last.Text)
	}
}

func TestSubmitAPIModePromptsUserSelection(t *testing.T) {
	c, msg, api := newTestCommands(t, "")
	c.UpdateConfig(&config.Config{Bot: config.BotConfig{Mode: "api"}})
	api.UserList = []overseerr.User{{ID: 3, DisplayName: "Alice"}}
	user := &model.BotUser{TelegramUserID: 1, IsAuthorized: true}
	database.DB.Create(user)

	c.HandleCallback(context.Background(), callback("req_movie_550", 10, 1), user)

	if len(api.Submitted) != 0 {
		t.Fatal("未选身份时不应提交")
	}
	last := msg.Sent[len(msg.Sent)-1]
	if last.Markup == nil || last.Markup.InlineKeyboard[0][0].CallbackData != "setuser_3" {
		t.Fatalf("应提示选择 Overseerr 用户: %+v", last)
	}

	// 选完身份再点请求按钮就会带上 userId
	c.HandleCallback(context.Background(), callback("setuser_3", 11, 1), user)
	c.HandleCallback(context.Background(), callback("req_movie_550", 10, 1), user)
	if len(api.Submitted) != 1 || api.Submitted[0].UserID != 3 {
		t.Fatalf("api 模式应带 UserID: %+v", api.Submitted)
	}

	// 选定身份时一并落库显示名
	var saved model.BotUser
	database.DB.Where("telegram_user_id = ?", 1).First(&saved)
	if saved.OverseerrUserID != 3 || saved.OverseerrUserName != "Alice" {
		t.Errorf("身份落库不对: %+v", saved)
	}
}

func TestSubmitTVShowsSeasonPicker(t *testing.T) {
	c, msg, api := newTestCommands(t, "")
	api.SeasonList = []int{1, 2, 3}
	user := &model.BotUser{TelegramUserID: 1, IsAuthorized: true}
	database.DB.Create(user)

	c.HandleCallback(context.Background(), callback("req_tv_100", 10, 1), user)

	if len(api.Submitted) != 0 {
		t.Fatal("多季剧集应先弹选季器")
	}
	last := msg.Sent[len(msg.Sent)-1]
	if last.Markup == nil || len(last.Markup.InlineKeyboard) != 2 {
		t.Fatalf("选季器键盘不对: %+v", last.Markup)
	}
	if last.Markup.InlineKeyboard[0][0].CallbackData != "season_hd_100_all" {
		t.Errorf("整剧按钮回调不对: %s", last.Markup.InlineKeyboard[0][0].CallbackData)
	}
	row := last.Markup.InlineKeyboard[1]
	if len(row) != 3 || row[2].CallbackData != "season_hd_100_3" {
		t.Errorf("季按钮不对: %+v", row)
	}
}

func TestSeasonCallbackSubmitsSelection(t *testing.T) {
	c, msg, api := newTestCommands(t, "")
	user := &model.BotUser{TelegramUserID: 1, IsAuthorized: true}
	database.DB.Create(user)

	c.HandleCallback(context.Background(), callback("season_4k_100_2", 10, 1), user)

	if len(api.Submitted) != 1 {
		t.Fatalf("期望提交一次, 实际 %d", len(api.Submitted))
	}
	p := api.Submitted[0]
	if p.TmdbID != 100 || p.MediaType != "tv" || !p.Is4K {
		t.Errorf("选季提交参数不对: %+v", p)
	}
	if len(p.Seasons) != 1 || p.Seasons[0] != 2 {
		t.Errorf("期望 Seasons=[2], 得到 %v", p.Seasons)
	}
	// 选季器消息被收掉
	if len(msg.Deleted) == 0 {
		t.Error("选完后应删除选季器消息")
	}
	last := msg.Sent[len(msg.Sent)-1]
	if !strings.Contains(last.Text, "Season 2") {
		t.Errorf("成功文案应带季号: %s", last.Text)
	}
}

func TestSeasonCallbackAllSeasons(t *testing.T) {
	c, _, api := newTestCommands(t, "")
	user := &model.BotUser{TelegramUserID: 1, IsAuthorized: true}
	database.DB.Create(user)

	c.HandleCallback(context.Background(), callback("season_hd_100_all", 10, 1), user)

	if len(api.Submitted) != 1 {
		t.Fatalf("期望提交一次, 实际 %d", len(api.Submitted))
	}
	p := api.Submitted[0]
	if p.Is4K || len(p.Seasons) != 0 {
		t.Errorf("整剧请求参数不对: %+v", p)
	}
}

func TestSubmitTVSingleSeasonSkipsPicker(t *testing.T) {
	c, _, api := newTestCommands(t, "")
	api.SeasonList = []int{1}
	user := &model.BotUser{TelegramUserID: 1, IsAuthorized: true}
	database.DB.Create(user)

	c.HandleCallback(context.Background(), callback("req_tv_100", 10, 1), user)

	if len(api.Submitted) != 1 || len(api.Submitted[0].Seasons) != 0 {
		t.Fatalf("单季剧集应直接整剧提交: %+v", api.Submitted)
	}
}
