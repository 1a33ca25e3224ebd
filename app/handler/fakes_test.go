package handler

import (
	"context"
	"fmt"
	"testing"

	"seerr-relay/app/config"
	"seerr-relay/app/database"
	"seerr-relay/app/logger"
	"seerr-relay/app/model"
	"seerr-relay/app/overseerr"
	"seerr-relay/app/telegram"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

// setupTestDB 把全局数据库指向内存库
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.BotUser{}, &model.UserSession{}, &model.TrackedRequest{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
}

// sentMessage 一次发送或编辑的记录
type sentMessage struct {
	MessageID int
	Text      string
	PhotoURL  string
	Markup    *telegram.InlineKeyboardMarkup
}

// fakeMessenger 记录所有收发操作的假信使
type fakeMessenger struct {
	nextID     int
	Sent       []sentMessage
	Edited     map[int]string
	Deleted    []int
	Toasts     []string
	FailPhotos bool // 模拟发图失败
	FailDelete map[int]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		nextID:     1000,
		Edited:     make(map[int]string),
		FailDelete: make(map[int]bool),
	}
}

func (f *fakeMessenger) SendMessage(ctx context.Context, chatID int64, threadID int, text string, markup *telegram.InlineKeyboardMarkup) (int, error) {
	f.nextID++
	f.Sent = append(f.Sent, sentMessage{MessageID: f.nextID, Text: text, Markup: markup})
	return f.nextID, nil
}

func (f *fakeMessenger) SendPhoto(ctx context.Context, chatID int64, threadID int, photoURL, caption string, markup *telegram.InlineKeyboardMarkup) (int, error) {
	if f.FailPhotos {
		return 0, fmt.Errorf("photo rejected")
	}
	f.nextID++
	f.Sent = append(f.Sent, sentMessage{MessageID: f.nextID, Text: caption, PhotoURL: photoURL, Markup: markup})
	return f.nextID, nil
}

func (f *fakeMessenger) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *telegram.InlineKeyboardMarkup) error {
	f.Edited[messageID] = text
	return nil
}

func (f *fakeMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if f.FailDelete[messageID] {
		return fmt.Errorf("message to delete not found")
	}
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *fakeMessenger) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	f.Toasts = append(f.Toasts, text)
	return nil
}

// deleteCount 某条消息被删除的次数
func (f *fakeMessenger) deleteCount(messageID int) int {
	n := 0
	for _, id := range f.Deleted {
		if id == messageID {
			n++
		}
	}
	return n
}

// fakeRequests 可配置返回值的假 Overseerr 服务
type fakeRequests struct {
	Items  []overseerr.EnrichedMedia
	Total  int
	Failed int
	Err    error

	ApproveErr  error
	DeclineErr  error
	ApproveIDs  []int
	DeclineIDs  []int
	DetailsByID map[int]*overseerr.MediaRequest
}

func (f *fakeRequests) PendingRequestsEnriched(ctx context.Context, page, pageSize int) ([]overseerr.EnrichedMedia, int, int, error) {
	if f.Err != nil {
		return nil, 0, 0, f.Err
	}
	return f.Items, f.Total, f.Failed, nil
}

func (f *fakeRequests) RequestDetails(ctx context.Context, requestID int) (*overseerr.MediaRequest, error) {
	if d, ok := f.DetailsByID[requestID]; ok {
		return d, nil
	}
	return nil, overseerr.NewStatusError(404, "")
}

func (f *fakeRequests) Enrich(ctx context.Context, req overseerr.MediaRequest) overseerr.EnrichedMedia {
	return overseerr.EnrichedMedia{MediaRequest: req}
}

func (f *fakeRequests) Approve(ctx context.Context, requestID int) error {
	f.ApproveIDs = append(f.ApproveIDs, requestID)
	return f.ApproveErr
}

func (f *fakeRequests) Decline(ctx context.Context, requestID int, reason string) error {
	f.DeclineIDs = append(f.DeclineIDs, requestID)
	return f.DeclineErr
}

// enrichedItem 构造一条测试用的已补充请求
func enrichedItem(id int, title string, degraded bool) overseerr.EnrichedMedia {
	e := overseerr.EnrichedMedia{Degraded: degraded}
	e.RequestID = id
	e.MediaType = "movie"
	e.Title = title
	e.Year = "2024"
	e.Quality = "HD"
	e.Requester = overseerr.Requester{DisplayName: "alice", Username: "alice"}
	return e
}

// callback 构造一次按钮点击
func callback(data string, messageID int, chatID int64) *telegram.CallbackQuery {
	return &telegram.CallbackQuery{
		ID:   "cb1",
		From: telegram.User{ID: 1},
		Data: data,
		Message: &telegram.Message{
			MessageID: messageID,
			Chat:      telegram.Chat{ID: chatID, Type: "private"},
		},
	}
}
