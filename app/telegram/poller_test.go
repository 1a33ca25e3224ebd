package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"seerr-relay/app/config"
	"seerr-relay/app/logger"
)

func testLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

// recordingHandler 按聊天记录消息到达顺序
type recordingHandler struct {
	mu    sync.Mutex
	seen  map[int64][]string
	delay time.Duration
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg *Message) {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.seen[msg.Chat.ID] = append(h.seen[msg.Chat.ID], msg.Text)
	h.mu.Unlock()
}

func (h *recordingHandler) HandleCallback(ctx context.Context, cb *CallbackQuery) {}

func (h *recordingHandler) order(chatID int64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen[chatID]...)
}

func messageUpdate(updateID int64, chatID int64, text string) Update {
	return Update{
		UpdateID: updateID,
		Message: &Message{
			MessageID: int(updateID),
			Chat:      Chat{ID: chatID, Type: "private"},
			From:      &User{ID: chatID},
			Text:      text,
		},
	}
}

// newTestPoller 起一个只在首个 getUpdates 返回 updates 的假 Bot API
func newTestPoller(t *testing.T, h Handler, updates []Update) (*Poller, *int64) {
	t.Helper()

	var calls int64
	var lastOffset int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		if off, ok := params["offset"].(float64); ok {
			atomic.StoreInt64(&lastOffset, int64(off))
		}

		batch := []Update{}
		if atomic.AddInt64(&calls, 1) == 1 {
			batch = updates
		} else {
			// 后续调用模拟长轮询等待，避免空转
			time.Sleep(20 * time.Millisecond)
		}
		result, _ := json.Marshal(batch)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
	}))
	t.Cleanup(srv.Close)

	prev := apiBase
	apiBase = srv.URL
	t.Cleanup(func() { apiBase = prev })

	bot := New(config.TelegramConfig{Token: "123:test", PollTimeout: 1}, testLogger())
	return NewPoller(bot, h, testLogger(), 1), &lastOffset
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("等待条件超时")
}

func TestPollerSerializesPerChat(t *testing.T) {
	h := &recordingHandler{seen: make(map[int64][]string), delay: 30 * time.Millisecond}
	poller, _ := newTestPoller(t, h, []Update{
		messageUpdate(1, 100, "a1"),
		messageUpdate(2, 200, "b1"),
		messageUpdate(3, 100, "a2"),
		messageUpdate(4, 100, "a3"),
	})

	poller.Start()
	defer poller.Stop()

	waitFor(t, func() bool {
		return len(h.order(100)) == 3 && len(h.order(200)) == 1
	})

	got := h.order(100)
	for i, want := range []string{"a1", "a2", "a3"} {
		if got[i] != want {
			t.Fatalf("聊天 100 顺序错乱: %v", got)
		}
	}
}

func TestPollerAdvancesOffset(t *testing.T) {
	h := &recordingHandler{seen: make(map[int64][]string)}
	poller, lastOffset := newTestPoller(t, h, []Update{
		messageUpdate(7, 100, "x"),
		messageUpdate(9, 100, "y"),
	})

	poller.Start()
	defer poller.Stop()

	// 消费完这批后，下一次 getUpdates 应带最大 update_id + 1
	waitFor(t, func() bool {
		return atomic.LoadInt64(lastOffset) == 10
	})
}

func TestPollerStopTerminates(t *testing.T) {
	h := &recordingHandler{seen: make(map[int64][]string)}
	poller, _ := newTestPoller(t, h, []Update{messageUpdate(1, 100, "a")})

	poller.Start()
	waitFor(t, func() bool { return len(h.order(100)) == 1 })

	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop 未在期限内返回")
	}
}

func TestUpdateChatID(t *testing.T) {
	msg := messageUpdate(1, 42, "x")
	if msg.ChatID() != 42 {
		t.Errorf("消息更新 ChatID = %d", msg.ChatID())
	}

	cb := Update{UpdateID: 2, CallbackQuery: &CallbackQuery{
		Message: &Message{Chat: Chat{ID: 77}},
	}}
	if cb.ChatID() != 77 {
		t.Errorf("回调更新 ChatID = %d", cb.ChatID())
	}

	empty := Update{UpdateID: 3}
	if empty.ChatID() != 0 {
		t.Error("空更新应返回 0")
	}
}

// Stop 时轮询循环可能正在投递新聊天的更新，不能写到已关闭的通道
func TestPollerStopDuringDispatch(t *testing.T) {
	h := &recordingHandler{seen: make(map[int64][]string)}

	var nextID int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 每次都返回一个新聊天的更新，逼 dispatch 不停建 worker
		id := atomic.AddInt64(&nextID, 1)
		batch := []Update{messageUpdate(id, 1000+id, "x")}
		result, _ := json.Marshal(batch)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
	}))
	t.Cleanup(srv.Close)

	prev := apiBase
	apiBase = srv.URL
	t.Cleanup(func() { apiBase = prev })

	bot := New(config.TelegramConfig{Token: "123:test", PollTimeout: 1}, testLogger())
	poller := NewPoller(bot, h, testLogger(), 1)

	poller.Start()
	waitFor(t, func() bool { return atomic.LoadInt64(&nextID) >= 3 })

	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop 未在期限内返回")
	}
}
