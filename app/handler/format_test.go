package handler

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"seerr-relay/app/overseerr"
)

func TestRequestCaption(t *testing.T) {
	item := enrichedItem(42, "Fight Club", false)
	item.Rating = 8.4
	item.Runtime = 139
	item.Genres = []string{"Drama", "Thriller", "Crime", "Mystery"}
	item.Overview = strings.Repeat("x", 300)
	item.CreatedAt = time.Now().Add(-2 * time.Hour)

	caption := requestCaption(item)

	for _, want := range []string{
		"🍿 *Fight Club (2024)*",
		"@alice",
		"Request ID: 42",
		"2 hours ago",
		"Rating: 8.4",
		"Runtime: 139 min",
		"Drama, Thriller, Crime", // 最多 3 个类型
	} {
		if !strings.Contains(caption, want) {
			t.Errorf("正文缺少 %q:\n%s", want, caption)
		}
	}
	if strings.Contains(caption, "Mystery") {
		t.Error("类型应截断到 3 个")
	}
	if strings.Contains(caption, strings.Repeat("x", 250)) {
		t.Error("简介应截断到 200 字符")
	}
	if strings.Contains(caption, "Unable to load") {
		t.Error("正常条目不应带退化提示")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 200); got != "short" {
		t.Errorf("预算内不应截断, 得到 %q", got)
	}
	long := truncate(strings.Repeat("x", 300), 200)
	if len(long) > 200 || !strings.HasSuffix(long, "...") {
		t.Errorf("ASCII 截断不对: len=%d %q", len(long), long)
	}

	// 截断点落在多字节字符中间时要退到 rune 边界
	mixed := strings.Repeat("a", 196) + "电影简介"
	got := truncate(mixed, 200)
	if !utf8.ValidString(got) {
		t.Fatalf("截断产出非法 UTF-8: %q", got)
	}
	if len(got) > 200 || !strings.HasSuffix(got, "...") {
		t.Errorf("多字节截断不对: len=%d %q", len(got), got)
	}
}

func TestRequestCaptionDegraded(t *testing.T) {
	item := enrichedItem(1, overseerr.FallbackTitle, true)
	caption := requestCaption(item)
	if !strings.Contains(caption, "Unable to load enhanced details") {
		t.Errorf("退化条目应带提示:\n%s", caption)
	}
}

func TestMediaEmoji(t *testing.T) {
	tests := map[string]string{
		"movie": "🍿",
		"tv":    "📺",
		"anime": "⛩️",
		"other": "❓",
	}
	for in, want := range tests {
		if got := mediaEmoji(in); got != want {
			t.Errorf("mediaEmoji(%q) = %q, 期望 %q", in, got, want)
		}
	}
}

func TestRequesterDisplay(t *testing.T) {
	if got := requesterDisplay(overseerr.Requester{Username: "bob", DisplayName: "Bob X"}); got != "@bob" {
		t.Errorf("应优先用 @username, 得到 %q", got)
	}
	if got := requesterDisplay(overseerr.Requester{DisplayName: "Bob X"}); got != "Bob X" {
		t.Errorf("无用户名时用显示名, 得到 %q", got)
	}
	if got := requesterDisplay(overseerr.Requester{}); got != "Unknown User" {
		t.Errorf("全空时用兜底, 得到 %q", got)
	}
}

func TestFormatRequestAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{30 * time.Second, "Just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{time.Hour, "1 hour ago"},
		{48 * time.Hour, "2 days ago"},
	}
	for _, tt := range tests {
		if got := formatRequestAge(time.Now().Add(-tt.age)); got != tt.want {
			t.Errorf("%v 前: 期望 %q, 得到 %q", tt.age, tt.want, got)
		}
	}
	if got := formatRequestAge(time.Time{}); got != "Unknown time" {
		t.Errorf("零值时间: 得到 %q", got)
	}
}
