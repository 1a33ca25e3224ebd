package handler

import (
	"testing"

	"seerr-relay/app/config"
	"seerr-relay/app/model"
)

func testGuard(groupMode bool) *Guard {
	return NewGuard(&config.Config{
		Bot: config.BotConfig{
			GroupMode:       groupMode,
			PrimaryChatID:   -100123,
			PrimaryThreadID: 7,
		},
	})
}

func TestCheckAccess(t *testing.T) {
	g := testGuard(false)

	tests := []struct {
		name string
		user *model.BotUser
		want Decision
	}{
		{"未注册用户", nil, DenyNotAuthorized},
		{"未授权用户", &model.BotUser{}, DenyNotAuthorized},
		{"已授权用户", &model.BotUser{IsAuthorized: true}, Allow},
		{"被拉黑的授权用户", &model.BotUser{IsAuthorized: true, IsBlocked: true}, DenyBlocked},
	}
	for _, tt := range tests {
		if got := g.Check(tt.user, 1, 0); got != tt.want {
			t.Errorf("%s: 期望 %v, 得到 %v", tt.name, tt.want, got)
		}
	}
}

func TestCheckGroupMode(t *testing.T) {
	g := testGuard(true)
	user := &model.BotUser{IsAuthorized: true}

	if got := g.Check(user, -100123, 7); got != Allow {
		t.Errorf("主群主话题应放行, 得到 %v", got)
	}
	if got := g.Check(user, -100999, 7); got != DenyWrongChat {
		t.Errorf("其他群应拒绝, 得到 %v", got)
	}
	if got := g.Check(user, -100123, 8); got != DenyWrongChat {
		t.Errorf("其他话题应拒绝, 得到 %v", got)
	}
	// 私聊不受群组限制
	if got := g.Check(user, 555, 0); got != Allow {
		t.Errorf("私聊应放行, 得到 %v", got)
	}
}

func TestCheckAdmin(t *testing.T) {
	g := testGuard(false)
	admin := &model.BotUser{IsAuthorized: true, IsAdmin: true}

	tests := []struct {
		name    string
		user    *model.BotUser
		private bool
		want    Decision
	}{
		{"管理员私聊", admin, true, Allow},
		{"管理员在群里", admin, false, DenyWrongChat},
		{"普通用户", &model.BotUser{IsAuthorized: true}, true, DenyNotAdmin},
		{"未授权", &model.BotUser{IsAdmin: true}, true, DenyNotAuthorized},
		{"被拉黑管理员", &model.BotUser{IsAuthorized: true, IsAdmin: true, IsBlocked: true}, true, DenyBlocked},
		{"未注册", nil, true, DenyNotAuthorized},
	}
	for _, tt := range tests {
		if got := g.CheckAdmin(tt.user, tt.private); got != tt.want {
			t.Errorf("%s: 期望 %v, 得到 %v", tt.name, tt.want, got)
		}
	}
}

// 热重载协程替换配置时，正在处理消息的 worker 同时在读
func TestCheckConcurrentWithUpdateConfig(t *testing.T) {
	g := testGuard(true)
	user := &model.BotUser{IsAuthorized: true}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			g.UpdateConfig(&config.Config{
				Bot: config.BotConfig{GroupMode: i%2 == 0, PrimaryChatID: -100123, PrimaryThreadID: 7},
			})
		}
	}()

	for i := 0; i < 200; i++ {
		// 群组开关翻转中，两种判定都合法，只要不撞数据竞争
		if got := g.Check(user, -100999, 7); got != Allow && got != DenyWrongChat {
			t.Fatalf("意外判定 %v", got)
		}
	}
	<-done
}

func TestDenyMessages(t *testing.T) {
	for _, d := range []Decision{DenyBlocked, DenyNotAuthorized, DenyNotAdmin, DenyWrongChat} {
		if DenyMessage(d) == "" {
			t.Errorf("判定 %v 缺少提示文案", d)
		}
	}
	if DenyMessage(Allow) != "" {
		t.Error("Allow 不应有提示文案")
	}
}
