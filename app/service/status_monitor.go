package service

import (
	"context"
	"fmt"
	"time"

	"seerr-relay/app/config"
	"seerr-relay/app/database"
	"seerr-relay/app/logger"
	"seerr-relay/app/model"
	"seerr-relay/app/overseerr"
	"seerr-relay/app/telegram"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Notifier 状态变化通知的发送面
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, threadID int, text string, markup *telegram.InlineKeyboardMarkup) (int, error)
}

// RequestReader 逐条查询请求当前状态
type RequestReader interface {
	RequestDetails(ctx context.Context, requestID int) (*overseerr.MediaRequest, error)
}

// StatusMonitor 定时轮询已批准请求的状态，变化时通知发起聊天。
// 请求在 Overseerr 侧被删除（404）时停止跟踪。
type StatusMonitor struct {
	cfg  *config.Config
	api  RequestReader
	msg  Notifier
	log  *logger.Logger
	cron *cron.Cron
}

// NewStatusMonitor 创建状态监控
func NewStatusMonitor(cfg *config.Config, api RequestReader, msg Notifier, log *logger.Logger) *StatusMonitor {
	return &StatusMonitor{
		cfg:  cfg,
		api:  api,
		msg:  msg,
		log:  log,
		cron: cron.New(),
	}
}

// Start 启动定时任务
func (s *StatusMonitor) Start() error {
	if !s.cfg.Monitor.Enabled {
		s.log.Info("状态监控未启用")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Monitor.Schedule, s.poll); err != nil {
		return fmt.Errorf("注册状态监控任务失败: %w", err)
	}
	s.cron.Start()
	s.log.Infof("状态监控已启动，调度 %s", s.cfg.Monitor.Schedule)
	return nil
}

// Stop 停止定时任务，等待进行中的一轮结束
func (s *StatusMonitor) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("状态监控已停止")
}

// poll 跑一轮：查出未到终态的跟踪记录逐条核对
func (s *StatusMonitor) poll() {
	var tracked []model.TrackedRequest
	err := database.DB.
		Where("last_status NOT IN ?", []model.RequestStatus{
			model.RequestStatusAvailable,
			model.RequestStatusDeclined,
		}).
		Find(&tracked).Error
	if err != nil {
		s.log.Error("查询跟踪请求失败", zap.Error(err))
		return
	}
	if len(tracked) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for i := range tracked {
		s.checkOne(ctx, &tracked[i])
	}
}

// checkOne 核对单条请求，状态变化时通知并落库
func (s *StatusMonitor) checkOne(ctx context.Context, t *model.TrackedRequest) {
	details, err := s.api.RequestDetails(ctx, t.RequestID)
	if err != nil {
		if apiErr, ok := overseerr.AsAPIError(err); ok && apiErr.Kind == overseerr.KindNotFound {
			s.log.Infof("请求 %d 已在 Overseerr 删除，停止跟踪", t.RequestID)
			database.DB.Delete(t)
			return
		}
		s.log.Warn("查询请求状态失败", zap.Int("request_id", t.RequestID), zap.Error(err))
		return
	}

	current := model.RequestStatus(details.Status)
	if current == t.LastStatus {
		return
	}

	if details.Title != "" {
		t.Title = details.Title
	}
	text := statusText(t, current)
	if _, err := s.msg.SendMessage(ctx, t.ChatID, 0, text, nil); err != nil {
		// 通知失败不更新状态，下一轮重试
		s.log.Warn("发送状态通知失败",
			zap.Int("request_id", t.RequestID), zap.Int64("chat_id", t.ChatID), zap.Error(err))
		return
	}

	now := time.Now()
	t.LastStatus = current
	t.NotifiedAt = &now
	if err := database.DB.Save(t).Error; err != nil {
		s.log.Error("保存跟踪状态失败", zap.Int("request_id", t.RequestID), zap.Error(err))
	}
	s.log.Infof("请求 %d 状态变为 %s，已通知聊天 %d", t.RequestID, current, t.ChatID)
}

// statusText 状态变化的通知文案
func statusText(t *model.TrackedRequest, status model.RequestStatus) string {
	title := t.Title
	if title == "" {
		title = fmt.Sprintf("Request #%d", t.RequestID)
	}

	switch status {
	case model.RequestStatusAvailable:
		return fmt.Sprintf("🎉 *%s is now available!*\n\nGrab the popcorn and enjoy.", title)
	case model.RequestStatusProcessing:
		return fmt.Sprintf("⏳ *%s is being processed.*\n\nDownload in progress, it should be available soon.", title)
	case model.RequestStatusDeclined:
		return fmt.Sprintf("❌ *%s was declined.*", title)
	default:
		return fmt.Sprintf("ℹ️ *%s* status changed to *%s*.", title, status)
	}
}
