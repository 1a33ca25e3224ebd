package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"seerr-relay/app/config"
	"seerr-relay/app/logger"

	"go.uber.org/zap"
	"resty.dev/v3"
)

// apiBase 测试时指向本地服务器
var apiBase = "https://api.telegram.org"

// Bot Telegram Bot API 客户端。消息 ID 对上层是不透明标识，
// 审批流程只负责记录与回放它们。
type Bot struct {
	http *resty.Client
	log  *logger.Logger
}

// New 创建 Bot API 客户端
func New(cfg config.TelegramConfig, log *logger.Logger) *Bot {
	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("%s/bot%s", apiBase, cfg.Token))

	return &Bot{
		http: client,
		log:  log,
	}
}

// invoke 调用一个 Bot API 方法并解析 result
func (b *Bot) invoke(ctx context.Context, method string, params map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 65*time.Second)
	defer cancel()

	resp, err := b.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s 调用失败: %w", method, err)
	}

	// 自己解正文，不依赖响应 Content-Type
	var envelope apiResponse
	if err := json.Unmarshal(resp.Bytes(), &envelope); err != nil {
		if resp.StatusCode() != 200 {
			return fmt.Errorf("telegram %s 返回错误: %s (状态码 %d)", method, resp.String(), resp.StatusCode())
		}
		return fmt.Errorf("telegram %s 响应解析失败: %w", method, err)
	}

	if resp.StatusCode() != 200 || !envelope.OK {
		desc := envelope.Description
		if desc == "" {
			desc = resp.String()
		}
		return fmt.Errorf("telegram %s 返回错误: %s (状态码 %d)", method, desc, resp.StatusCode())
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s 响应解析失败: %w", method, err)
		}
	}
	return nil
}

// SendMessage 发送 Markdown 文本消息，返回消息 ID
func (b *Bot) SendMessage(ctx context.Context, chatID int64, threadID int, text string, markup *InlineKeyboardMarkup) (int, error) {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if threadID != 0 {
		params["message_thread_id"] = threadID
	}
	if markup != nil {
		params["reply_markup"] = markup
	}

	var msg Message
	if err := b.invoke(ctx, "sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendPhoto 按 URL 发送图片消息（海报），返回消息 ID
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, threadID int, photoURL, caption string, markup *InlineKeyboardMarkup) (int, error) {
	params := map[string]any{
		"chat_id":    chatID,
		"photo":      photoURL,
		"caption":    caption,
		"parse_mode": "Markdown",
	}
	if threadID != 0 {
		params["message_thread_id"] = threadID
	}
	if markup != nil {
		params["reply_markup"] = markup
	}

	var msg Message
	if err := b.invoke(ctx, "sendPhoto", params, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessageText 原地替换消息文本
func (b *Bot) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	return b.invoke(ctx, "editMessageText", params, nil)
}

// DeleteMessage 删除消息。消息可能已被手动删除，调用方按尽力而为处理。
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return b.invoke(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// AnswerCallback 响应按钮点击（toast 或弹窗）
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	params := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		params["text"] = text
	}
	if showAlert {
		params["show_alert"] = true
	}
	return b.invoke(ctx, "answerCallbackQuery", params, nil)
}

// GetUpdates 长轮询拉取更新
func (b *Bot) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	params := map[string]any{
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset != 0 {
		params["offset"] = offset
	}

	var updates []Update
	if err := b.invoke(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		b.log.Debug("收到更新", zap.Int("count", len(updates)),
			zap.String("first_id", strconv.FormatInt(updates[0].UpdateID, 10)))
	}
	return updates, nil
}
