package handler

import (
	"context"

	"seerr-relay/app/overseerr"
	"seerr-relay/app/telegram"
)

// Messenger 聊天平台的最小收发面。审批流程只依赖这几个操作，
// 消息 ID 全程作为不透明标识记录和回放。
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, threadID int, text string, markup *telegram.InlineKeyboardMarkup) (int, error)
	SendPhoto(ctx context.Context, chatID int64, threadID int, photoURL, caption string, markup *telegram.InlineKeyboardMarkup) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *telegram.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
}

// RequestService 审批流程用到的 Overseerr 操作子集
type RequestService interface {
	PendingRequestsEnriched(ctx context.Context, page, pageSize int) (items []overseerr.EnrichedMedia, total int, failed int, err error)
	RequestDetails(ctx context.Context, requestID int) (*overseerr.MediaRequest, error)
	Enrich(ctx context.Context, req overseerr.MediaRequest) overseerr.EnrichedMedia
	Approve(ctx context.Context, requestID int) error
	Decline(ctx context.Context, requestID int, reason string) error
}
