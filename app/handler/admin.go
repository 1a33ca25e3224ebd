package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"seerr-relay/app/database"
	"seerr-relay/app/logger"
	"seerr-relay/app/model"
	"seerr-relay/app/overseerr"
	"seerr-relay/app/session"
	"seerr-relay/app/telegram"

	"go.uber.org/zap"
)

// 审批流程的回调数据前缀
const (
	cbApprove        = "admin_approve_"
	cbReject         = "admin_reject_"
	cbConfirmApprove = "admin_confirm_approve_"
	cbConfirmReject  = "admin_confirm_reject_"
	cbCancelConfirm  = "admin_cancel_"
	cbRefresh        = "admin_refresh_requests"
	cbCancelAll      = "admin_cancel_requests"
	cbPendingAll     = "admin_pending_all"
)

// AdminFlow 管理员审批流程：列表渲染、确认对话、执行与清理。
// 渲染出的消息 ID 记录在会话里，刷新和取消按这组 ID 原子替换或删除。
type AdminFlow struct {
	msg      Messenger
	api      RequestService
	sessions *session.Manager
	log      *logger.Logger
	pageSize int
}

// NewAdminFlow 创建审批流程
func NewAdminFlow(msg Messenger, api RequestService, sessions *session.Manager, log *logger.Logger) *AdminFlow {
	return &AdminFlow{
		msg:      msg,
		api:      api,
		sessions: sessions,
		log:      log,
		pageSize: overseerr.DefaultPageSize,
	}
}

// ShowPending 处理 /pending 命令：渲染第一页待审批请求
func (f *AdminFlow) ShowPending(ctx context.Context, chatID int64, threadID int) {
	loadingID, err := f.msg.SendMessage(ctx, chatID, threadID,
		"🔄 *Fetching pending requests...* This may take a moment.", nil)
	if err != nil {
		f.log.Error("发送加载提示失败", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}

	items, total, failed, err := f.api.PendingRequestsEnriched(ctx, 1, f.pageSize)
	if err != nil {
		userMsg, fields := overseerr.Classify(err)
		f.log.Error("拉取待审批请求失败", fields...)
		_ = f.msg.EditMessageText(ctx, chatID, loadingID,
			"❌ *API Request Failed*\n\n"+userMsg, nil)
		return
	}

	// 加载提示不进列表跟踪，渲染前直接删掉
	_ = f.msg.DeleteMessage(ctx, chatID, loadingID)

	f.renderList(ctx, chatID, threadID, items, total, failed)
}

// renderList 渲染整组列表消息并整体替换会话跟踪的消息 ID
func (f *AdminFlow) renderList(ctx context.Context, chatID int64, threadID int, items []overseerr.EnrichedMedia, total, failed int) {
	sess := f.sessions.Get(chatID, threadID)

	if len(items) == 0 {
		id, err := f.msg.SendMessage(ctx, chatID, threadID,
			"🎬 *No pending requests found*\n\nAll caught up! No requests need approval at the moment.", nil)
		if err != nil {
			f.log.Error("发送空列表提示失败", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		sess.SetListing([]int{id})
		return
	}

	messageIDs := make([]int, 0, len(items)+2)

	header := fmt.Sprintf("🎬 *Admin Review Required*\n\n*%d pending request(s)* need your approval:", total)
	if failed > 0 {
		header += fmt.Sprintf("\n⚠️ _%d requests had loading errors_", failed)
	}
	if total > len(items) {
		header += fmt.Sprintf("\n📄 _Showing first %d of %d requests_", len(items), total)
	}
	if id, err := f.msg.SendMessage(ctx, chatID, threadID, header, nil); err == nil {
		messageIDs = append(messageIDs, id)
	} else {
		f.log.Error("发送列表头失败", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	for _, item := range items {
		markup := &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{{
				{Text: "✅ Approve", CallbackData: cbApprove + strconv.Itoa(item.RequestID)},
				{Text: "❌ Reject", CallbackData: cbReject + strconv.Itoa(item.RequestID)},
			}},
		}

		caption := requestCaption(item)
		var id int
		var err error
		if item.PosterURL != "" {
			id, err = f.msg.SendPhoto(ctx, chatID, threadID, item.PosterURL, caption, markup)
			if err != nil {
				// 海报发送失败退回文本消息，该条请求不能因此消失
				id, err = f.msg.SendMessage(ctx, chatID, threadID,
					"📷 _No poster available_\n\n"+caption, markup)
			}
		} else {
			id, err = f.msg.SendMessage(ctx, chatID, threadID, caption, markup)
		}
		if err != nil {
			f.log.Error("发送请求条目失败",
				zap.Int("request_id", item.RequestID), zap.Error(err))
			continue
		}
		messageIDs = append(messageIDs, id)
	}

	footer := "✨ Review complete! Use refresh to update the list or cancel to clear the chat."
	footerMarkup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "🔄 Refresh List", CallbackData: cbRefresh},
			{Text: "❌ Cancel", CallbackData: cbCancelAll},
		}},
	}
	if id, err := f.msg.SendMessage(ctx, chatID, threadID, footer, footerMarkup); err == nil {
		messageIDs = append(messageIDs, id)
	} else {
		f.log.Error("发送列表尾失败", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	sess.SetListing(messageIDs)
}

// HandleCallback 分派审批相关的按钮回调，返回是否已处理
func (f *AdminFlow) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) bool {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbConfirmApprove):
		f.executeAction(ctx, cb, session.ActionApprove, parseTrailingID(data, cbConfirmApprove))
	case strings.HasPrefix(data, cbConfirmReject):
		f.executeAction(ctx, cb, session.ActionReject, parseTrailingID(data, cbConfirmReject))
	case strings.HasPrefix(data, cbApprove):
		f.showConfirmation(ctx, cb, session.ActionApprove, parseTrailingID(data, cbApprove))
	case strings.HasPrefix(data, cbReject):
		f.showConfirmation(ctx, cb, session.ActionReject, parseTrailingID(data, cbReject))
	case data == cbRefresh || data == cbPendingAll:
		f.refresh(ctx, cb)
	case data == cbCancelAll:
		f.cancelAll(ctx, cb)
	case strings.HasPrefix(data, cbCancelConfirm):
		f.cancelConfirmation(ctx, cb)
	default:
		return false
	}
	return true
}

// showConfirmation 打开二次确认对话框，此时还不改动任何请求
func (f *AdminFlow) showConfirmation(ctx context.Context, cb *telegram.CallbackQuery, action session.Action, requestID int) {
	chatID := cb.Message.Chat.ID
	threadID := cb.Message.MessageThreadID
	sess := f.sessions.Get(chatID, threadID)

	if sess.Pending() != nil {
		_ = f.msg.AnswerCallback(ctx, cb.ID, "⚠️ Finish the open confirmation first", true)
		return
	}

	details, err := f.api.RequestDetails(ctx, requestID)
	if err != nil {
		f.log.Error("获取请求详情失败", zap.Int("request_id", requestID), zap.Error(err))
		_ = f.msg.AnswerCallback(ctx, cb.ID, "❌ Request not found", true)
		return
	}
	enriched := f.api.Enrich(ctx, *details)

	var title, verb, button string
	if action == session.ActionApprove {
		title = "Confirm Approval"
		verb = "This will immediately approve the request in Overseerr."
		button = "✅ Yes, Approve"
	} else {
		title = "Confirm Rejection"
		verb = "This will decline the request in Overseerr."
		button = "❌ Yes, Reject"
	}

	text := fmt.Sprintf("⚠️ *%s*\n\n%s *%s* (%s)\n👤 *Requested by:* %s\n🆔 *Request ID:* %d\n\n%s\n\nAre you sure you want to proceed?",
		title, mediaEmoji(enriched.MediaType), enriched.Title, enriched.Quality,
		requesterDisplay(enriched.Requester), requestID, verb)

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: button, CallbackData: confirmCallbackData(action, requestID)},
			{Text: "⚪ Cancel", CallbackData: cbCancelConfirm + strconv.Itoa(requestID)},
		}},
	}

	// 海报消息不能编辑成文本，删掉原条目再发确认框
	_ = f.msg.DeleteMessage(ctx, chatID, cb.Message.MessageID)

	confirmID, err := f.msg.SendMessage(ctx, chatID, threadID, text, markup)
	if err != nil {
		f.log.Error("发送确认对话框失败", zap.Int("request_id", requestID), zap.Error(err))
		_ = f.msg.AnswerCallback(ctx, cb.ID, "❌ Error showing confirmation", true)
		return
	}

	sess.StartConfirm(requestID, action, confirmID)
	_ = f.msg.AnswerCallback(ctx, cb.ID, "", false)
}

func confirmCallbackData(action session.Action, requestID int) string {
	if action == session.ActionApprove {
		return cbConfirmApprove + strconv.Itoa(requestID)
	}
	return cbConfirmReject + strconv.Itoa(requestID)
}

// executeAction 执行审批动作。成败都要如实反馈，管理员必须知道
// 副作用是否发生；失败后不自动重试，需要重新发起。
func (f *AdminFlow) executeAction(ctx context.Context, cb *telegram.CallbackQuery, action session.Action, requestID int) {
	chatID := cb.Message.Chat.ID
	threadID := cb.Message.MessageThreadID
	sess := f.sessions.Get(chatID, threadID)

	var err error
	if action == session.ActionApprove {
		err = f.api.Approve(ctx, requestID)
	} else {
		err = f.api.Decline(ctx, requestID, "")
	}

	sess.CompleteConfirm()

	if err != nil {
		userMsg, fields := overseerr.Classify(err)
		f.log.Error("审批动作执行失败",
			append(fields, zap.Int("request_id", requestID), zap.String("action", string(action)))...)
		_ = f.msg.EditMessageText(ctx, chatID, cb.Message.MessageID,
			fmt.Sprintf("❌ *Action Failed*\n\n%s\n\nRequest ID: #%d", userMsg, requestID), nil)
		_ = f.msg.AnswerCallback(ctx, cb.ID, "❌ Action failed", true)
		return
	}

	var text, toast string
	if action == session.ActionApprove {
		text = fmt.Sprintf("✅ *Request Approved Successfully!*\n\nThe request has been approved in Overseerr and will be processed shortly.\n\nRequest ID: #%d", requestID)
		toast = "✅ Request approved!"
	} else {
		text = fmt.Sprintf("❌ *Request Rejected Successfully*\n\nThe request has been declined in Overseerr.\n\nRequest ID: #%d", requestID)
		toast = "❌ Request rejected"
	}

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "📋 View Pending Requests", CallbackData: cbPendingAll},
		}},
	}
	_ = f.msg.EditMessageText(ctx, chatID, cb.Message.MessageID, text, markup)
	_ = f.msg.AnswerCallback(ctx, cb.ID, toast, false)
	f.log.Infof("请求 %d 已%s", requestID, actionVerb(action))

	if action == session.ActionApprove {
		f.trackApproved(ctx, chatID, requestID)
	}
}

// trackApproved 把批准的请求登记到状态监控，失败只记日志
func (f *AdminFlow) trackApproved(ctx context.Context, chatID int64, requestID int) {
	title := ""
	if details, err := f.api.RequestDetails(ctx, requestID); err == nil {
		title = details.Title
	}

	tracked := model.TrackedRequest{
		RequestID:  requestID,
		ChatID:     chatID,
		Title:      title,
		LastStatus: model.RequestStatusApproved,
	}
	if err := database.DB.Where("request_id = ?", requestID).
		Assign(model.TrackedRequest{ChatID: chatID, LastStatus: model.RequestStatusApproved}).
		FirstOrCreate(&tracked).Error; err != nil {
		f.log.Warn("登记状态监控失败", zap.Int("request_id", requestID), zap.Error(err))
	}
}

func actionVerb(action session.Action) string {
	if action == session.ActionApprove {
		return "批准"
	}
	return "拒绝"
}

// cancelConfirmation 关闭确认对话框，列表其余消息不动
func (f *AdminFlow) cancelConfirmation(ctx context.Context, cb *telegram.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	sess := f.sessions.Get(chatID, cb.Message.MessageThreadID)

	if confirmID, ok := sess.CancelConfirm(); ok {
		_ = f.msg.DeleteMessage(ctx, chatID, confirmID)
	} else {
		// 会话丢失时退化为删除被点击的消息
		_ = f.msg.DeleteMessage(ctx, chatID, cb.Message.MessageID)
	}

	_, _ = f.msg.SendMessage(ctx, chatID, cb.Message.MessageThreadID,
		"⚪ *Action cancelled.* No changes made.", nil)
	_ = f.msg.AnswerCallback(ctx, cb.ID, "❌ Action cancelled", false)
}

// refresh 重新拉取并整组替换：先删旧消息再渲染新列表
func (f *AdminFlow) refresh(ctx context.Context, cb *telegram.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	threadID := cb.Message.MessageThreadID
	sess := f.sessions.Get(chatID, threadID)

	items, total, failed, err := f.api.PendingRequestsEnriched(ctx, 1, f.pageSize)
	if err != nil {
		userMsg, fields := overseerr.Classify(err)
		f.log.Error("刷新待审批列表失败", fields...)
		_ = f.msg.EditMessageText(ctx, chatID, cb.Message.MessageID,
			"❌ *API Request Failed*\n\n"+userMsg, nil)
		_ = f.msg.AnswerCallback(ctx, cb.ID, "❌ Error refreshing list", true)
		return
	}

	deleted := f.deleteTracked(ctx, chatID, sess, cb.Message.MessageID)

	f.renderList(ctx, chatID, threadID, items, total, failed)

	toast := "🔄 List refreshed"
	if deleted > 0 {
		toast = fmt.Sprintf("🔄 Refreshed - cleared %d old messages", deleted)
	}
	_ = f.msg.AnswerCallback(ctx, cb.ID, toast, false)
}

// cancelAll 删除整组列表消息并结束会话
func (f *AdminFlow) cancelAll(ctx context.Context, cb *telegram.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	threadID := cb.Message.MessageThreadID
	sess := f.sessions.Get(chatID, threadID)

	hadTracked := len(sess.MessageIDs()) > 0
	deleted := f.deleteTracked(ctx, chatID, sess, cb.Message.MessageID)

	var text string
	if hadTracked {
		text = fmt.Sprintf("🗑️ *Chat cleared successfully*\n\nDeleted %d pending request messages.\nUse /pending to view requests again when needed.", deleted)
	} else {
		text = "🗑️ *Pending requests session ended*\n\nThis session has been cancelled.\nUse /pending to view requests again when needed."
	}
	_, _ = f.msg.SendMessage(ctx, chatID, threadID, text, nil)

	toast := "🗑️ Session ended"
	if deleted > 0 {
		toast = fmt.Sprintf("🗑️ Cleared %d messages", deleted)
	}
	_ = f.msg.AnswerCallback(ctx, cb.ID, toast, false)
}

// deleteTracked 尽力删除会话跟踪的全部消息并清空会话。
// 单条删除失败（多半已被删）只计数不中断；会话为空时
// 退化为只删被点击的那条消息。返回成功删除的条数。
func (f *AdminFlow) deleteTracked(ctx context.Context, chatID int64, sess *session.Review, clickedMessageID int) int {
	ids := sess.Clear()
	if len(ids) == 0 {
		_ = f.msg.DeleteMessage(ctx, chatID, clickedMessageID)
		return 0
	}

	deleted := 0
	for _, id := range ids {
		if err := f.msg.DeleteMessage(ctx, chatID, id); err != nil {
			f.log.Debug("删除旧消息失败",
				zap.Int64("chat_id", chatID), zap.Int("message_id", id), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted
}

// parseTrailingID 取出回调数据末尾的请求 ID
func parseTrailingID(data, prefix string) int {
	id, _ := strconv.Atoi(strings.TrimPrefix(data, prefix))
	return id
}
