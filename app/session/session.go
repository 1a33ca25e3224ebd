package session

import (
	"sync"
)

// State 审批会话状态
type State int

const (
	StateEmpty      State = iota // 无已渲染列表
	StateListing                 // 列表已渲染，消息 ID 被跟踪
	StateConfirming              // 确认对话框打开，等待二次确认
)

// Action 待确认的审批动作
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// PendingAction 打开中的确认对话框。
// 同一会话同一时刻至多一个，防止并发确认同一请求。
type PendingAction struct {
	RequestID        int
	Action           Action
	ConfirmMessageID int // 确认提示消息，取消时只删它
}

// Review 单个聊天的审批会话。只会被该聊天的事件串行访问，
// 事件处理到消息收发之间不会被同聊天的其他事件打断。
type Review struct {
	state      State
	messageIDs []int
	pending    *PendingAction
}

// State 当前状态
func (r *Review) State() State {
	return r.state
}

// MessageIDs 返回跟踪中的消息 ID 副本
func (r *Review) MessageIDs() []int {
	out := make([]int, len(r.messageIDs))
	copy(out, r.messageIDs)
	return out
}

// Pending 当前打开的确认动作，没有则为 nil
func (r *Review) Pending() *PendingAction {
	return r.pending
}

// SetListing 记录一次完整渲染，整组替换旧的消息 ID
func (r *Review) SetListing(messageIDs []int) {
	r.messageIDs = append([]int(nil), messageIDs...)
	r.pending = nil
	r.state = StateListing
}

// StartConfirm 打开确认对话框。已有未决确认时返回 false。
func (r *Review) StartConfirm(requestID int, action Action, confirmMessageID int) bool {
	if r.pending != nil {
		return false
	}
	r.pending = &PendingAction{
		RequestID:        requestID,
		Action:           action,
		ConfirmMessageID: confirmMessageID,
	}
	r.state = StateConfirming
	return true
}

// CancelConfirm 关闭确认对话框返回列表态，列表消息不受影响。
// 返回待删除的确认消息 ID。
func (r *Review) CancelConfirm() (confirmMessageID int, ok bool) {
	if r.pending == nil {
		return 0, false
	}
	id := r.pending.ConfirmMessageID
	r.pending = nil
	if len(r.messageIDs) > 0 {
		r.state = StateListing
	} else {
		r.state = StateEmpty
	}
	return id, true
}

// CompleteConfirm 审批动作已执行（无论成败），脱离确认态。
// 旧列表视为过期，不自动重渲染。
func (r *Review) CompleteConfirm() {
	r.pending = nil
	if len(r.messageIDs) > 0 {
		r.state = StateListing
	} else {
		r.state = StateEmpty
	}
}

// Clear 清空会话回到初始态，返回之前跟踪的消息 ID
func (r *Review) Clear() []int {
	ids := r.messageIDs
	r.messageIDs = nil
	r.pending = nil
	r.state = StateEmpty
	return ids
}

// key 会话键：聊天加可选话题
type key struct {
	ChatID   int64
	ThreadID int
}

// Manager 按聊天维护审批会话。由事件分发器持有并传给处理器，
// 进程重启即丢失，属可接受损失（降级为只删被点击的消息）。
type Manager struct {
	mu       sync.Mutex
	sessions map[key]*Review
}

// NewManager 创建会话管理器
func NewManager() *Manager {
	return &Manager{sessions: make(map[key]*Review)}
}

// Get 取出或创建指定聊天的会话
func (m *Manager) Get(chatID int64, threadID int) *Review {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{ChatID: chatID, ThreadID: threadID}
	if s, ok := m.sessions[k]; ok {
		return s
	}
	s := &Review{}
	m.sessions[k] = s
	return s
}
