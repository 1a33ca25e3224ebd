package telegram

import (
	"context"
	"sync"
	"time"

	"seerr-relay/app/logger"

	"go.uber.org/zap"
)

// Handler 事件处理器。Poller 保证同一聊天的事件串行送达：
// 一个事件处理完才会取下一个，处理器内无需对会话状态加锁。
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message)
	HandleCallback(ctx context.Context, cb *CallbackQuery)
}

// Poller getUpdates 长轮询分发器。
// 不同聊天各有一个带缓冲的 worker，互相之间可以并发。
type Poller struct {
	bot         *Bot
	handler     Handler
	log         *logger.Logger
	pollTimeout int

	mu      sync.Mutex
	workers map[int64]chan Update
	stopped bool

	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPoller 创建分发器
func NewPoller(bot *Bot, handler Handler, log *logger.Logger, pollTimeout int) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	return &Poller{
		bot:         bot,
		handler:     handler,
		log:         log,
		pollTimeout: pollTimeout,
		workers:     make(map[int64]chan Update),
		stopChan:    make(chan struct{}),
	}
}

// Start 启动轮询
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.pollLoop(ctx)
	p.log.Info("Telegram 轮询已启动")
}

// Stop 停止轮询并等待所有 worker 退出
func (p *Poller) Stop() {
	close(p.stopChan)
	if p.cancel != nil {
		p.cancel()
	}

	// 先置 stopped 再关 worker 通道，dispatch 不会再碰已关闭的通道
	p.mu.Lock()
	p.stopped = true
	for _, ch := range p.workers {
		close(ch)
	}
	p.workers = make(map[int64]chan Update)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("Telegram 轮询已停止")
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	var offset int64
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		updates, err := p.bot.GetUpdates(ctx, offset, p.pollTimeout)
		if err != nil {
			select {
			case <-p.stopChan:
				return
			default:
			}
			p.log.Warn("拉取更新失败，稍后重试", zap.Error(err))
			select {
			case <-time.After(3 * time.Second):
			case <-p.stopChan:
				return
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			p.dispatch(ctx, update)
		}
	}
}

// dispatch 把更新送进该聊天的 worker，worker 不存在则创建
func (p *Poller) dispatch(ctx context.Context, update Update) {
	chatID := update.ChatID()
	if chatID == 0 {
		return
	}

	// 整段持锁：Stop 关通道与这里的投递互斥，不会写已关闭的通道
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	ch, ok := p.workers[chatID]
	if !ok {
		ch = make(chan Update, 16)
		p.workers[chatID] = ch
		p.wg.Add(1)
		go p.chatWorker(ctx, chatID, ch)
	}

	select {
	case ch <- update:
	default:
		// 单聊天积压过多直接丢弃，旧事件渲染过期视图没有意义
		p.log.Warn("聊天事件队列已满，丢弃更新",
			zap.Int64("chat_id", chatID),
			zap.Int64("update_id", update.UpdateID))
	}
}

// chatWorker 串行处理一个聊天的事件
func (p *Poller) chatWorker(ctx context.Context, chatID int64, ch chan Update) {
	defer p.wg.Done()

	for update := range ch {
		switch {
		case update.Message != nil:
			p.handler.HandleMessage(ctx, update.Message)
		case update.CallbackQuery != nil:
			p.handler.HandleCallback(ctx, update.CallbackQuery)
		}
	}
	p.log.Debug("聊天 worker 退出", zap.Int64("chat_id", chatID))
}
