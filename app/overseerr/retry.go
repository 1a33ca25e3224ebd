package overseerr

import (
	"context"
	"time"

	"seerr-relay/app/logger"

	"go.uber.org/zap"
)

// Policy 退避重试策略。
// 第 k 次失败后休眠 BaseDelay × BackoffFactor^(k-1)。
// 注意最坏耗时约等于各次尝试超时与退避延迟之和，调用方设置
// 用户可见的等待提示时要按这个上界估计。
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
}

// Do 执行 op，失败时按策略重试。
// 401/403/404 一类不可重试错误立即返回；重试耗尽后原样返回最后一次的错误。
// 休眠期间响应 ctx 取消。
func (p Policy) Do(ctx context.Context, log *logger.Logger, name string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	delay := p.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		last = op()
		if last == nil {
			return nil
		}

		if apiErr, ok := AsAPIError(last); ok && !apiErr.Retryable() {
			return last
		}

		if attempt < attempts {
			log.Warn("操作失败，准备重试",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("delay", delay),
				zap.Error(last))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return last
			}
			delay = time.Duration(float64(delay) * p.BackoffFactor)
		}
	}

	log.Error("重试耗尽",
		zap.String("operation", name),
		zap.Int("attempts", attempts),
		zap.Error(last))
	return last
}
