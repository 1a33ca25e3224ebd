package overseerr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind 错误分类
type Kind string

const (
	KindTimeout    Kind = "timeout"    // 传输层超时
	KindConnection Kind = "connection" // 连接失败、DNS 解析失败
	KindAuth       Kind = "auth"       // 401 / 403
	KindNotFound   Kind = "not_found"  // 404
	KindServer     Kind = "server"     // 5xx
	KindUnknown    Kind = "unknown"
)

// APIError Overseerr 调用的统一错误类型。
// StatusCode 为 0 表示传输层错误，此时 Body 为空。
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Body       string
	cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("overseerr: %s (状态码 %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("overseerr: %s", e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Retryable 判断该错误是否允许重试。
// 401/403/404 重试没有意义，必须立即反馈给调用方。
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindNotFound:
		return false
	}
	return true
}

// NewStatusError 根据 HTTP 状态码构造分类错误
func NewStatusError(statusCode int, body string) *APIError {
	e := &APIError{
		StatusCode: statusCode,
		Body:       body,
	}
	switch {
	case statusCode == 401:
		e.Kind = KindAuth
		e.Message = "认证失败"
	case statusCode == 403:
		e.Kind = KindAuth
		e.Message = "无访问权限"
	case statusCode == 404:
		e.Kind = KindNotFound
		e.Message = "资源不存在"
	case statusCode >= 500:
		e.Kind = KindServer
		e.Message = fmt.Sprintf("服务端错误 %d", statusCode)
	default:
		e.Kind = KindUnknown
		e.Message = fmt.Sprintf("请求失败 %d", statusCode)
	}
	return e
}

// NewTransportError 把传输层错误归类为超时或连接失败
func NewTransportError(err error) *APIError {
	e := &APIError{cause: err, Message: err.Error()}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
	default:
		// DNS 失败、连接拒绝等一律按连接失败处理
		e.Kind = KindConnection
	}
	return e
}

// AsAPIError 从错误链中取出 APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
