package overseerr

import (
	"go.uber.org/zap"
)

// 面向用户的错误提示。只暴露类别，不泄漏地址、密钥或响应体。
const (
	MsgTimeout    = "⏱️ *Connection timeout.* The server is taking too long to respond. Please try again later."
	MsgConnection = "🌐 *Connection failed.* Unable to reach the Overseerr server. Please check your connection."
	MsgAuthFailed = "🔐 *Authentication failed.* Invalid API key or session expired."
	MsgForbidden  = "🚫 *Access denied.* You don't have permission for this action."
	MsgNotFound   = "❓ *Not found.* The requested item could not be found."
	MsgServer     = "⚠️ *Server error.* The Overseerr server encountered an internal error."
	MsgUnexpected = "❌ *Unexpected error occurred.* Please try again later."
)

// Classify 把任意错误映射成用户提示和日志字段。
// 技术细节只进日志，用户文案固定为上面的几类。
func Classify(err error) (string, []zap.Field) {
	fields := []zap.Field{zap.Error(err)}

	apiErr, ok := AsAPIError(err)
	if !ok {
		return MsgUnexpected, fields
	}

	fields = append(fields,
		zap.String("kind", string(apiErr.Kind)),
		zap.Int("status_code", apiErr.StatusCode))

	switch apiErr.Kind {
	case KindTimeout:
		return MsgTimeout, fields
	case KindConnection:
		return MsgConnection, fields
	case KindAuth:
		if apiErr.StatusCode == 403 {
			return MsgForbidden, fields
		}
		return MsgAuthFailed, fields
	case KindNotFound:
		return MsgNotFound, fields
	case KindServer:
		return MsgServer, fields
	default:
		return MsgUnexpected, fields
	}
}
