// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 会话相关错误
	ErrorSessionNotFound   = "SESSION_NOT_FOUND"
	ErrorInvalidTransition = "INVALID_TRANSITION"
	ErrorTokenInvalid      = "TOKEN_INVALID"
)

// 请求上下文中的键
const (
	ContextKeyRequestID = "request_id"
	ContextKeySessionID = "session_id"
	ContextKeyIdentity  = "identity"
)
