// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation    ErrorType = "validation_error"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeError         ErrorType = "processing_error"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeForbidden     ErrorType = "forbidden"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeConfiguration ErrorType = "configuration_error"
	ErrorTypeUpstream      ErrorType = "upstream_error"
	ErrorTypeTransition    ErrorType = "invalid_transition"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码

	// 上游服务返回的状态，仅 ErrorTypeUpstream 使用
	UpstreamStatus     int
	UpstreamStatusText string
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

// NewForbiddenError 创建禁止错误
func NewForbiddenError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewConfigurationError 创建配置缺失错误
func NewConfigurationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConfiguration, message, originalError)
}

// NewTransitionError 创建非法阶段跳转错误
func NewTransitionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTransition, message, originalError)
}

// NewUpstreamError 创建上游服务错误，保留上游状态码和状态文本
func NewUpstreamError(status int, statusText string, originalError error) *AppError {
	e := NewAppError(ErrorTypeUpstream, fmt.Sprintf("upstream returned %d %s", status, statusText), originalError)
	e.UpstreamStatus = status
	e.UpstreamStatusText = statusText
	return e
}

// As 提取错误链中的 AppError
func As(err error) (*AppError, bool) {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError, true
	}
	return nil, false
}

// IsType 检查错误链中是否存在指定类型的 AppError
func IsType(err error, errType ErrorType) bool {
	appError, ok := As(err)
	return ok && appError.Type == errType
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsUnauthorizedError 检查是否为未授权错误
func IsUnauthorizedError(err error) bool {
	return IsType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError 检查是否为禁止错误
func IsForbiddenError(err error) bool {
	return IsType(err, ErrorTypeForbidden)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsTimeoutError 检查是否为超时错误
func IsTimeoutError(err error) bool {
	return IsType(err, ErrorTypeTimeout)
}

// IsConfigurationError 检查是否为配置错误
func IsConfigurationError(err error) bool {
	return IsType(err, ErrorTypeConfiguration)
}

// IsUpstreamError 检查是否为上游错误
func IsUpstreamError(err error) bool {
	return IsType(err, ErrorTypeUpstream)
}

// IsTransitionError 检查是否为非法跳转
func IsTransitionError(err error) bool {
	return IsType(err, ErrorTypeTransition)
}

// HTTPStatus 将错误映射为 HTTP 状态码，未知错误一律 500
func HTTPStatus(err error) int {
	appError, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch appError.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeConflict, ErrorTypeTransition:
		return http.StatusConflict
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeUpstream:
		if appError.UpstreamStatus >= 100 && appError.UpstreamStatus <= 599 {
			return appError.UpstreamStatus
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeForbidden:
		return "FORBIDDEN"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeConfiguration:
		return "CONFIGURATION_ERROR"
	case ErrorTypeUpstream:
		return "UPSTREAM_ERROR"
	case ErrorTypeTransition:
		return "INVALID_TRANSITION"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:               appError.Type,
			Message:            fmt.Sprintf("%s: %s", message, appError.Message),
			Err:                appError,
			Code:               appError.Code,
			UpstreamStatus:     appError.UpstreamStatus,
			UpstreamStatusText: appError.UpstreamStatusText,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
