// internal/api/response_helpers.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}
	if len(details) > 0 {
		apiError.Details = details[0]
	}

	c.AbortWithStatusJSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// Unauthorized 401错误响应
func (rh *ResponseHelper) Unauthorized(c *gin.Context, message string) {
	rh.Error(c, http.StatusUnauthorized, ErrorUnauthorized, message)
}

// Forbidden 403错误响应
func (rh *ResponseHelper) Forbidden(c *gin.Context, message string) {
	rh.Error(c, http.StatusForbidden, ErrorForbidden, message)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, message string) {
	rh.Error(c, http.StatusNotFound, ErrorSessionNotFound, message)
}

// InternalError 500错误响应，不向客户端暴露内部细节
func (rh *ResponseHelper) InternalError(c *gin.Context) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, "Internal server error")
}

// FromError 按错误类型选择状态码与错误代码
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	_ = c.Error(err)

	appErr, ok := apperrors.As(err)
	if !ok {
		rh.InternalError(c)
		return
	}

	status := apperrors.HTTPStatus(err)
	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		rh.Error(c, status, ErrorBadRequest, appErr.Message)
	case apperrors.ErrorTypeUnauthorized:
		rh.Error(c, status, ErrorUnauthorized, appErr.Message)
	case apperrors.ErrorTypeForbidden:
		rh.Error(c, status, ErrorForbidden, appErr.Message)
	case apperrors.ErrorTypeNotFound:
		rh.Error(c, status, ErrorSessionNotFound, appErr.Message)
	case apperrors.ErrorTypeTransition:
		rh.Error(c, status, ErrorInvalidTransition, appErr.Message)
	case apperrors.ErrorTypeConflict:
		rh.Error(c, status, ErrorConflict, appErr.Message)
	default:
		rh.InternalError(c)
	}
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
