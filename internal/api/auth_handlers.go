// internal/api/auth_handlers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/services"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse 登录响应，字段与前端登录页保持一致
type LoginResponse struct {
	Success   bool             `json:"success"`
	User      *models.AuthUser `json:"user,omitempty"`
	Token     string           `json:"token,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Login 认证并创建写作会话
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Error: "Invalid request body"})
		return
	}

	identity, err := h.AuthService.Authenticate(req.Username, req.Password)
	if err != nil {
		switch {
		case apperrors.IsValidationError(err):
			c.JSON(http.StatusBadRequest, LoginResponse{Error: "Username and password are required"})
		case apperrors.IsUnauthorizedError(err):
			c.JSON(http.StatusUnauthorized, LoginResponse{Error: services.ErrInvalidCredentials})
		default:
			h.logger.Error("authenticate failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, LoginResponse{Error: services.MsgInternal})
		}
		return
	}

	view, err := h.SessionService.Create(identity)
	if err != nil {
		h.logger.Error("create session failed", zap.String("username", identity.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, LoginResponse{Error: services.MsgInternal})
		return
	}

	token, err := h.Authenticator.Issue(view.SessionID, identity)
	if err != nil {
		h.logger.Error("issue token failed", zap.Error(err))
		_ = h.SessionService.Destroy(view.SessionID)
		c.JSON(http.StatusInternalServerError, LoginResponse{Error: services.MsgInternal})
		return
	}

	user := identity.ToAuthUser()
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		User:      &user,
		Token:     token,
		SessionID: view.SessionID,
	})
}

// Logout 注销当前会话
func (h *Handler) Logout(c *gin.Context) {
	sessionID := c.GetString(ContextKeySessionID)
	if err := h.SessionService.Destroy(sessionID); err != nil && !apperrors.IsNotFoundError(err) {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"session_id": sessionID}, "logged out")
}
