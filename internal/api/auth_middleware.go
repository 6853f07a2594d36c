// internal/api/auth_middleware.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/auth"
	"github.com/Corphon/StoryWriter/internal/config"
	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/services"
)

// TokenExpiration 登录令牌有效期
const TokenExpiration = 24 * time.Hour

// devSecret 调试模式下的固定密钥，重启后令牌仍然有效
const devSecret = "dev_auth_key_for_testing_purposes_only_"

// NewTokenConfig 根据配置生成令牌签名参数
func NewTokenConfig(cfg *config.Config, logger *zap.Logger) (*auth.TokenConfig, error) {
	var secret []byte
	switch {
	case cfg.AuthSecret != "":
		secret = []byte(cfg.AuthSecret)
	case cfg.DebugMode:
		secret = []byte(devSecret)
		logger.Warn("AUTH_SECRET_KEY not set, using fixed development key")
	default:
		key, err := auth.GenerateSecureKey(32)
		if err != nil {
			return nil, apperrors.NewConfigurationError("generate auth secret", err)
		}
		secret = key
		logger.Warn("AUTH_SECRET_KEY not set, tokens will not survive a restart")
	}

	return &auth.TokenConfig{
		Secret:     auth.NormalizeSecret(secret),
		Expiration: TokenExpiration,
	}, nil
}

// Authenticator 校验 Bearer 令牌并确认会话仍然存在
type Authenticator struct {
	tokens   *auth.TokenConfig
	sessions *services.SessionService
	response *ResponseHelper
}

// NewAuthenticator 创建认证中间件的持有者
func NewAuthenticator(tokens *auth.TokenConfig, sessions *services.SessionService) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		sessions: sessions,
		response: NewResponseHelper(),
	}
}

// Issue 为会话签发令牌
func (a *Authenticator) Issue(sessionID string, identity models.Identity) (string, error) {
	return auth.GenerateToken(sessionID, identity, a.tokens)
}

// Verify 解析令牌并检查会话是否已注销
func (a *Authenticator) Verify(raw string) (*auth.Token, error) {
	token, err := auth.ParseToken(raw, a.tokens)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid token", err)
	}
	if _, err := a.sessions.Get(token.SessionID); err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewUnauthorizedError("session ended", err)
		}
		return nil, err
	}
	return token, nil
}

// RequireSession 要求请求携带有效令牌
func (a *Authenticator) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			a.response.Error(c, http.StatusUnauthorized, ErrorUnauthorized, "missing bearer token")
			return
		}

		token, err := a.Verify(raw)
		if err != nil {
			if appErr, ok := apperrors.As(err); ok && appErr.Type == apperrors.ErrorTypeUnauthorized {
				a.response.Error(c, http.StatusUnauthorized, ErrorTokenInvalid, appErr.Message)
				return
			}
			a.response.FromError(c, err)
			return
		}

		c.Set(ContextKeySessionID, token.SessionID)
		c.Set(ContextKeyIdentity, token.Identity())
		c.Next()
	}
}

// RequireTeacher 只允许教师角色访问，需放在 RequireSession 之后
func (a *Authenticator) RequireTeacher() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok || !identity.IsTeacher() {
			a.response.Forbidden(c, "teacher role required")
			return
		}
		c.Next()
	}
}

// IdentityFrom 取出 RequireSession 写入的身份
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	value, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return models.Identity{}, false
	}
	identity, ok := value.(models.Identity)
	return identity, ok
}

// bearerToken 从 Authorization 头读取令牌，websocket 握手时允许 query 参数
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if c.IsWebsocket() {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}
