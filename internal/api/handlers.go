// internal/api/handlers.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/llm"
	"github.com/Corphon/StoryWriter/internal/services"
)

// Handler 处理API请求
type Handler struct {
	AuthService      *services.AuthService      // 账号认证
	SessionService   *services.SessionService   // 会话与阶段状态机
	GatewayService   *services.GatewayService   // Dify 网关
	DashboardService *services.DashboardService // 教师面板
	Authenticator    *Authenticator
	Streams          *WebSocketHandler // 可为空
	Response         *ResponseHelper

	logger    *zap.Logger
	startedAt time.Time
}

// NewHandler 创建API处理器
func NewHandler(
	authService *services.AuthService,
	sessionService *services.SessionService,
	gatewayService *services.GatewayService,
	dashboardService *services.DashboardService,
	authenticator *Authenticator,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		AuthService:      authService,
		SessionService:   sessionService,
		GatewayService:   gatewayService,
		DashboardService: dashboardService,
		Authenticator:    authenticator,
		Response:         NewResponseHelper(),
		logger:           logger.Named("api"),
		startedAt:        time.Now(),
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	streams := 0
	if h.Streams != nil {
		streams = h.Streams.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
		"dify_configured": h.GatewayService.Configured(),
		"providers":       llm.ListProviders(),
		"ws_connections":  streams,
		"timestamp":       time.Now(),
	})
}
