// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/config"
	"github.com/Corphon/StoryWriter/internal/di"
	"github.com/Corphon/StoryWriter/internal/services"
	"github.com/Corphon/StoryWriter/internal/utils"
)

// SetupRouter 配置HTTP路由，所有依赖从容器取
func SetupRouter(container *di.Container) (*gin.Engine, error) {
	cfg, err := di.Resolve[*config.Config](container, "config")
	if err != nil {
		return nil, err
	}
	logger, err := di.Resolve[*zap.Logger](container, "logger")
	if err != nil {
		return nil, err
	}
	metrics, err := di.Resolve[*utils.MetricsCollector](container, "metrics")
	if err != nil {
		return nil, err
	}
	authService, err := di.Resolve[*services.AuthService](container, "auth")
	if err != nil {
		return nil, fmt.Errorf("认证服务未正确初始化: %w", err)
	}
	sessionService, err := di.Resolve[*services.SessionService](container, "session")
	if err != nil {
		return nil, fmt.Errorf("会话服务未正确初始化: %w", err)
	}
	gatewayService, err := di.Resolve[*services.GatewayService](container, "gateway")
	if err != nil {
		return nil, fmt.Errorf("网关服务未正确初始化: %w", err)
	}
	dashboardService, err := di.Resolve[*services.DashboardService](container, "dashboard")
	if err != nil {
		return nil, fmt.Errorf("面板服务未正确初始化: %w", err)
	}
	authenticator, err := di.Resolve[*Authenticator](container, "authenticator")
	if err != nil {
		return nil, err
	}
	wsHandler, err := di.Resolve[*WebSocketHandler](container, "websocket")
	if err != nil {
		return nil, err
	}

	handler := NewHandler(authService, sessionService, gatewayService, dashboardService, authenticator, logger)
	handler.Streams = wsHandler

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(RecoveryMiddleware(logger))
	r.Use(RequestIDMiddleware())
	r.Use(AccessLogMiddleware(logger, metrics))
	r.Use(corsMiddleware())
	r.Use(RateLimitMiddleware(NewRateLimiter(cfg.RateLimitPerMinute), ClientIPKey))

	// WebSocket 支持
	r.GET("/ws/session", wsHandler.SessionStream)

	api := r.Group("/api")
	{
		api.GET("/health", handler.HealthCheck)

		// ===============================
		// 认证
		// ===============================
		api.POST("/auth", handler.Login)
		api.POST("/auth/logout", authenticator.RequireSession(), handler.Logout)

		// ===============================
		// Dify 网关
		// ===============================
		api.POST("/dify-chat", handler.DifyChat)

		// ===============================
		// 写作会话
		// ===============================
		sessionGroup := api.Group("/session", authenticator.RequireSession())
		{
			sessionGroup.GET("", handler.GetSession)
			sessionGroup.POST("/start", handler.StartStory)
			sessionGroup.POST("/character", handler.SubmitCharacter)
			sessionGroup.POST("/plot", handler.SubmitPlot)
			sessionGroup.POST("/structure", handler.SubmitStructure)
			sessionGroup.POST("/story", handler.SubmitStory)
			sessionGroup.POST("/edit", handler.EditStage)
			sessionGroup.POST("/back", handler.GoBack)
			sessionGroup.POST("/reset", handler.ResetStory)
			sessionGroup.POST("/language", handler.SetLanguage)
		}

		// ===============================
		// 教师面板
		// ===============================
		dashboardGroup := api.Group("/dashboard", authenticator.RequireSession(), authenticator.RequireTeacher())
		{
			dashboardGroup.GET("/students", handler.DashboardStudents)
			dashboardGroup.GET("/logs", handler.DashboardLogs)
			dashboardGroup.GET("/metrics", handler.DashboardMetrics)
		}
	}

	return r, nil
}
