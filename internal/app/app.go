// internal/app/app.go
package app

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/api"
	"github.com/Corphon/StoryWriter/internal/config"
	"github.com/Corphon/StoryWriter/internal/di"
	"github.com/Corphon/StoryWriter/internal/services"
	"github.com/Corphon/StoryWriter/internal/storage"
	"github.com/Corphon/StoryWriter/internal/utils"
)

// lockCleanupInterval 会话锁回收周期
const lockCleanupInterval = 5 * time.Minute

// App 组装好的应用，持有需要在退出时关闭的资源
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Container *di.Container
	Router    *gin.Engine
	Accounts  *services.AccountsWatcher

	audit     *services.AuditService
	locks     *services.LockManager
	websocket *api.WebSocketHandler
}

// New 按依赖顺序初始化所有服务并注册到容器
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fs, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	authService, err := services.NewAuthServiceFromFile(cfg.AccountsFile, logger)
	if err != nil {
		return nil, err
	}

	metrics := utils.NewMetricsCollector()
	locks := services.NewLockManager(lockCleanupInterval)
	sessionService := services.NewSessionService(fs, locks, logger, metrics)
	auditService := services.NewAuditService(fs, logger, metrics)

	gatewayService, err := services.NewGatewayService(cfg, auditService, logger, metrics)
	if err != nil {
		locks.Close()
		auditService.Close()
		return nil, err
	}
	if !gatewayService.Configured() {
		logger.Warn("Dify credential missing, /api/dify-chat will answer with a configuration error")
	}

	dashboardService := services.NewDashboardService(fs, authService, auditService, metrics, logger)

	tokens, err := api.NewTokenConfig(cfg, logger)
	if err != nil {
		locks.Close()
		auditService.Close()
		return nil, err
	}
	authenticator := api.NewAuthenticator(tokens, sessionService)
	wsHandler := api.NewWebSocketHandler(authenticator, sessionService, logger, metrics)

	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", logger)
	container.Register("metrics", metrics)
	container.Register("storage", fs)
	container.Register("locks", locks)
	container.Register("auth", authService)
	container.Register("session", sessionService)
	container.Register("audit", auditService)
	container.Register("gateway", gatewayService)
	container.Register("dashboard", dashboardService)
	container.Register("authenticator", authenticator)
	container.Register("websocket", wsHandler)

	router, err := api.SetupRouter(container)
	if err != nil {
		locks.Close()
		auditService.Close()
		return nil, fmt.Errorf("设置路由失败: %w", err)
	}

	logger.Info("services initialized",
		zap.Strings("services", container.GetNames()),
		zap.String("data_dir", cfg.DataDir))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Container: container,
		Router:    router,
		Accounts:  services.NewAccountsWatcher(cfg.AccountsFile, authService, logger),
		audit:     auditService,
		locks:     locks,
		websocket: wsHandler,
	}, nil
}

// Close 断开推送连接，等待审计写完，停止锁回收
func (a *App) Close() {
	a.websocket.CloseAll()
	a.audit.Close()
	a.locks.Close()
	_ = a.Logger.Sync()
}
