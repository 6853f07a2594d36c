// internal/services/auth_service.go
package services

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/auth"
	"github.com/Corphon/StoryWriter/internal/config"
	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
)

// ErrInvalidCredentials 用户名或密码错误时返回给客户端的消息
const ErrInvalidCredentials = "Invalid username or password"

// AuthService 基于账号文件的用户认证
type AuthService struct {
	mu       sync.RWMutex
	accounts map[string]config.Account
	logger   *zap.Logger
}

// NewAuthService 使用已解析的账号列表创建认证服务
func NewAuthService(accounts *config.Accounts, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuthService{logger: logger.Named("auth")}
	s.Replace(accounts)
	return s
}

// NewAuthServiceFromFile 从 YAML 账号文件创建认证服务
func NewAuthServiceFromFile(path string, logger *zap.Logger) (*AuthService, error) {
	accounts, err := config.LoadAccounts(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("load accounts", err)
	}
	return NewAuthService(accounts, logger), nil
}

// Replace 整体替换账号表
func (s *AuthService) Replace(accounts *config.Accounts) {
	table := make(map[string]config.Account)
	if accounts != nil {
		for _, a := range accounts.Accounts {
			table[a.Username] = a
		}
	}

	s.mu.Lock()
	s.accounts = table
	s.mu.Unlock()

	s.logger.Info("accounts loaded", zap.Int("count", len(table)))
}

// Authenticate 校验用户名与密码，成功返回会话身份
func (s *AuthService) Authenticate(username, password string) (models.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return models.Identity{}, apperrors.NewValidationError("username and password are required", nil)
	}

	s.mu.RLock()
	account, exists := s.accounts[username]
	s.mu.RUnlock()

	if !exists {
		// 未知用户也走一次比较，避免通过耗时区分
		auth.CheckPassword(password, "", "")
		s.logger.Info("login rejected", zap.String("username", username), zap.String("reason", "unknown user"))
		return models.Identity{}, apperrors.NewUnauthorizedError(ErrInvalidCredentials, nil)
	}

	if !auth.CheckPassword(password, account.Password, account.PasswordHash) {
		s.logger.Info("login rejected", zap.String("username", username), zap.String("reason", "bad password"))
		return models.Identity{}, apperrors.NewUnauthorizedError(ErrInvalidCredentials, nil)
	}

	s.logger.Info("login accepted", zap.String("username", username), zap.String("role", string(account.Role)))
	return models.Identity{
		Username:  account.Username,
		Role:      account.Role,
		AIEnabled: !account.NoAI,
	}, nil
}

// Students 返回全部学生账号名
func (s *AuthService) Students() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name, a := range s.accounts {
		if a.Role == models.RoleStudent {
			names = append(names, name)
		}
	}
	return names
}
