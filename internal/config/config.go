// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultDifyAppID 未配置 DIFY_API_KEY 时使用的应用标识
const DefaultDifyAppID = "app-IKvkbOgKstyjEupEpbpu2iPF"

// DefaultDifyBaseURL Dify 云服务地址
const DefaultDifyBaseURL = "https://api.dify.ai/v1"

// Config 存储应用配置
type Config struct {
	// 基础配置
	Port      string `validate:"required,numeric"`
	DataDir   string `validate:"required"`
	LogDir    string `validate:"required"`
	DebugMode bool

	// Dify 网关
	DifyAPIKey        string
	DifyBaseURL       string        `validate:"required,url"`
	DifyFallbackAppID string        // 置空即关闭回退
	DifyTimeout       time.Duration `validate:"gt=0"`
	DifyRatePerMinute int           `validate:"gte=0"` // 0 表示不限速

	// 认证与限流
	AuthSecret         string
	AccountsFile       string `validate:"required"`
	RateLimitPerMinute int    `validate:"gte=0"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	timeout, err := getEnvDuration("DIFY_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	difyRate, err := getEnvInt("DIFY_RATE_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}
	httpRate, err := getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DataDir:            dataDir,
		LogDir:             getEnv("LOG_DIR", "logs"),
		DebugMode:          getEnvBool("DEBUG_MODE", false),
		DifyAPIKey:         getEnv("DIFY_API_KEY", ""),
		DifyBaseURL:        strings.TrimRight(getEnv("DIFY_BASE_URL", DefaultDifyBaseURL), "/"),
		DifyFallbackAppID:  lookupEnv("DIFY_FALLBACK_APP_ID", DefaultDifyAppID),
		DifyTimeout:        timeout,
		DifyRatePerMinute:  difyRate,
		AuthSecret:         getEnv("AUTH_SECRET_KEY", ""),
		AccountsFile:       getEnv("ACCOUNTS_FILE", dataDir+"/accounts.yaml"),
		RateLimitPerMinute: httpRate,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 结构化校验
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// DifyCredential 返回网关使用的凭证，API 密钥优先，其次回退应用标识
func (c *Config) DifyCredential() string {
	if c.DifyAPIKey != "" {
		return c.DifyAPIKey
	}
	return c.DifyFallbackAppID
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// lookupEnv 与 getEnv 不同，显式设置为空字符串时返回空
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

// getEnvDuration 支持 "45s" 形式，也接受纯数字秒数
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
