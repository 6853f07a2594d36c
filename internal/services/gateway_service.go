// internal/services/gateway_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Corphon/StoryWriter/internal/config"
	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/llm"
	"github.com/Corphon/StoryWriter/internal/llm/providers/dify"
	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/utils"
)

// ChatEndpoint 审计记录中的接口路径
const ChatEndpoint = "/api/dify-chat"

// 返回给客户端的固定错误消息
const (
	MsgNotConfigured = "DIFY_API_KEY not configured"
	MsgTimeout       = "Dify API timeout"
	MsgInternal      = "Internal server error"
)

// AuditRecorder 网关成功调用后的审计出口
type AuditRecorder interface {
	Record(userID, feature, endpoint string, request, response map[string]any)
}

// GatewayService AI 网关适配器：规范化请求，调用 Dify，规范化响应或错误
type GatewayService struct {
	provider llm.Provider // 凭证为空时为 nil
	timeout  time.Duration
	limiter  *rate.Limiter
	audit    AuditRecorder
	logger   *zap.Logger
	metrics  *utils.MetricsCollector
}

// NewGatewayService 按配置创建网关；凭证缺失不是启动错误，而是在调用时返回配置错误
func NewGatewayService(cfg *config.Config, audit AuditRecorder, logger *zap.Logger, metrics *utils.MetricsCollector) (*GatewayService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GatewayService{
		timeout: cfg.DifyTimeout,
		audit:   audit,
		logger:  logger.Named("gateway"),
		metrics: metrics,
	}

	if perMinute := cfg.DifyRatePerMinute; perMinute > 0 {
		burst := perMinute / 10
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
	}

	credential := cfg.DifyCredential()
	if credential == "" {
		s.logger.Warn("no dify credential configured, chat requests will fail")
		return s, nil
	}

	provider, err := llm.GetProvider(dify.Name, map[string]string{
		"credential": credential,
		"base_url":   cfg.DifyBaseURL,
	})
	if err != nil {
		return nil, err
	}
	s.provider = provider

	usesAppID := strings.HasPrefix(credential, dify.AppIDPrefix)
	s.logger.Info("dify gateway ready",
		zap.String("base_url", cfg.DifyBaseURL),
		zap.Bool("app_id_credential", usesAppID),
		zap.Duration("timeout", s.timeout))
	return s, nil
}

// Configured 是否具备可用凭证
func (s *GatewayService) Configured() bool {
	return s.provider != nil
}

// Chat 转发一次对话；失败时不产生审计记录
func (s *GatewayService) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	// 只检查字段是否存在，内容原样转发
	if req.Message == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}
	if s.provider == nil {
		return nil, apperrors.NewConfigurationError(MsgNotConfigured, nil)
	}

	user := req.UserID
	if user == "" {
		user = models.DefaultChatUser
	}
	feature := req.Feature
	if feature == "" {
		feature = models.DefaultChatFeature
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.limiter != nil {
		// 等待时间超过调用时限时 Wait 会立即失败，按超时处理
		if err := s.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, apperrors.NewProcessingError("request cancelled", err)
			}
			s.recordCall("timeout", 0)
			return nil, apperrors.NewTimeoutError(MsgTimeout, err)
		}
	}

	s.logger.Debug("dify chat request",
		zap.String("user", user),
		zap.String("feature", feature),
		zap.Bool("has_conversation_id", req.ConversationID != ""))

	start := time.Now()
	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Query:          req.Message,
		ConversationID: req.ConversationID,
		User:           user,
	})
	elapsed := time.Since(start)

	if err != nil {
		s.recordCall(outcomeOf(err), elapsed)
		s.logger.Error("dify chat failed",
			zap.String("user", user),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, apperrors.WrapError(err, "dify chat", apperrors.ErrorTypeError)
	}
	s.recordCall("ok", elapsed)

	reply := &models.ChatReply{
		Answer:         resp.Answer,
		ConversationID: resp.ConversationID,
		MessageID:      resp.MessageID,
	}

	if s.audit != nil {
		s.audit.Record(user, feature, ChatEndpoint,
			map[string]any{
				"message":         Summarize(req.Message, 2000),
				"conversation_id": req.ConversationID,
			},
			map[string]any{
				"answer":          Summarize(reply.Answer, 2000),
				"conversation_id": reply.ConversationID,
				"message_id":      reply.MessageID,
			})
	}
	return reply, nil
}

func (s *GatewayService) recordCall(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordGatewayCall(outcome, elapsed)
	}
}

func outcomeOf(err error) string {
	switch {
	case apperrors.IsUpstreamError(err):
		return "upstream_error"
	case apperrors.IsTimeoutError(err):
		return "timeout"
	default:
		return "error"
	}
}

// ClientMessage 网关错误对应的客户端消息，不包含上游响应体
func ClientMessage(err error) string {
	appErr, ok := apperrors.As(err)
	if !ok {
		return MsgInternal
	}
	switch appErr.Type {
	case apperrors.ErrorTypeConfiguration:
		return MsgNotConfigured
	case apperrors.ErrorTypeUpstream:
		return "Dify API error: " + appErr.UpstreamStatusText
	case apperrors.ErrorTypeTimeout:
		return MsgTimeout
	case apperrors.ErrorTypeValidation:
		return appErr.Message
	default:
		return MsgInternal
	}
}
