// internal/llm/providers/dify/dify.go
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/llm"
)

// Name 注册表中的提供者名称
const Name = "dify"

// AppIDPrefix 以此前缀开头的凭证被视为应用标识
const AppIDPrefix = "app-"

const defaultBaseURL = "https://api.dify.ai/v1"

func init() {
	llm.Register(Name, func() llm.Provider {
		return &Provider{baseURL: defaultBaseURL}
	})
}

// Provider Dify chat-messages 接口的阻塞模式客户端
type Provider struct {
	credential string
	baseURL    string
	client     *http.Client
}

// chatMessageRequest POST /chat-messages 请求体
type chatMessageRequest struct {
	Inputs         map[string]interface{} `json:"inputs"`
	Query          string                 `json:"query"`
	ResponseMode   string                 `json:"response_mode"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	User           string                 `json:"user"`
	AppID          string                 `json:"app_id,omitempty"`
}

// chatMessageResponse 阻塞模式响应，只取需要的字段
type chatMessageResponse struct {
	ID             string `json:"id"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

// New 直接构造提供者，测试和网关服务使用
func New(credential, baseURL string, client *http.Client) (*Provider, error) {
	p := &Provider{baseURL: defaultBaseURL}
	if client != nil {
		p.client = client
	}
	if err := p.Initialize(map[string]string{"credential": credential, "base_url": baseURL}); err != nil {
		return nil, err
	}
	return p, nil
}

// Initialize 配置项: credential (API 密钥或应用标识), base_url
func (p *Provider) Initialize(config map[string]string) error {
	credential := strings.TrimSpace(config["credential"])
	if credential == "" {
		return apperrors.NewConfigurationError("DIFY_API_KEY not configured", nil)
	}
	p.credential = credential

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	if p.client == nil {
		// 超时由调用方的 context 控制
		p.client = &http.Client{}
	}
	return nil
}

func (p *Provider) GetName() string {
	return "Dify"
}

// UsesAppID 凭证是否为应用标识
func (p *Provider) UsesAppID() bool {
	return strings.HasPrefix(p.credential, AppIDPrefix)
}

// Chat 发送一次阻塞式对话，不做重试
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]interface{}{}
	}

	body := chatMessageRequest{
		Inputs:         inputs,
		Query:          req.Query,
		ResponseMode:   "blocking",
		ConversationID: req.ConversationID,
		User:           req.User,
	}
	if p.UsesAppID() {
		body.AppID = p.credential
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewProcessingError("encode dify request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat-messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, apperrors.NewProcessingError("build dify request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.credential)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperrors.NewTimeoutError("Dify API timeout", err)
		}
		return nil, apperrors.NewProcessingError("call dify", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperrors.NewTimeoutError("Dify API timeout", err)
		}
		return nil, apperrors.NewProcessingError("read dify response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		// 响应体只进日志，不返回给客户端
		return nil, apperrors.NewUpstreamError(httpResp.StatusCode, statusText(httpResp),
			fmt.Errorf("dify body: %s", strings.TrimSpace(string(respBody))))
	}

	var data chatMessageResponse
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, apperrors.NewProcessingError("decode dify response", err)
	}

	messageID := data.ID
	if messageID == "" {
		messageID = data.MessageID
	}

	return &llm.ChatResponse{
		Answer:         data.Answer,
		ConversationID: data.ConversationID,
		MessageID:      messageID,
		ProviderName:   p.GetName(),
	}, nil
}

// statusText 取响应行中的原因短语，缺失时用标准短语
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
