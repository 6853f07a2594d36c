// Package client is a Go client for the StoryWriter HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/StoryWriter/internal/models"
)

// ErrMissingCredentials 用户名或密码为空（含仅空白）时返回，不发起请求
var ErrMissingCredentials = errors.New("Username and password are required")

// Error 服务端返回的非 2xx 响应
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("storywriter: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("storywriter: %d: %s", e.StatusCode, e.Message)
}

// Component 当前阶段应渲染的组件
type Component struct {
	Name       string       `json:"name"`
	Stage      models.Stage `json:"stage"`
	AIAssisted bool         `json:"ai_assisted"`
	Feature    string       `json:"feature,omitempty"`
}

// StageInput 组件的输入切片
type StageInput struct {
	Character  *models.Character  `json:"character,omitempty"`
	Plot       *models.Plot       `json:"plot,omitempty"`
	StoryState *models.StoryState `json:"story_state,omitempty"`
}

// View 每次转换后返回的会话视图
type View struct {
	SessionID     string            `json:"session_id"`
	User          models.AuthUser   `json:"user"`
	Language      models.Language   `json:"language"`
	Stage         models.Stage      `json:"stage"`
	Component     Component         `json:"component"`
	Input         StageInput        `json:"input"`
	StoryState    models.StoryState `json:"story_state"`
	AllowedEvents []string          `json:"allowed_events"`
	BackTarget    models.Stage      `json:"back_target,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// LoginResult 登录成功后的用户与会话
type LoginResult struct {
	User      models.AuthUser
	SessionID string
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换默认 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken 复用已有令牌
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client 持有登录后的令牌，可并发使用
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New 创建客户端，baseURL 形如 http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token 当前令牌
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login 空用户名或空密码直接返回校验错误
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingCredentials
	}

	var resp struct {
		Success   bool             `json:"success"`
		User      *models.AuthUser `json:"user"`
		Token     string           `json:"token"`
		SessionID string           `json:"session_id"`
		Error     string           `json:"error"`
	}
	status, err := c.do(ctx, http.MethodPost, "/api/auth", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !resp.Success || resp.User == nil {
		return nil, &Error{StatusCode: status, Message: resp.Error}
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	return &LoginResult{User: *resp.User, SessionID: resp.SessionID}, nil
}

// Logout 注销会话并清空令牌
func (c *Client) Logout(ctx context.Context) error {
	if err := c.envelope(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

// Chat 调用 /api/dify-chat
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	var resp struct {
		models.ChatReply
		Error string `json:"error"`
	}
	status, err := c.do(ctx, http.MethodPost, "/api/dify-chat", req, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &Error{StatusCode: status, Message: resp.Error}
	}
	reply := resp.ChatReply
	return &reply, nil
}

// Session 当前会话视图
func (c *Client) Session(ctx context.Context) (*View, error) {
	return c.view(ctx, http.MethodGet, "/api/session", nil)
}

// Start 欢迎页进入角色创建
func (c *Client) Start(ctx context.Context) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/start", nil)
}

// SubmitCharacter 提交角色
func (c *Client) SubmitCharacter(ctx context.Context, character models.Character) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/character", character)
}

// SubmitPlot 提交情节
func (c *Client) SubmitPlot(ctx context.Context, plot models.Plot) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/plot", plot)
}

// SubmitStructure 提交结构
func (c *Client) SubmitStructure(ctx context.Context, structure models.Structure) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/structure", structure)
}

// SubmitStory 提交正文
func (c *Client) SubmitStory(ctx context.Context, story string) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/story", map[string]string{"story": story})
}

// Edit 从回顾页跳回某个阶段
func (c *Client) Edit(ctx context.Context, stage models.Stage) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/edit", map[string]models.Stage{"stage": stage})
}

// Back 返回上一阶段
func (c *Client) Back(ctx context.Context) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/back", nil)
}

// Reset 清空故事
func (c *Client) Reset(ctx context.Context) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/reset", nil)
}

// SetLanguage 切换界面语言（en 或 zh），阶段不变
func (c *Client) SetLanguage(ctx context.Context, lang models.Language) (*View, error) {
	return c.view(ctx, http.MethodPost, "/api/session/language", map[string]models.Language{"language": lang})
}

func (c *Client) view(ctx context.Context, method, path string, body any) (*View, error) {
	var v View
	if err := c.envelope(ctx, method, path, body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// envelope 解析 {success, data, error} 格式的响应
func (c *Client) envelope(ctx context.Context, method, path string, body, data any) error {
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	status, err := c.do(ctx, method, path, body, &resp)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 || !resp.Success {
		e := &Error{StatusCode: status}
		if resp.Error != nil {
			e.Code = resp.Error.Code
			e.Message = resp.Error.Message
		}
		return e
	}
	if data == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, data); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// do 发送请求并尽量解析响应体，返回状态码
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
