// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/services"
	"github.com/Corphon/StoryWriter/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 16
)

// 推送消息类型
const (
	MessageTypeSession = "session"
	MessageTypeClosed  = "session_closed"
	MessageTypePong    = "pong"
	MessageTypeError   = "error"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage 推送给前端的消息
type StreamMessage struct {
	Type      string                `json:"type"`
	Session   *services.SessionView `json:"session,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// wsClient 一个已认证的会话连接
type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	userID    string
	send      chan []byte
	closed    int32
	createdAt time.Time
}

func (client *wsClient) close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		client.conn.Close()
	}
}

// enqueue 不阻塞，队列满时丢弃
func (client *wsClient) enqueue(msg StreamMessage) bool {
	if atomic.LoadInt32(&client.closed) == 1 {
		return false
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// WebSocketHandler 把会话的阶段变化推送到浏览器
type WebSocketHandler struct {
	auth     *Authenticator
	sessions *services.SessionService
	response *ResponseHelper
	logger   *zap.Logger
	metrics  *utils.MetricsCollector

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(auth *Authenticator, sessions *services.SessionService, logger *zap.Logger, metrics *utils.MetricsCollector) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &WebSocketHandler{
		auth:     auth,
		sessions: sessions,
		response: NewResponseHelper(),
		logger:   logger.Named("ws"),
		metrics:  metrics,
		clients:  make(map[*wsClient]struct{}),
	}
}

// SessionStream GET /ws/session?token=...
func (wh *WebSocketHandler) SessionStream(c *gin.Context) {
	raw := bearerToken(c)
	if raw == "" {
		wh.response.Error(c, http.StatusUnauthorized, ErrorUnauthorized, "missing bearer token")
		return
	}
	token, err := wh.auth.Verify(raw)
	if err != nil {
		wh.response.FromError(c, err)
		return
	}
	// 先订阅再读取初始视图，两步之间的变化或注销都会出现在 updates 上
	updates, cancel := wh.sessions.Subscribe(token.SessionID)
	defer cancel()

	view, err := wh.sessions.Get(token.SessionID)
	if err != nil {
		wh.response.FromError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wh.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:      conn,
		sessionID: token.SessionID,
		userID:    token.Username,
		send:      make(chan []byte, sendBuffer),
		createdAt: time.Now(),
	}
	wh.register(client)
	defer wh.unregister(client)

	// 初始视图在写循环启动前写出，保证排在所有更新之前
	data, err := json.Marshal(StreamMessage{Type: MessageTypeSession, Session: view, Timestamp: time.Now()})
	if err != nil || !wh.write(client, websocket.TextMessage, data) {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wh.readPump(client)
	}()
	wh.writePump(client, updates, done)
}

// Len 当前连接数
func (wh *WebSocketHandler) Len() int {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return len(wh.clients)
}

// CloseAll 关闭所有连接，服务停止时调用
func (wh *WebSocketHandler) CloseAll() {
	wh.mu.Lock()
	clients := make([]*wsClient, 0, len(wh.clients))
	for client := range wh.clients {
		clients = append(clients, client)
	}
	wh.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

func (wh *WebSocketHandler) register(client *wsClient) {
	wh.mu.Lock()
	wh.clients[client] = struct{}{}
	wh.mu.Unlock()
	wh.metrics.IncGauge("ws_connections")
	wh.logger.Info("websocket connected",
		zap.String("session_id", client.sessionID),
		zap.String("user", client.userID))
}

func (wh *WebSocketHandler) unregister(client *wsClient) {
	wh.mu.Lock()
	_, ok := wh.clients[client]
	delete(wh.clients, client)
	wh.mu.Unlock()
	client.close()
	if ok {
		wh.metrics.DecGauge("ws_connections")
		wh.logger.Info("websocket disconnected",
			zap.String("session_id", client.sessionID),
			zap.Duration("connected", time.Since(client.createdAt)))
	}
}

// readPump 只处理心跳，阶段变化必须走 HTTP 接口
func (wh *WebSocketHandler) readPump(client *wsClient) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wh.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "ping" {
			client.enqueue(StreamMessage{Type: MessageTypeError, Error: "unsupported message", Timestamp: time.Now()})
			continue
		}
		client.enqueue(StreamMessage{Type: MessageTypePong, Timestamp: time.Now()})
	}
}

func (wh *WebSocketHandler) write(client *wsClient, messageType int, data []byte) bool {
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteMessage(messageType, data); err != nil {
		wh.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

// writePump 串行写出；启动后 conn 只在这里写
func (wh *WebSocketHandler) writePump(client *wsClient, updates <-chan services.SessionView, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(messageType int, data []byte) bool {
		return wh.write(client, messageType, data)
	}

	for {
		select {
		case <-done:
			return

		case view, ok := <-updates:
			if !ok {
				// 会话已注销
				data, _ := json.Marshal(StreamMessage{Type: MessageTypeClosed, Timestamp: time.Now()})
				write(websocket.TextMessage, data)
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			data, err := json.Marshal(StreamMessage{Type: MessageTypeSession, Session: &view, Timestamp: time.Now()})
			if err != nil {
				continue
			}
			if !write(websocket.TextMessage, data) {
				return
			}

		case data := <-client.send:
			if !write(websocket.TextMessage, data) {
				return
			}

		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}
