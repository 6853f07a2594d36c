package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryWriter/internal/models"
)

func readStream(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func dialSession(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestSessionStream(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "key"})
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	resp := env.login(t, "tom", "pw")
	conn, _, err := dialSession(t, srv, resp.Token)
	require.NoError(t, err)
	defer conn.Close()

	msg := readStream(t, conn)
	assert.Equal(t, MessageTypeSession, msg.Type)
	require.NotNil(t, msg.Session)
	assert.Equal(t, models.StageWelcome, msg.Session.Stage)

	decodeView(t, env.do(t, http.MethodPost, "/api/session/start", resp.Token, nil))
	msg = readStream(t, conn)
	assert.Equal(t, MessageTypeSession, msg.Type)
	assert.Equal(t, models.StageCharacter, msg.Session.Stage)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, MessageTypePong, readStream(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "apply"}))
	assert.Equal(t, MessageTypeError, readStream(t, conn).Type)

	w := env.do(t, http.MethodPost, "/api/auth/logout", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MessageTypeClosed, readStream(t, conn).Type)
}

func TestSessionStreamKeepsOrder(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "key"})
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	resp := env.login(t, "tom", "pw")
	conn, _, err := dialSession(t, srv, resp.Token)
	require.NoError(t, err)
	defer conn.Close()

	// 不等初始视图就连续推进，客户端看到的顺序仍与转换顺序一致
	decodeView(t, env.do(t, http.MethodPost, "/api/session/start", resp.Token, nil))
	decodeView(t, env.do(t, http.MethodPost, "/api/session/character", resp.Token, models.Character{Name: "Pip"}))
	decodeView(t, env.do(t, http.MethodPost, "/api/session/plot", resp.Token, models.Plot{Setting: "sea"}))

	var stages []models.Stage
	for len(stages) < 4 {
		msg := readStream(t, conn)
		require.Equal(t, MessageTypeSession, msg.Type)
		stages = append(stages, msg.Session.Stage)
	}
	assert.Equal(t, []models.Stage{
		models.StageWelcome,
		models.StageCharacter,
		models.StagePlot,
		models.StageStructure,
	}, stages)
}

func TestSessionStreamAfterLogout(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "key"})
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	resp := env.login(t, "tom", "pw")
	w := env.do(t, http.MethodPost, "/api/auth/logout", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, httpResp, err := dialSession(t, srv, resp.Token)
	require.Error(t, err)
	require.NotNil(t, httpResp)
	assert.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
	assert.Zero(t, env.metrics.GetGauge("ws_connections"))
}

func TestSessionStreamRejectsBadToken(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "key"})
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	_, httpResp, err := dialSession(t, srv, "nope")
	require.Error(t, err)
	require.NotNil(t, httpResp)
	assert.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)

	_, httpResp, err = dialSession(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, httpResp)
	assert.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
}
