package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/logsink"
	"github.com/puppeteerthegoat5-eng/puppeter-godlike/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialLogStream(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
}

func readLine(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	return string(data)
}

func TestLogStreamHandler_BacklogThenLive(t *testing.T) {
	sink := logsink.New(logsink.DefaultConfig())
	sink.Add("before one")
	sink.Add("before two")

	srv := httptest.NewServer(NewLogStreamHandler(sink, []string{"*"}, zap.NewNop()))
	t.Cleanup(srv.Close)

	conn, _, err := dialLogStream(t, srv, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	assert.True(t, strings.HasSuffix(readLine(t, conn), "] before one"))
	assert.True(t, strings.HasSuffix(readLine(t, conn), "] before two"))

	sink.Add("live line")
	assert.True(t, strings.HasSuffix(readLine(t, conn), "] live line"))
}

func TestLogStreamHandler_SinkClosed(t *testing.T) {
	sink := logsink.New(logsink.DefaultConfig())

	srv := httptest.NewServer(NewLogStreamHandler(sink, []string{"*"}, zap.NewNop()))
	t.Cleanup(srv.Close)

	conn, _, err := dialLogStream(t, srv, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	// 等订阅建立后再关闭
	sink.Add("hello")
	readLine(t, conn)

	require.NoError(t, sink.Close(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// 建连瞬间写入的行可能重复一次，读到关闭帧为止
	for i := 0; i < 3; i++ {
		if _, _, err = conn.Read(ctx); err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestLogStreamHandler_OriginCheck(t *testing.T) {
	sink := logsink.New(logsink.DefaultConfig())

	srv := httptest.NewServer(NewLogStreamHandler(sink, []string{"dashboard.example.com"}, zap.NewNop()))
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.org")
	_, resp, err := dialLogStream(t, srv, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	header.Set("Origin", "https://dashboard.example.com")
	conn, _, err := dialLogStream(t, srv, header)
	require.NoError(t, err)
	conn.CloseNow()
}

func TestLogStreamHandler_NotWebSocket(t *testing.T) {
	sink := logsink.New(logsink.DefaultConfig())
	h := NewLogStreamHandler(sink, nil, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/logs/stream", nil))
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
}
