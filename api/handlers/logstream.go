package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	streamBuffer       = 256
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 20 * time.Second
)

// LogStreamHandler 通过 WebSocket 推送活动日志：先发送现有记录，再推送新行。
// 连接建立的瞬间写入的行可能重复出现一次。
type LogStreamHandler struct {
	logs           LogSource
	originPatterns []string
	skipVerify     bool
	logger         *zap.Logger
}

// NewLogStreamHandler 创建日志流处理器。allowedOrigins 含 "*" 时不校验 Origin。
func NewLogStreamHandler(logs LogSource, allowedOrigins []string, logger *zap.Logger) *LogStreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &LogStreamHandler{
		logs:   logs,
		logger: logger.With(zap.String("handler", "logstream")),
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			h.skipVerify = true
			continue
		}
		h.originPatterns = append(h.originPatterns, o)
	}
	return h
}

// ServeHTTP 处理 GET /api/logs/stream
func (h *LogStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 长连接不受服务器读写超时约束，不支持时忽略
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.skipVerify,
	})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 先订阅再取快照，避免漏行
	lines, cancel := h.logs.Subscribe(streamBuffer)
	defer cancel()

	ctx := conn.CloseRead(r.Context())

	for _, line := range h.logs.Entries() {
		if err := h.send(ctx, conn, line); err != nil {
			return
		}
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				h.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		case line, ok := <-lines:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "log sink closed")
				return
			}
			if err := h.send(ctx, conn, line); err != nil {
				return
			}
		}
	}
}

func (h *LogStreamHandler) send(ctx context.Context, conn *websocket.Conn, line string) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, []byte(line)); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}
