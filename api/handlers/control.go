package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/puppeteerthegoat5-eng/puppeter-godlike/internal/scheduler"
	"go.uber.org/zap"
)

// DefaultBotCount botCount 缺失或无法解析时的取值
const DefaultBotCount = 2

// =============================================================================
// 📥 请求类型
// =============================================================================

// FlexInt 接受 JSON 数字或以数字开头的字符串（"3"、"3 bots"），
// 其余输入一律视为 0
type FlexInt int

// UnmarshalJSON 实现 json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	*f = 0

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if !math.IsNaN(num) && !math.IsInf(num, 0) && math.Abs(num) < math.MaxInt32 {
			*f = FlexInt(math.Trunc(num))
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexInt(leadingInt(s))
	}
	return nil
}

// leadingInt 解析字符串开头的整数部分，没有数字时返回 0
func leadingInt(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// ProxyList 接受按行分隔的字符串或字符串数组
type ProxyList []string

// UnmarshalJSON 实现 json.Unmarshaler
func (p *ProxyList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = cleanLines(list)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = cleanLines(strings.Split(s, "\n"))
	return nil
}

func cleanLines(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// StartRequest POST /api/start 请求体
type StartRequest struct {
	URLs     []string  `json:"urls"`
	BotCount FlexInt   `json:"botCount"`
	Proxies  ProxyList `json:"proxies"`
	// 缺省为 true，只有显式 false 才打开有界面浏览器
	Headless *bool `json:"headless"`
}

// toScheduler 转换为调度参数并补齐默认值
func (req StartRequest) toScheduler() scheduler.StartRequest {
	count := int(req.BotCount)
	if count <= 0 {
		count = DefaultBotCount
	}
	headless := true
	if req.Headless != nil {
		headless = *req.Headless
	}
	return scheduler.StartRequest{
		URLs:     req.URLs,
		Proxies:  req.Proxies,
		Headless: headless,
		BotCount: count,
	}
}

// StatusResponse GET /api/status 响应数据
type StatusResponse struct {
	ActiveBots string `json:"activeBots"`
	scheduler.Status
}

// =============================================================================
// 🎮 控制 Handler
// =============================================================================

// LoopController 由 scheduler.Scheduler 实现
type LoopController interface {
	Start(req scheduler.StartRequest) error
	Stop() bool
	Status() scheduler.Status
}

// LogSource 由 logsink.Sink 实现
type LogSource interface {
	Entries() []string
	Subscribe(buffer int) (<-chan string, func())
}

// ControlHandler 处理启动、停止、状态和日志请求
type ControlHandler struct {
	loop   LoopController
	logs   LogSource
	logger *zap.Logger
}

// NewControlHandler 创建控制处理器
func NewControlHandler(loop LoopController, logs LogSource, logger *zap.Logger) *ControlHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlHandler{
		loop:   loop,
		logs:   logs,
		logger: logger.With(zap.String("handler", "control")),
	}
}

// HandleStart 处理 POST /api/start
// @Summary 启动批次循环
// @Tags 控制
// @Accept json
// @Produce json
// @Param request body StartRequest true "目标与参数"
// @Success 200 {object} Response "Started loop"
// @Failure 400 {object} Response "Already running 或请求无效"
// @Router /api/start [post]
func (h *ControlHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	sreq := req.toScheduler()
	if err := h.loop.Start(sreq); err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}

	h.logger.Info("loop started via API",
		zap.Int("urls", len(sreq.URLs)),
		zap.Int("bot_count", sreq.BotCount),
		zap.Int("proxies", len(sreq.Proxies)),
		zap.Bool("headless", sreq.Headless))
	WriteSuccess(w, r, MessageData{Message: "Started loop"})
}

// HandleStop 处理 POST /api/stop，已停止时同样返回成功
// @Summary 停止批次循环
// @Tags 控制
// @Produce json
// @Success 200 {object} Response "Loop stopped"
// @Router /api/stop [post]
func (h *ControlHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !h.loop.Stop() {
		h.logger.Debug("stop requested while idle")
	}
	WriteSuccess(w, r, MessageData{Message: "Loop stopped"})
}

// HandleStatus 处理 GET /api/status
// @Summary 循环状态
// @Tags 控制
// @Produce json
// @Success 200 {object} Response{data=StatusResponse}
// @Router /api/status [get]
func (h *ControlHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.loop.Status()
	WriteSuccess(w, r, StatusResponse{
		ActiveBots: st.Label(),
		Status:     st,
	})
}

// HandleLogs 处理 GET /api/logs，返回字符串数组（最早的在前）
// @Summary 活动日志
// @Tags 日志
// @Produce json
// @Success 200 {array} string
// @Router /api/logs [get]
func (h *ControlHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.logs.Entries())
}
