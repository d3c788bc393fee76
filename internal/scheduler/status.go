package scheduler

import "fmt"

// State 调度器状态
type State string

const (
	// StateIdle 未运行（可能仍有会话在收尾）
	StateIdle State = "idle"
	// StateLooping 循环执行批次
	StateLooping State = "looping"
)

// Status 调度器状态快照
type Status struct {
	State        State `json:"state"`
	CurrentLimit int   `json:"currentLimit"`
	InFlight     int   `json:"inFlight"`
	// Draining 已停止但上一批仍有会话未结束
	Draining      bool   `json:"draining"`
	Cursor        uint64 `json:"cursor"`
	Batches       uint64 `json:"batches"`
	RequestedBots int    `json:"requestedBots"`
	Headless      bool   `json:"headless"`
	URLs          int    `json:"urls"`
	Proxies       int    `json:"proxies"`
}

// Running 是否处于 Looping
func (s Status) Running() bool {
	return s.State == StateLooping
}

// Label 返回面板上显示的状态文字
func (s Status) Label() string {
	if s.Running() {
		return fmt.Sprintf("Running (%d active)", s.CurrentLimit)
	}
	return "Stopped"
}
