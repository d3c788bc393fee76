// Package api 描述 godlike 的 HTTP 控制面。
//
// # 端点
//
//	POST /api/start         启动批次循环
//	POST /api/stop          停止循环，正在执行的会话自然结束
//	GET  /api/status        循环状态（activeBots 标签 + 详细字段）
//	GET  /api/logs          最近 1000 行活动日志（JSON 字符串数组）
//	GET  /api/logs/stream   WebSocket 实时日志
//	GET  /health /ready     存活与就绪探针
//	GET  /version           版本信息
//
// 不带 /api 前缀的 /start、/stop、/status、/logs 保留为别名。
// 处理器实现位于 api/handlers，路由装配位于 cmd/godlike。
//
// 默认端口 3000（可用 PORT 覆盖），Prometheus 指标在独立端口 9091 的 /metrics。
package api
