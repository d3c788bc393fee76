// Copyright (c) puppeter-godlike Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 godlike 控制面的 HTTP 处理器。

# 核心类型

  - ControlHandler: /api/start、/api/stop、/api/status、/api/logs
  - LogStreamHandler: /api/logs/stream，WebSocket 推送活动日志
  - HealthHandler: /health、/healthz、/ready、/readyz、/version
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - StartRequest: 启动参数，botCount 接受数字或数字字符串，
    proxies 接受按行分隔的字符串或数组，headless 缺省为 true

# 错误映射

types.Error 的错误码按固定表映射为 HTTP 状态码，例如
ALREADY_RUNNING → 400、NAVIGATION_FAILED → 502、BROWSER_LAUNCH → 503。
非 types.Error 的错误统一返回 INTERNAL_ERROR，不向客户端暴露原始信息。
*/
package handlers
