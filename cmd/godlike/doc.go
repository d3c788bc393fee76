// Copyright (c) puppeter-godlike Authors.
// Licensed under the MIT License.

/*
Package main 提供 godlike 访问机器人的程序入口。

# 概述

cmd/godlike 把会话执行器、批次调度器、内存监控和活动日志组装成一个
进程，并通过 HTTP 控制面暴露启动、停止、状态和日志接口。进程启动后
默认立即用配置中的 URL 开始循环。

# 核心类型

  - Server: 按顺序初始化组件，管理 HTTP 与 Metrics 双端口及优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（默认）、visit（单次会话）、health、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter（基于 IP）
  - 日志流：/api/logs/stream 通过 WebSocket 推送新行
  - 优雅关闭：信号监听 → 停止调度 → 停止监控 → 关闭活动日志 → 关闭 HTTP → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
