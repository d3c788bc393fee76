// Copyright (c) puppeter-godlike Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP 控制面、
批次调度、内存监控与活动日志四个维度。

# 概述

Collector 使用 promauto 自动注册到默认 Registry，所有指标按
namespace 隔离（服务中为 "godlike"）。Collector 同时满足
scheduler.Recorder、monitor.Recorder 与 logsink.Recorder，
由 cmd/godlike 在装配时注入各组件。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为
    2xx/3xx/4xx/5xx。
  - 调度指标：会话总数与耗时（按 outcome）、批次数、批次大小、
    实际启动数、当前并发上限、运行中会话数、循环是否运行。
  - 监控指标：最近一次内存采样、档位切换次数（up/down）、采样失败数。
  - 活动日志指标：日志行数、镜像写入失败数（按 mirror）、队列丢弃数。
*/
package metrics
