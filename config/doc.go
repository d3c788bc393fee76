// Package config 提供 godlike 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量名由
// 前缀（默认 GODLIKE）与各级 env 标签拼接而成，例如
// GODLIKE_SCHEDULER_BATCH_DELAY=5s。托管平台常用的 PORT 变量会
// 覆盖 server.http_port。
package config
