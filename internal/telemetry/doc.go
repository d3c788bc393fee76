// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 godlike 提供集中式的 TracerProvider 和 MeterProvider 配置，
// 并通过 ObserveLoop 把批次循环的状态导出为 observable gauge。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
