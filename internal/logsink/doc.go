// Package logsink 保存 bot 活动日志。
//
// 内存中保留最近的固定行数（默认 1000），超出后淘汰最早的行；每一行
// 同时异步追加到镜像（本地文件 bot_activity.log，可选 Redis 列表），
// 镜像写入失败只通过 Errors 通道报告，不影响内存缓冲。Subscribe
// 为 WebSocket 日志流提供实时推送。
package logsink
