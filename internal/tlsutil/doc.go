// Package tlsutil 提供集中式 TLS 客户端配置（TLS 1.2+，仅 AEAD 密码套件），
// 供 Redis 日志镜像与 health 子命令的 HTTP 客户端使用。
package tlsutil
