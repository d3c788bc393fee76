/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、连接数限制、
优雅关闭与系统信号等待。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供
    Start/Shutdown/WaitForShutdown/RegisterOnShutdown。
  - Config：监听地址、读写与空闲超时、最大请求头、关闭超时、
    最大并发连接数（golang.org/x/net/netutil.LimitListener）。

# 说明

WaitForShutdown 只等待 SIGINT/SIGTERM、服务异常或 ctx 结束，
不主动关闭任何组件。cmd/godlike 在它返回后按固定顺序关闭调度器、
监控、活动日志和 HTTP 服务器。
*/
package server
