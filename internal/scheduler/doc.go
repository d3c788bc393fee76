// Copyright (c) puppeter-godlike Authors.
// Licensed under the MIT License.

/*
Package scheduler 实现批次调度循环。

# 状态

调度器只有两个状态：Idle 与 Looping。Start 从 Idle 进入 Looping，
若当前没有循环在运行则立即开始第一批；Stop 回到 Idle 并打断批间
等待，但不会取消已经启动的会话，它们自然结束后循环退出。

# 批次

每批开始时读取一次并发上限 N（运行中由 Monitor 通过 WatchLimits /
AdjustLimit 调整，变化只在下一批生效），依次启动至多 N 个会话，
两次启动之间间隔 Stagger。URL 由单调递增的游标轮转选择，跨批次
不重置；代理按批内序号取模选择。全部会话结束后，若仍在运行则等待
BatchDelay 再开始下一批。

单个会话的失败只被记录和计数，不会中断同批的其他会话或循环本身。
*/
package scheduler
