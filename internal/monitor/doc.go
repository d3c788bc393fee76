// Package monitor 根据内存用量调整调度器的并发档位。
//
// 采样优先读取 cgroup（v1 memory.usage_in_bytes，v2 memory.current），
// 不可用时回退到 /proc/meminfo 的整机用量。策略只有两档并带滞回区间：
// 超过高水位降到低档，低于低水位升到高档，中间不变。档位变化通过
// Limits 通道发出，由 scheduler.WatchLimits 在下一批开始前生效。
package monitor
