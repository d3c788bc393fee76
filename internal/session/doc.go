// Package session 驱动单个浏览器完成一次访问。
//
// Runner 依次执行：启动隔离的浏览器上下文（代理、UA、语言请求头、
// 屏蔽图片/媒体/字体），带超时导航，随后滚动一次、在视口内随机
// 坐标点击一次，停留一段随机时间后关闭。导航失败只记录并提前结束；
// 单步交互失败记录后继续；其他错误与 panic 在最外层捕获。Run 永远
// 返回 Result，不向调用方抛出。
//
// 浏览器能力由 Launcher/Page 接口抽象，ChromeLauncher 基于 chromedp
// 实现；等待与随机数可注入，便于在没有浏览器的环境中测试。
package session
