/*
Package testutil 提供 godlike 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel，
    调度循环和监控都在后台 goroutine 中运行，断言需要轮询
  - 日志断言: AssertLogContains / CountLogLines，用于检查活动日志

# 子包

  - testutil/mocks: MockRunner，可控制耗时、阻塞与失败的会话执行器，
    记录每次调用的 Job 以及最大并发数

# 使用示例

	runner := mocks.NewMockRunner().WithDelay(20 * time.Millisecond)
	sched := scheduler.New(runner, sink, cfg)
	require.NoError(t, sched.Start(scheduler.StartRequest{URLs: urls}))
	testutil.AssertEventuallyTrue(t, func() bool { return runner.CallCount() >= 4 }, 5*time.Second)
*/
package testutil
