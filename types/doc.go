// Copyright (c) puppeter-godlike Authors.
// Licensed under the MIT License.

/*
Package types 提供跨包共享的错误类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。session、scheduler、
api/handlers 通过统一的 Error / ErrorCode 交换失败信息，HTTP 层据此
映射状态码，调度器据此记录指标标签。

# 核心类型

  - Error / ErrorCode: 结构化错误，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable（基于 errors.As）
  - 常用构造：NewAlreadyRunningError / NewInvalidRequestError /
    NewNavigationError / NewSessionFatalError
*/
package types
