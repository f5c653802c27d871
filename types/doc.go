// Copyright (c) RenderFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 RenderFlow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 budget、gate、compose、
engine、audit 等上层模块提供统一的类型契约。所有跨包共享的值对象、枚举
和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Amount            — 定点金额（int64 微美元），杜绝浮点累积误差
  - AssetType         — 资产类型枚举（cover / card / icon / illustration）
  - GenerationRequest — 不可变的生成请求（提示词、目标文件名、预估单价）
  - Batch             — 同类型请求的有界批次，含声明成本与批次状态
  - GenerationResult  — 单请求的最终结果（generated / failed / skipped）
  - AuditEntry        — 账本流水条目（reserve / commit / release 等），只写一次
  - RunReport         — 运行报告（成功率、总花费、失败清单、产物清单）
  - Error / ErrorCode — 结构化错误体系，含 Retryable 与 Provider 标记

# 设计约束

  - 所有金额运算使用 Amount 整数算术，浮点仅出现在展示层。
  - GenerationRequest 一旦通过准入便不再修改；Batch 仅由执行器变更状态。
  - AuditEntry 与 GenerationResult 均为追加写，落盘后不可变。

# 错误工具链

  - 常用错误构造：NewValidationError / NewBudgetExceededError / NewGenerationError
  - 判定辅助：IsBudgetExceeded / IsValidation / IsFatal / IsRetryable / GetErrorCode
*/
package types
