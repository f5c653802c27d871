// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 compose 把准入后的请求列表组合为执行批次。

# 概述

批次是执行器的调度单元：同一资产类型的请求按提交顺序切成不超过
batchSize 的连续片段，每个批次携带声明成本（成员预估单价之和），
供执行器在启动前做负担能力预检。跨类型顺序按首次出现的类型排序，
组合过程绝不重排请求，优先级排序是调用方的事。

# 核心接口

  - Composer：Compose 组合全量请求；ComposeExcluding 在组合前剔除
    已完成的请求 ID，用于断点续跑。
  - SortByPriority：稳定排序辅助函数，优先级高者在前，供调用方在
    组合前自行使用。

# 使用方式

	composer := compose.NewComposer(compose.Config{DefaultBatchSize: 5}, logger)
	batches := composer.Compose(admission.Valid)
	// 续跑：
	batches, skipped := composer.ComposeExcluding(admission.Valid, completed)
*/
package compose
