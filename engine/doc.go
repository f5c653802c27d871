// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 engine 驱动一次完整的生成运行：准入、组合、逐批执行、报告。

# 概述

执行层分三个角色：

  - Engine：运行编排。调用安全门准入、组合器分批，随后交给执行器，
    最后汇总运行报告。支持基于上一次运行的续跑排除。
  - Executor：按序驱动批次。每个批次执行前做负担能力预检
    （账本可用额度 >= 批次声明成本），不足即标记 budget_exceeded
    并停止整个运行；批内并发受 errgroup 上限约束，全局在途渲染数
    受共享渲染池约束；批与批之间按配置限速。
  - Worker：单请求的预算纪律。预留 -> 渲染 -> 提交或释放，三步在
    任何退出路径上都不缺席：渲染失败、超时、甚至 panic 都会先释放
    预留再落结果。运行取消后已在途的请求仍在脱离上下文中完成结算，
    预留永不悬挂。

# 使用方式

	eng, err := engine.New(
		engine.WithConfig(cfg),
		engine.WithRenderer(renderer),
		engine.WithApprover(approver),
		engine.WithStore(store),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	report, err := eng.Run(ctx, requests)
*/
package engine
