// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 gate 提供付费生成的准入控制：内容校验、硬性上限与操作员确认，
确保没有任何请求在未通过安全检查前触达预算。

# 概述

批量付费生成一旦放行便开始花真金白银，准入是最后一道闸门。
本包把候选请求集合划分为 valid / rejected 两部分，聚合预估成本与
预估耗时；当有效数量超过确认阈值时，必须取得显式批准才放行。
两个硬性上限（maxTotalItems / maxTotalCost）独立于账本状态生效，
防止单次运行耗尽本属他人的预算。

# 核心接口

  - Gate：准入闸门，Screen 一次完成校验、限额与确认。
  - Validator：单条提示词校验器，LengthValidator / KeywordValidator
    按序执行，首错即拒。
  - Approver：确认回调接口；AutoApprover 按成本上限自动批准，
    ManualApprover 支持人工 Approve / Reject，FuncApprover 包装函数。
  - Admission：准入结论（是否放行、两侧分区、预估成本与耗时）。

# 超时语义

确认等待有界。超时结局是显式配置项（TimeoutReject / TimeoutApprove），
默认拒绝：未经确认的花费不应被沉默放行。

# 使用方式

	g := gate.NewGate(gate.Config{
	    MaxPromptLength:       4000,
	    Blocklist:             []string{"forbidden"},
	    ConfirmationThreshold: 10,
	    ApprovalTimeout:       2 * time.Minute,
	}, gate.NewAutoApprover(types.AmountFromDollars(2)), logger)

	admission, err := g.Screen(ctx, requests)
	if err != nil || !admission.Admitted {
	    // 整个候选集被拒，不会组建任何批次
	}
*/
package gate
