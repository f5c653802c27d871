// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 budget 提供预算账本与成本预留能力，是并发付费生成的唯一共享
财务状态，保证累计花费永不越过运营者设定的上限。

# 概述

付费渲染一旦发生便不可逆（钱已被远端计费），而大量请求并发执行、
随时可能失败。本包通过 reserve → commit / release 两阶段模式把
"检查再扣费" 的经典竞态收敛到单一临界区：预留先行占位，成功后
提交为已花费，失败则原路释放，任何时刻都满足
spent + reserved <= total_budget。

# 核心接口

  - Ledger：预算账本，Reserve / Commit / Release / Status 四个操作，
    全部互斥串行，保证两字段一致性检查与更新原子完成。
  - PriceBook：各资产类型的单价表，Reserve 据此计价。
  - Sink：流水回调，在临界区内按账本变更顺序收到每条 AuditEntry。
  - AlertHandler：用量告警回调，越过配置阈值时触发一次。

# 主要能力

  - 两阶段预留：并发工作器乐观抢占预算，失败自动归还，绝不超支。
  - 不变式自检：每次变更后断言 spent + reserved <= total；一旦违反，
    账本进入中毒状态，后续操作全部失败，运行必须立即中止。
  - 审计一致：流水在临界区内生成，Spent/Reserved 快照与操作原子一致，
    可在任意时点重建花费。
  - 阈值告警：用量百分比越过阈值（默认 80%、95%）时触发 handler，
    每个阈值只告警一次。

# 使用方式

	book := budget.DefaultPriceBook()
	ledger := budget.NewLedger(budget.LedgerConfig{TotalBudget: types.AmountFromDollars(5)}, book, logger)
	ledger.SetSink(func(e types.AuditEntry) { recorder.Append(e) })

	amount, err := ledger.Reserve(types.AssetCard, 1, "req-001")
	if err != nil {
	    // 预算不足，本请求不再外呼
	}
	// 渲染成功:
	_ = ledger.Commit(types.AssetCard, 1, "req-001")
	// 渲染失败:
	_ = ledger.Release(amount, "req-001")
*/
package budget
