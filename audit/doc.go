// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 audit 提供审计流水的持久化与运行报告。

# 概述

每条账本流水（AuditEntry）与每个请求结果（GenerationResult）在发生
时即追加落盘，不做批量缓冲：运行中途崩溃留下的也是真实的部分记录。
记录器同时支撑续跑：上一次运行已成功生成的请求 ID 集合可交给组合器
剔除，重复调用在请求身份层面幂等，不会重复扣费。

# 核心接口

  - TrailStore：追加与查询的存储接口，四个实现：
    MemoryTrailStore（测试与内嵌）、FileTrailStore（单机生产，JSONL
    追加 + SHA-256 哈希链 + fsync）、GormTrailStore（SQLite /
    PostgreSQL）、RedisTrailStore（分布式部署）。
  - Recorder：挂载到账本 Sink 与工作器结果出口，为流水盖上 RunID
    与追加序号；汇总运行报告。存储追加失败只记日志与计数，绝不
    中断运行（账本才是权威状态）。

# 使用方式

	store, _ := audit.NewFileTrailStore(audit.FileStoreConfig{BaseDir: "./runs"}, logger)
	recorder := audit.NewRecorder(store, runID, logger)
	ledger.SetSink(recorder.LedgerSink())

	// 运行结束:
	report, err := recorder.BuildReport(ctx, startedAt, totalRequested)

	// 续跑:
	done, _ := store.CompletedRequests(ctx, prevRunID)
	batches, skipped := composer.ComposeExcluding(requests, done)
*/
package audit
