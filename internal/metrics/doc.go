// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖渲染、预算、
批次、准入、审计与数据库六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

所有记录方法对 nil 接收者安全：不需要指标的运行传 nil Collector
即可，调用点无须判空。

# 主要能力

  - 渲染指标：请求总数、耗时、提交成本（美元）、Token 用量，
    按 provider/model/asset_type/status 分组。
  - 预算指标：已花费/预留中/剩余额度 Gauge，账本操作计数，
    用量告警计数。
  - 批次指标：批次总数与耗时，按 asset_type/status 分组；
    在途请求数 Gauge。
  - 准入指标：通过与拒绝计数、人工确认裁决计数。
  - 审计指标：因存储故障丢弃的记录计数。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram，
    按 database/operation 分组。
*/
package metrics
