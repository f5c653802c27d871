// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 RenderFlow 命令行程序入口。

# 概述

cmd/renderflow 是 RenderFlow 流水线的可执行入口：读取生成清单
（YAML / JSON），经配置装配出完整引擎后执行一次预算受控的批量
出图运行。支持 YAML 配置文件加载、环境变量覆盖、结构化日志
（zap）、OpenTelemetry 追踪以及 SQL 审计库的版本化迁移。

# 主要能力

  - 子命令：run（执行运行）、report（查询历史报告）、
    migrate（数据库迁移）、version
  - run：--dry-run 只筛查和编排不出图；--yes 跳过人工确认；
    --resume 续跑时剔除已完成请求；--output 内联产物落盘目录
  - 确认：默认在终端交互答复确认单，超时按配置的超时动作处理
  - 信号处理：SIGINT / SIGTERM 取消运行，已预留的请求照常结算，
    报告如实落库
  - 退出码：0 全部成功；1 部分失败或基础设施错误；2 准入拒绝
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
