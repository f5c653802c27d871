// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为数据库审计存储提供连接管理：按 DSN 选择驱动打开
连接，并通过 PoolManager 管理连接池、健康检查与事务重试。

# 概述

Open 识别 DSN 前缀选择 SQLite、PostgreSQL 或 MySQL 驱动，空 DSN
落到共享内存 SQLite，测试与演练零配置可用。PoolManager 封装
GORM 与 database/sql 的连接池参数，后台定时探活并把连接数上报
指标收集器。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，含连接上限、生命周期与健康检查间隔。
  - TransactionFunc：事务回调类型。

# 事务重试

WithTransactionRetry 对死锁、序列化失败（SQLSTATE 40001）、锁
超时与连接级故障做指数退避重试，并发运行同时落盘审计数据时用它
吸收行锁冲突。
*/
package database
