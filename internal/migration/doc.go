// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理审计库的 Schema 迁移，基于 golang-migrate 实现，
支持 PostgreSQL、MySQL 与 SQLite 三种方言。

# 概述

审计三表（audit_entries、generation_results、run_reports）的建表
SQL 按方言分目录内嵌在本包里，通过 embed.FS 随二进制发布，线上
执行迁移不依赖外部文件。GORM 存储自身的 AutoMigrate 足够开发期
使用，生产库的版本化变更走本包。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 操作集。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例
    与数据库连接管理。
  - Config：迁移配置，包含方言、连接串、版本表名与语句超时。
  - DatabaseType：方言枚举（postgres/mysql/sqlite）。
  - MigrationStatus / MigrationInfo：迁移状态与进度摘要。
  - CLI：renderflow migrate 子命令的终端输出层。

# 驱动选择

SQLite 走 modernc 纯 Go 驱动，与审计存储的 glebarez 方言同源，
整条链路不需要 CGO。PostgreSQL 与 MySQL 的驱动注册由 golang-migrate
的对应子包自带。

# 工厂函数

NewMigratorFromDSN 按 DSN 形态自动推断方言，规则与审计存储的驱动
选择一致；NewMigratorFromURL 用于显式指定方言的场合。空 DSN 会被
拒绝：对一次性内存库做迁移没有意义。
*/
package migration
