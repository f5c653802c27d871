// Package config 提供 RenderFlow 的配置管理功能。
//
// 包含运行预算、准入闸门、渲染后端、审计存储、日志与遥测
// 各节的配置结构和默认值。支持从 YAML 文件和环境变量加载，
// 优先级为 默认值 → 文件 → 环境变量；Validate 在启动前拦截
// 会花冤枉钱的配置错误。
package config
