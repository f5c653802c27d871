// =============================================================================
// RenderFlow 主入口
// =============================================================================
// 预算受控的批量出图流水线命令行，包含运行执行、报告查询、审计库迁移
//
// 使用方法:
//
//	renderflow run --manifest assets.yaml            # 执行一次运行
//	renderflow run --manifest assets.yaml --dry-run  # 只看计划不花钱
//	renderflow run --manifest assets.yaml --yes      # 跳过人工确认
//	renderflow report --run <run-id>                 # 查询历史报告
//	renderflow migrate up                            # 运行数据库迁移
//	renderflow version                               # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/renderflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("RenderFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`RenderFlow - Budgeted Image Generation Pipeline

Usage:
  renderflow <command> [options]

Commands:
  run       Execute a generation run from a manifest
  report    Show the stored report of a previous run
  migrate   Audit database migration commands
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>     Path to configuration file (YAML)
  --manifest <path>   Path to the generation manifest (YAML or JSON)
  --resume <run-id>   Skip requests already generated by a previous run
  --run-id <id>       Fix the run ID instead of generating one
  --output <dir>      Decode inline artifacts into this directory
  --yes               Approve the run without asking
  --dry-run           Screen and plan only; nothing is rendered or billed

Options for 'report':
  --config <path>     Path to configuration file (YAML)
  --run <run-id>      Run ID to look up
  --json              Print the stored report as JSON

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate goto <v>  Migrate to a specific version
  migrate force <v> Force set migration version
  migrate reset     Rollback all migrations

Exit codes:
  0  run finished with every request generated
  1  run finished with failures, or an infrastructure error
  2  run denied at admission (validation, ceiling, approval)

Examples:
  renderflow run --manifest assets.yaml --dry-run
  renderflow run --config renderflow.yaml --manifest assets.yaml --yes
  renderflow run --manifest assets.yaml --resume run-20260823-151544-1a2b3c4d
  renderflow report --run run-20260823-151544-1a2b3c4d
  renderflow migrate up
  renderflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	// 构建 logger
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

// loadConfig 加载并校验配置，失败直接退出。
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
