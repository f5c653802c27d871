// =============================================================================
// ⚙️ RenderFlow 默认配置
// =============================================================================
// 各模块的默认配置值，与运行时包内默认保持一致：
// 空配置文件跑出来的行为必须和零配置直接构建引擎一样。
// =============================================================================
package config

import "time"

// DefaultConfig 返回完整的默认配置
func DefaultConfig() *Config {
	return &Config{
		Run:       DefaultRunConfig(),
		Gate:      DefaultGateConfig(),
		Render:    DefaultRenderConfig(),
		Audit:     DefaultAuditConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultRunConfig 返回默认运行配置
func DefaultRunConfig() RunConfig {
	return RunConfig{
		TotalBudget:           5.00,
		AlertThresholds:       []float64{0.8, 0.95},
		MaxTotalItems:         0,
		MaxTotalCost:          0,
		ConfirmationThreshold: 10,
		ApprovalTimeout:       2 * time.Minute,
		ApprovalTimeoutAction: "reject",

		GlobalConcurrencyLimit:   4,
		PerBatchConcurrencyLimit: 3,
		InterBatchDelay:          2 * time.Second,
		PerRequestTimeout:        120 * time.Second,

		BatchSizes: map[string]int{
			"cover":        4,
			"card":         10,
			"icon":         10,
			"illustration": 5,
		},
		DefaultBatchSize: 5,
	}
}

// DefaultGateConfig 返回默认闸门配置
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinPromptLength:      8,
		MaxPromptLength:      4000,
		Blocklist:            nil,
		CaseSensitive:        false,
		EstimatedTimePerItem: 10 * time.Second,
	}
}

// DefaultRenderConfig 返回默认渲染配置
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Provider: "openai",
		Model:    "dall-e-3",
		APIKey:   "",
		BaseURL:  "https://api.openai.com",
		Timeout:  120 * time.Second,
		Quality:  "standard",
		Style:    "",
		SizeByAsset: map[string]string{
			"cover":        "1792x1024",
			"card":         "1024x1024",
			"icon":         "1024x1024",
			"illustration": "1792x1024",
		},
		OutputDir: "",
		Retry:     DefaultRetryConfig(),
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// DefaultAuditConfig 返回默认审计配置
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Store: "file",
		Dir:   "./data/runs",
		Fsync: true,
		DSN:   "",
		Redis: DefaultRedisConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:      "localhost",
		Port:      6379,
		Password:  "",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "renderflow:",
		TTL:       0,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:    true,
		Namespace:  "renderflow",
		ListenAddr: "",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "renderflow",
		SampleRate:   0.1,
	}
}
