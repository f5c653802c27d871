// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 5.00, cfg.Run.TotalBudget)
	assert.Equal(t, "openai", cfg.Render.Provider)
	assert.Equal(t, "file", cfg.Audit.Store)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
run:
  total_budget: 12.50
  confirmation_threshold: 3
  approval_timeout: 90s
  global_concurrency_limit: 8
  batch_sizes:
    cover: 2

gate:
  min_prompt_length: 16
  blocklist: ["nsfw", "gore"]
  case_sensitive: true

render:
  model: "dall-e-2"
  quality: "hd"
  retry:
    max_retries: 5
    initial_delay: 500ms

audit:
  store: "memory"

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 12.50, cfg.Run.TotalBudget)
	assert.Equal(t, 3, cfg.Run.ConfirmationThreshold)
	assert.Equal(t, 90*time.Second, cfg.Run.ApprovalTimeout)
	assert.Equal(t, 8, cfg.Run.GlobalConcurrencyLimit)

	// 批次大小按键合并：覆盖 cover，其余保留默认
	assert.Equal(t, 2, cfg.Run.BatchSizes["cover"])
	assert.Equal(t, 10, cfg.Run.BatchSizes["card"])

	assert.Equal(t, 16, cfg.Gate.MinPromptLength)
	assert.Equal(t, []string{"nsfw", "gore"}, cfg.Gate.Blocklist)
	assert.True(t, cfg.Gate.CaseSensitive)

	assert.Equal(t, "dall-e-2", cfg.Render.Model)
	assert.Equal(t, "hd", cfg.Render.Quality)
	assert.Equal(t, 5, cfg.Render.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Render.Retry.InitialDelay)
	// 未覆盖的嵌套字段保留默认
	assert.Equal(t, 30*time.Second, cfg.Render.Retry.MaxDelay)

	assert.Equal(t, "memory", cfg.Audit.Store)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	// 设置环境变量
	envVars := map[string]string{
		"RENDERFLOW_RUN_TOTAL_BUDGET":           "3.25",
		"RENDERFLOW_RUN_CONFIRMATION_THRESHOLD": "5",
		"RENDERFLOW_RUN_APPROVAL_TIMEOUT":       "45s",
		"RENDERFLOW_GATE_BLOCKLIST":             "nsfw, gore",
		"RENDERFLOW_RENDER_API_KEY":             "sk-test",
		"RENDERFLOW_RENDER_OUTPUT_DIR":          "/tmp/artifacts",
		"RENDERFLOW_RENDER_RETRY_MAX_RETRIES":   "7",
		"RENDERFLOW_AUDIT_STORE":                "redis",
		"RENDERFLOW_AUDIT_REDIS_HOST":           "redis.internal",
		"RENDERFLOW_LOG_LEVEL":                  "warn",
		"RENDERFLOW_METRICS_LISTEN_ADDR":        ":9090",
	}

	// 设置环境变量
	for k, v := range envVars {
		os.Setenv(k, v)
	}
	// 清理环境变量
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	// 加载配置
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	// 验证环境变量覆盖了默认值
	assert.Equal(t, 3.25, cfg.Run.TotalBudget)
	assert.Equal(t, 5, cfg.Run.ConfirmationThreshold)
	assert.Equal(t, 45*time.Second, cfg.Run.ApprovalTimeout)
	assert.Equal(t, []string{"nsfw", "gore"}, cfg.Gate.Blocklist)
	assert.Equal(t, "sk-test", cfg.Render.APIKey)
	assert.Equal(t, "/tmp/artifacts", cfg.Render.OutputDir)
	assert.Equal(t, 7, cfg.Render.Retry.MaxRetries)
	assert.Equal(t, "redis", cfg.Audit.Store)
	assert.Equal(t, "redis.internal", cfg.Audit.Redis.Host)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Metrics.ListenAddr)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
run:
  total_budget: 20.00
render:
  model: "yaml-model"
  api_key: "yaml-key"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 设置环境变量（应该覆盖 YAML）
	os.Setenv("RENDERFLOW_RUN_TOTAL_BUDGET", "7.50")
	os.Setenv("RENDERFLOW_RENDER_API_KEY", "env-key")
	defer func() {
		os.Unsetenv("RENDERFLOW_RUN_TOTAL_BUDGET")
		os.Unsetenv("RENDERFLOW_RENDER_API_KEY")
	}()

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 环境变量应该覆盖 YAML
	assert.Equal(t, 7.50, cfg.Run.TotalBudget)
	assert.Equal(t, "env-key", cfg.Render.APIKey)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, "yaml-model", cfg.Render.Model)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	// 设置自定义前缀的环境变量
	os.Setenv("MYAPP_RUN_TOTAL_BUDGET", "2.00")
	os.Setenv("MYAPP_RENDER_MODEL", "custom-prefix-model")
	defer func() {
		os.Unsetenv("MYAPP_RUN_TOTAL_BUDGET")
		os.Unsetenv("MYAPP_RENDER_MODEL")
	}()

	// 使用自定义前缀加载
	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 2.00, cfg.Run.TotalBudget)
	assert.Equal(t, "custom-prefix-model", cfg.Render.Model)
}

func TestLoader_WithValidator(t *testing.T) {
	// 添加验证器
	validator := func(cfg *Config) error {
		if cfg.Render.APIKey == "" {
			return assert.AnError
		}
		return nil
	}

	// 默认配置没有 API Key，加载应该失败
	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 显式指定的文件不存在必须报错：
	// 打错 --config 后静默跑默认预算会花真钱
	_, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoader_InvalidYAML(t *testing.T) {
	// 创建无效的 YAML 文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
run:
  total_budget: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	// 加载应该失败
	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "zero budget",
			modify: func(c *Config) {
				c.Run.TotalBudget = 0
			},
			wantErr: true,
		},
		{
			name: "negative budget",
			modify: func(c *Config) {
				c.Run.TotalBudget = -5
			},
			wantErr: true,
		},
		{
			name: "alert threshold above one",
			modify: func(c *Config) {
				c.Run.AlertThresholds = []float64{0.5, 1.2}
			},
			wantErr: true,
		},
		{
			name: "unknown timeout action",
			modify: func(c *Config) {
				c.Run.ApprovalTimeoutAction = "escalate"
			},
			wantErr: true,
		},
		{
			name: "zero global concurrency",
			modify: func(c *Config) {
				c.Run.GlobalConcurrencyLimit = 0
			},
			wantErr: true,
		},
		{
			name: "zero batch size for asset",
			modify: func(c *Config) {
				c.Run.BatchSizes["cover"] = 0
			},
			wantErr: true,
		},
		{
			name: "gate min exceeds max",
			modify: func(c *Config) {
				c.Gate.MinPromptLength = 5000
				c.Gate.MaxPromptLength = 4000
			},
			wantErr: true,
		},
		{
			name: "gate max zero means unlimited",
			modify: func(c *Config) {
				c.Gate.MaxPromptLength = 0
			},
			wantErr: false,
		},
		{
			name: "unknown render provider",
			modify: func(c *Config) {
				c.Render.Provider = "dream-machine"
			},
			wantErr: true,
		},
		{
			name: "unknown render quality",
			modify: func(c *Config) {
				c.Render.Quality = "ultra"
			},
			wantErr: true,
		},
		{
			name: "unknown audit store",
			modify: func(c *Config) {
				c.Audit.Store = "s3"
			},
			wantErr: true,
		},
		{
			name: "file store without dir",
			modify: func(c *Config) {
				c.Audit.Store = "file"
				c.Audit.Dir = ""
			},
			wantErr: true,
		},
		{
			name: "redis store without host",
			modify: func(c *Config) {
				c.Audit.Store = "redis"
				c.Audit.Redis.Host = ""
			},
			wantErr: true,
		},
		{
			name: "unknown log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "metrics enabled without namespace",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Namespace = ""
			},
			wantErr: true,
		},
		{
			name: "sample rate out of range",
			modify: func(c *Config) {
				c.Telemetry.SampleRate = 1.5
			},
			wantErr: true,
		},
		{
			name: "telemetry enabled without endpoint",
			modify: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.OTLPEndpoint = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	// 创建有效配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
run:
  total_budget: 8.00
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 不应该 panic
	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8.00, cfg.Run.TotalBudget)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	// 创建无效配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	// 应该 panic
	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestMustLoad_FailsValidation(t *testing.T) {
	// MustLoad 自带验证，非法预算应该 panic
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
run:
  total_budget: -1
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("RENDERFLOW_RENDER_MODEL", "env-only-model")
	defer os.Unsetenv("RENDERFLOW_RENDER_MODEL")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-model", cfg.Render.Model)
}
