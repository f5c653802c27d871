package renderflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/gate"
	"github.com/BaSui01/renderflow/render"
	"github.com/BaSui01/renderflow/types"
)

// stubConfig 返回一份跑测试用的配置：桩渲染器、内存存储、不采集指标。
func stubConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Render.Provider = "stub"
	cfg.Audit.Store = "memory"
	cfg.Metrics.Enabled = false
	return cfg
}

func sampleRequests() []types.GenerationRequest {
	return []types.GenerationRequest{
		{ID: "req-1", AssetType: types.AssetCard, Prompt: "a calm mountain lake at dawn", Filename: "card-01.png"},
		{ID: "req-2", AssetType: types.AssetIcon, Prompt: "minimalist compass rose icon", Filename: "icon-01.png"},
	}
}

func TestNew_RequiresRenderer(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer")
}

func TestNew_Minimal(t *testing.T) {
	eng, err := New(WithRenderer(render.NewStubRenderer()))
	require.NoError(t, err)
	defer eng.Close()

	assert.NotEmpty(t, eng.RunID())
}

func TestFromConfig_NilConfig(t *testing.T) {
	_, err := FromConfig(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestFromConfig_ValidatesFirst(t *testing.T) {
	cfg := stubConfig()
	cfg.Run.TotalBudget = -1

	_, err := FromConfig(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_budget")
}

func TestFromConfig_RunsWithStub(t *testing.T) {
	cfg := stubConfig()
	logger := zaptest.NewLogger(t)

	eng, err := FromConfig(cfg, logger)
	require.NoError(t, err)
	defer eng.Close()

	report, err := eng.Run(context.Background(), sampleRequests())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 2, report.TotalRequested)
	assert.Equal(t, 2, report.Generated)
	assert.Zero(t, report.Failed)
	assert.False(t, report.Halted)
	assert.Positive(t, int64(report.TotalCost))
	assert.Len(t, report.Artifacts, 2)
}

func TestFromConfig_AppliesExtraOptions(t *testing.T) {
	cfg := stubConfig()

	eng, err := FromConfig(cfg, nil, WithRunID("run-fixed"))
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, "run-fixed", eng.RunID())
}

// --- 配置映射 ---

func TestBuildEngineConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Run.TotalBudget = 2.50
	cfg.Run.MaxTotalCost = 1.25
	cfg.Run.ApprovalTimeoutAction = "approve"
	cfg.Run.BatchSizes = map[string]int{"cover": 2}
	cfg.Run.PerBatchConcurrencyLimit = 6
	cfg.Run.InterBatchDelay = 5 * time.Second
	cfg.Run.PerRequestTimeout = 30 * time.Second
	cfg.Gate.Blocklist = []string{"forbidden"}

	ec := BuildEngineConfig(cfg)

	assert.Equal(t, types.AmountFromDollars(2.50), ec.TotalBudget)
	assert.Equal(t, types.AmountFromDollars(1.25), ec.Gate.MaxTotalCost)
	assert.Equal(t, gate.TimeoutApprove, ec.Gate.TimeoutAction)
	assert.Equal(t, []string{"forbidden"}, ec.Gate.Blocklist)
	assert.Equal(t, map[types.AssetType]int{types.AssetCover: 2}, ec.Compose.BatchSizes)
	assert.Equal(t, 6, ec.Executor.PerBatchConcurrency)
	assert.Equal(t, 5*time.Second, ec.Executor.InterBatchDelay)
	assert.Equal(t, 30*time.Second, ec.Worker.PerRequestTimeout)
	assert.Equal(t, cfg.Run.GlobalConcurrencyLimit, ec.GlobalConcurrency)
}

func TestBuildStoreConfig(t *testing.T) {
	ac := config.AuditConfig{
		Store: "redis",
		Dir:   "/tmp/runs",
		Fsync: true,
		DSN:   "file:trail.db",
		Redis: config.RedisConfig{
			Host:      "redis.internal",
			Port:      6380,
			PoolSize:  4,
			KeyPrefix: "rf:",
			TTL:       time.Hour,
		},
	}

	sc := BuildStoreConfig(ac)

	assert.Equal(t, "redis", string(sc.Type))
	assert.Equal(t, "/tmp/runs", sc.File.BaseDir)
	assert.True(t, sc.File.Fsync)
	assert.Equal(t, "file:trail.db", sc.DSN)
	assert.Equal(t, "redis.internal", sc.Redis.Host)
	assert.Equal(t, 6380, sc.Redis.Port)
	assert.Equal(t, 4, sc.Redis.PoolSize)
	assert.Equal(t, "rf:", sc.Redis.KeyPrefix)
	assert.Equal(t, time.Hour, sc.Redis.TTL)
}

func TestBuildRenderer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// 桩渲染器，不带重试
	rc := config.RenderConfig{Provider: "stub"}
	r, err := BuildRenderer(rc, logger)
	require.NoError(t, err)
	assert.IsType(t, &render.StubRenderer{}, r)

	// 重试开启时包一层装饰器
	rc.Retry.MaxRetries = 2
	r, err = BuildRenderer(rc, logger)
	require.NoError(t, err)
	assert.IsType(t, &render.RetryingRenderer{}, r)

	// 输出目录开启时最外层是落盘装饰器
	rc.OutputDir = t.TempDir()
	r, err = BuildRenderer(rc, logger)
	require.NoError(t, err)
	assert.IsType(t, &render.SavingRenderer{}, r)

	// 空提供方走 openai 默认
	r, err = BuildRenderer(config.RenderConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &render.OpenAIRenderer{}, r)

	// 未知提供方报错
	_, err = BuildRenderer(config.RenderConfig{Provider: "dream-machine"}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dream-machine")
}
