package integration

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/renderflow"
	"github.com/BaSui01/renderflow/audit"
	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/render"
	"github.com/BaSui01/renderflow/testutil"
	"github.com/BaSui01/renderflow/types"
)

// pipelineConfig 返回走完整配置链路的集成测试配置：stub 渲染、
// 文件存储落在临时目录、无重试无批间限速。指标关闭，promauto
// 的默认注册表在同进程重复注册会 panic。
func pipelineConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Run.TotalBudget = 1.0
	cfg.Run.ConfirmationThreshold = 0
	cfg.Run.InterBatchDelay = 0
	cfg.Render.Provider = "stub"
	cfg.Render.Retry.MaxRetries = 0
	cfg.Audit.Store = "file"
	cfg.Audit.Dir = t.TempDir()
	cfg.Audit.Fsync = false
	cfg.Metrics.Enabled = false
	return cfg
}

// cardRequests 构造 n 个卡面请求，ID 形如 card-001，单价 $0.04。
func cardRequests(n int) []types.GenerationRequest {
	out := make([]types.GenerationRequest, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, testutil.Request(
			fmt.Sprintf("card-%03d", i), types.AssetCard, types.AmountFromDollars(0.04)))
	}
	return out
}

// TestPipeline_RunPersistsAndResumes 覆盖一次完整的生产路径：
// 配置装配引擎、带失败的首跑、独立重开存储核对流水、续跑只补漏。
func TestPipeline_RunPersistsAndResumes(t *testing.T) {
	cfg := pipelineConfig(t)
	logger := zaptest.NewLogger(t)
	requests := cardRequests(6)

	// ---- 首跑：card-004 渲染失败，其余成功 ----
	flaky := render.NewStubRenderer()
	flaky.FailIDs = map[string]bool{"card-004": true}

	first, err := renderflow.FromConfig(cfg, logger,
		renderflow.WithRunID("itg-run-001"),
		renderflow.WithRenderer(flaky))
	require.NoError(t, err)

	report, err := first.Run(testutil.TestContext(t), requests)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	require.NotNil(t, report)
	assert.Equal(t, "itg-run-001", report.RunID)
	assert.Equal(t, 6, report.TotalRequested)
	assert.Equal(t, 5, report.Generated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Skipped)
	assert.False(t, report.Halted)
	assert.Equal(t, types.AmountFromDollars(0.20), report.TotalCost, "只为成功的 5 件付费")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "card-004", report.Failures[0].RequestID)

	// ---- 引擎关闭后从同一目录独立重开存储，核对落盘内容 ----
	store, err := audit.NewTrailStore(renderflow.BuildStoreConfig(cfg.Audit), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := testutil.TestContext(t)

	saved, err := store.Report(ctx, "itg-run-001")
	require.NoError(t, err)
	assert.Equal(t, report.Generated, saved.Generated)
	assert.Equal(t, report.TotalCost, saved.TotalCost)

	done, err := store.CompletedRequests(ctx, "itg-run-001")
	require.NoError(t, err)
	assert.Len(t, done, 5)
	assert.False(t, done["card-004"], "失败请求不算完成，续跑要重渲")

	results, err := store.Results(ctx, "itg-run-001")
	require.NoError(t, err)
	assert.Len(t, results, 6)

	entries, err := store.Entries(ctx, "itg-run-001")
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "账本流水必须逐条落盘")

	// ---- 续跑：健康渲染器只应收到首跑失败的那一件 ----
	healthy := render.NewStubRenderer()
	second, err := renderflow.FromConfig(cfg, logger,
		renderflow.WithResumeFrom("itg-run-001"),
		renderflow.WithRenderer(healthy))
	require.NoError(t, err)

	resumed, err := second.Run(testutil.TestContext(t), requests)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	require.NotNil(t, resumed)
	assert.True(t, strings.HasPrefix(resumed.RunID, "run-"), "续跑是新运行，自动分配 ID")
	assert.Equal(t, 6, resumed.TotalRequested)
	assert.Equal(t, 5, resumed.Skipped)
	assert.Equal(t, 1, resumed.Generated)
	assert.Equal(t, 0, resumed.Failed)
	assert.Equal(t, types.AmountFromDollars(0.04), resumed.TotalCost)

	require.Equal(t, 1, healthy.CallCount())
	assert.Equal(t, "card-004", healthy.Calls()[0].RefID)
}

// TestPipeline_AdmissionDeniedIsAuditable 验证整体拒绝也走完审计：
// 错误带上限编码，报告把全部请求记为跳过并落盘。
func TestPipeline_AdmissionDeniedIsAuditable(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Run.MaxTotalItems = 2
	logger := zaptest.NewLogger(t)

	eng, err := renderflow.FromConfig(cfg, logger, renderflow.WithRunID("itg-run-002"))
	require.NoError(t, err)

	report, err := eng.Run(testutil.TestContext(t), cardRequests(3))
	require.NoError(t, eng.Close())

	require.Error(t, err)
	assert.Equal(t, types.ErrCeilingExceeded, types.GetErrorCode(err))
	require.NotNil(t, report, "拒绝也要出具报告")
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, types.Amount(0), report.TotalCost)

	store, err := audit.NewTrailStore(renderflow.BuildStoreConfig(cfg.Audit), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	saved, err := store.Report(testutil.TestContext(t), "itg-run-002")
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Skipped)
}

// TestPipeline_SavesInlineArtifacts 验证内联产物经落盘装饰器写到
// 磁盘后，报告里的引用指向真实文件。
func TestPipeline_SavesInlineArtifacts(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("png-bytes-for-integration")

	inline := render.NewStubRenderer()
	inline.RenderFn = func(_ context.Context, req *render.Request) (*render.Artifact, error) {
		return &render.Artifact{
			B64Data:  base64.StdEncoding.EncodeToString(payload),
			Provider: "stub",
			Model:    "stub-model",
		}, nil
	}
	renderer := render.NewSavingRenderer(inline, dir, zaptest.NewLogger(t))

	eng, err := renderflow.New(
		renderflow.WithRenderer(renderer),
		renderflow.WithRunID("itg-run-003"),
		renderflow.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	requests := []types.GenerationRequest{
		testutil.Request("cover-001", types.AssetCover, types.AmountFromDollars(0.08)),
		testutil.Request("cover-002", types.AssetCover, types.AmountFromDollars(0.08)),
	}
	report, err := eng.Run(testutil.TestContext(t), requests)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Generated)
	require.Len(t, report.Artifacts, 2)
	for _, art := range report.Artifacts {
		assert.Equal(t, filepath.Join(dir, art.Filename), art.Reference)
		got, err := os.ReadFile(art.Reference)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}
