package gate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/renderflow/testutil"
	"github.com/BaSui01/renderflow/types"
)

func approveAll() Approver {
	return ApproverFunc(func(_ context.Context, _ Ticket) (*Decision, error) {
		return &Decision{Approved: true, DecidedBy: "test", Timestamp: time.Now()}, nil
	})
}

func denyAll(reason string) Approver {
	return ApproverFunc(func(_ context.Context, _ Ticket) (*Decision, error) {
		return &Decision{Approved: false, Reason: reason, Timestamp: time.Now()}, nil
	})
}

func blockUntilDone() Approver {
	return ApproverFunc(func(ctx context.Context, _ Ticket) (*Decision, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

// =============================================================================
// 🧪 准入筛查测试
// =============================================================================

func TestGate_PartitionsValidAndRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Blocklist = []string{"forbidden"}
	g := NewGate(cfg, nil, zaptest.NewLogger(t))

	unit := types.AmountFromDollars(0.04)
	requests := []types.GenerationRequest{
		testutil.Request("ok-1", types.AssetCard, unit),
		{ID: "bad-empty", AssetType: types.AssetCard, Filename: "x.png", EstimatedUnitCost: unit},
		{ID: "bad-short", AssetType: types.AssetCard, Prompt: "tiny", Filename: "y.png", EstimatedUnitCost: unit},
		{ID: "bad-keyword", AssetType: types.AssetCard, Prompt: "a strictly forbidden scene", Filename: "z.png", EstimatedUnitCost: unit},
		testutil.Request("ok-2", types.AssetCover, types.AmountFromDollars(0.08)),
	}

	admission, err := g.Screen(testutil.TestContext(t), requests)
	require.NoError(t, err)
	assert.True(t, admission.Admitted)

	require.Len(t, admission.Valid, 2)
	assert.Equal(t, "ok-1", admission.Valid[0].ID)
	assert.Equal(t, "ok-2", admission.Valid[1].ID)

	require.Len(t, admission.Rejected, 3)
	reasons := map[string]string{}
	for _, r := range admission.Rejected {
		reasons[r.Request.ID] = r.Reason
	}
	assert.Contains(t, reasons["bad-empty"], "prompt is required")
	assert.Contains(t, reasons["bad-short"], "below minimum")
	assert.Contains(t, reasons["bad-keyword"], "forbidden")

	// 预估成本只计有效请求。
	assert.Equal(t, types.AmountFromDollars(0.12), admission.EstimatedCost)
	assert.Equal(t, 2*cfg.EstimatedTimePerItem, admission.EstimatedDuration)
}

func TestGate_FirstFailureWins(t *testing.T) {
	// 结构校验先于内容校验：空提示词报 required 而不是长度。
	cfg := DefaultConfig()
	g := NewGate(cfg, nil, zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t), []types.GenerationRequest{
		{ID: "r1", AssetType: types.AssetIcon, Prompt: "   ", Filename: "a.png"},
	})
	require.NoError(t, err)
	assert.False(t, admission.Admitted)
	require.Len(t, admission.Rejected, 1)
	assert.Contains(t, admission.Rejected[0].Reason, "prompt is required")
}

func TestGate_EmptyValidSetDenied(t *testing.T) {
	g := NewGate(DefaultConfig(), approveAll(), zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t), nil)
	require.NoError(t, err)
	assert.False(t, admission.Admitted)
	assert.Equal(t, "no valid requests after validation", admission.Reason)
}

func TestGate_ItemCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalItems = 5
	cfg.ConfirmationThreshold = 1
	// 批准者无条件放行，仍应被硬性上限拦下。
	g := NewGate(cfg, approveAll(), zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(6, types.AssetIcon, types.AmountFromDollars(0.02)))
	require.Error(t, err)
	assert.Equal(t, types.ErrCeilingExceeded, types.GetErrorCode(err))
	assert.False(t, admission.Admitted)
	assert.Len(t, admission.Valid, 6)

	admission, err = g.Screen(testutil.TestContext(t),
		testutil.Requests(5, types.AssetIcon, types.AmountFromDollars(0.02)))
	require.NoError(t, err)
	assert.True(t, admission.Admitted)
}

func TestGate_CostCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTotalCost = types.AmountFromDollars(0.10)
	g := NewGate(cfg, approveAll(), zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(3, types.AssetCard, types.AmountFromDollars(0.04)))
	require.Error(t, err)
	assert.Equal(t, types.ErrCeilingExceeded, types.GetErrorCode(err))
	assert.False(t, admission.Admitted)

	// 正好等于上限不算超。
	admission, err = g.Screen(testutil.TestContext(t),
		testutil.Requests(5, types.AssetIcon, types.AmountFromDollars(0.02)))
	require.NoError(t, err)
	assert.True(t, admission.Admitted)
}

func TestGate_ThresholdStrictlyExceeds(t *testing.T) {
	var calls atomic.Int32
	counting := ApproverFunc(func(_ context.Context, _ Ticket) (*Decision, error) {
		calls.Add(1)
		return &Decision{Approved: true}, nil
	})

	cfg := DefaultConfig()
	cfg.ConfirmationThreshold = 10
	g := NewGate(cfg, counting, zaptest.NewLogger(t))

	// 恰好等于阈值：无需确认。
	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(10, types.AssetCard, types.AmountFromDollars(0.04)))
	require.NoError(t, err)
	assert.True(t, admission.Admitted)
	assert.Equal(t, int32(0), calls.Load())

	// 超过阈值一件：必须确认。
	admission, err = g.Screen(testutil.TestContext(t),
		testutil.Requests(11, types.AssetCard, types.AmountFromDollars(0.04)))
	require.NoError(t, err)
	assert.True(t, admission.Admitted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGate_ZeroThresholdNeverConfirms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmationThreshold = 0
	g := NewGate(cfg, denyAll("should never be asked"), zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(50, types.AssetIcon, types.AmountFromDollars(0.02)))
	require.NoError(t, err)
	assert.True(t, admission.Admitted)
}

func TestGate_ApprovalDenied(t *testing.T) {
	// 12 件、阈值 10、审批拒绝：整体拒绝，零准入。
	cfg := DefaultConfig()
	g := NewGate(cfg, denyAll("not this quarter"), zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(12, types.AssetCard, types.AmountFromDollars(0.04)))
	require.Error(t, err)
	assert.Equal(t, types.ErrApprovalRejected, types.GetErrorCode(err))
	assert.False(t, admission.Admitted)
	assert.Contains(t, admission.Reason, "not this quarter")
}

func TestGate_NilApproverOverThreshold(t *testing.T) {
	cfg := DefaultConfig()
	g := NewGate(cfg, nil, zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(11, types.AssetCard, types.AmountFromDollars(0.04)))
	require.Error(t, err)
	assert.Equal(t, types.ErrApprovalRejected, types.GetErrorCode(err))
	assert.False(t, admission.Admitted)
}

func TestGate_ApprovalTimeoutRejectsByDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApprovalTimeout = 50 * time.Millisecond
	g := NewGate(cfg, blockUntilDone(), zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(11, types.AssetCard, types.AmountFromDollars(0.04)))
	require.Error(t, err)
	assert.Equal(t, types.ErrApprovalTimeout, types.GetErrorCode(err))
	assert.False(t, admission.Admitted)
}

func TestGate_ApprovalTimeoutApproveWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApprovalTimeout = 50 * time.Millisecond
	cfg.TimeoutAction = TimeoutApprove
	g := NewGate(cfg, blockUntilDone(), zaptest.NewLogger(t))

	admission, err := g.Screen(testutil.TestContext(t),
		testutil.Requests(11, types.AssetCard, types.AmountFromDollars(0.04)))
	require.NoError(t, err)
	assert.True(t, admission.Admitted)
}

func TestGate_CancelledRunNeverAutoApproves(t *testing.T) {
	// 父 context 取消不是超时，TimeoutApprove 也不该放行。
	cfg := DefaultConfig()
	cfg.ApprovalTimeout = time.Minute
	cfg.TimeoutAction = TimeoutApprove
	g := NewGate(cfg, blockUntilDone(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	admission, err := g.Screen(ctx,
		testutil.Requests(11, types.AssetCard, types.AmountFromDollars(0.04)))
	require.Error(t, err)
	assert.Equal(t, types.ErrApprovalRejected, types.GetErrorCode(err))
	assert.False(t, admission.Admitted)
}

func TestGate_TicketSummary(t *testing.T) {
	var got Ticket
	capture := ApproverFunc(func(_ context.Context, ticket Ticket) (*Decision, error) {
		got = ticket
		return &Decision{Approved: true}, nil
	})

	cfg := DefaultConfig()
	cfg.ConfirmationThreshold = 1
	cfg.EstimatedTimePerItem = 10 * time.Second
	g := NewGate(cfg, capture, zaptest.NewLogger(t))

	requests := testutil.RequestsOfTypes(types.AmountFromDollars(0.04),
		types.AssetCard, types.AssetCard, types.AssetCover)
	_, err := g.Screen(testutil.TestContext(t), requests)
	require.NoError(t, err)

	assert.Equal(t, 3, got.ValidCount)
	assert.Equal(t, types.AmountFromDollars(0.12), got.EstimatedCost)
	assert.Equal(t, 30*time.Second, got.EstimatedDuration)
	assert.Equal(t, 2, got.CountsByType[types.AssetCard])
	assert.Equal(t, 1, got.CountsByType[types.AssetCover])
	assert.NotEmpty(t, got.ID)
}
