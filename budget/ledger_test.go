package budget

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/renderflow/testutil"
	"github.com/BaSui01/renderflow/types"
)

// halfDollarBook 让每次预留恰好 $0.50，方便整除断言。
func halfDollarBook() *PriceBook {
	return NewPriceBook(map[types.AssetType]types.Amount{
		types.AssetCover: types.AmountFromDollars(0.50),
	})
}

// collectSink 返回线程安全的流水收集器。
func collectSink() (Sink, func() []types.AuditEntry) {
	var mu sync.Mutex
	var entries []types.AuditEntry
	sink := func(e types.AuditEntry) {
		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
	}
	return sink, func() []types.AuditEntry {
		mu.Lock()
		defer mu.Unlock()
		out := make([]types.AuditEntry, len(entries))
		copy(out, entries)
		return out
	}
}

func TestNewLedger_Defaults(t *testing.T) {
	l := NewLedger(LedgerConfig{TotalBudget: types.AmountFromDollars(1)}, nil, nil)
	require.NotNil(t, l)

	s := l.Status()
	assert.Equal(t, types.AmountFromDollars(1), s.Total)
	assert.Equal(t, types.Amount(0), s.Spent)
	assert.Equal(t, types.Amount(0), s.Reserved)
	assert.Equal(t, types.AmountFromDollars(1), s.Available)
	assert.True(t, l.Healthy())

	// 默认单价表应覆盖全部已知资产类型。
	book := DefaultPriceBook()
	for _, at := range types.AllAssetTypes() {
		_, ok := book.UnitCost(at)
		assert.True(t, ok, "missing price for %s", at)
	}
}

func TestLedger_ReserveCommitCycle(t *testing.T) {
	logger := zaptest.NewLogger(t)
	l := NewLedger(LedgerConfig{TotalBudget: types.AmountFromDollars(1)}, halfDollarBook(), logger)

	amount, err := l.Reserve(types.AssetCover, 1, "req-1")
	require.NoError(t, err)
	assert.Equal(t, types.AmountFromDollars(0.5), amount)

	s := l.Status()
	assert.Equal(t, types.Amount(0), s.Spent)
	assert.Equal(t, types.AmountFromDollars(0.5), s.Reserved)
	assert.Equal(t, types.AmountFromDollars(0.5), s.Available)
	assert.InDelta(t, 50.0, s.PercentUsed, 0.001)

	require.NoError(t, l.Commit(types.AssetCover, 1, "req-1"))

	s = l.Status()
	assert.Equal(t, types.AmountFromDollars(0.5), s.Spent)
	assert.Equal(t, types.Amount(0), s.Reserved)
	assert.Equal(t, types.AmountFromDollars(0.5), s.Available)
}

func TestLedger_ReserveDeniedWhenInsufficient(t *testing.T) {
	l := NewLedger(LedgerConfig{TotalBudget: types.AmountFromDollars(0.5)}, halfDollarBook(), zaptest.NewLogger(t))

	_, err := l.Reserve(types.AssetCover, 1, "req-1")
	require.NoError(t, err)

	// 第二次预留会使 spent+reserved 超过总额，必须被拒绝。
	_, err = l.Reserve(types.AssetCover, 1, "req-2")
	require.Error(t, err)
	assert.True(t, types.IsBudgetExceeded(err))

	// 被拒绝的预留不得改变账本状态。
	s := l.Status()
	assert.Equal(t, types.AmountFromDollars(0.5), s.Reserved)
	assert.Equal(t, types.Amount(0), s.Spent)
	assert.True(t, l.Healthy())
}

func TestLedger_ReleaseReturnsBudget(t *testing.T) {
	l := NewLedger(LedgerConfig{TotalBudget: types.AmountFromDollars(0.5)}, halfDollarBook(), zaptest.NewLogger(t))

	amount, err := l.Reserve(types.AssetCover, 1, "req-1")
	require.NoError(t, err)
	require.NoError(t, l.Release(amount, "req-1"))

	s := l.Status()
	assert.Equal(t, types.Amount(0), s.Reserved)
	assert.Equal(t, types.Amount(0), s.Spent)
	assert.Equal(t, types.AmountFromDollars(0.5), s.Available)

	// 释放后预算可再次预留。
	_, err = l.Reserve(types.AssetCover, 1, "req-2")
	require.NoError(t, err)
}

func TestLedger_ReleaseClampsAtZero(t *testing.T) {
	l := NewLedger(LedgerConfig{TotalBudget: types.AmountFromDollars(1)}, halfDollarBook(), zaptest.NewLogger(t))

	_, err := l.Reserve(types.AssetCover, 1, "req-1")
	require.NoError(t, err)

	// 释放超过当前预留的金额时按预留截断，reserved 不得为负。
	require.NoError(t, l.Release(types.AmountFromDollars(2), "req-1"))
	s := l.Status()
	assert.Equal(t, types.Amount(0), s.Reserved)
	assert.True(t, l.Healthy())

	// 零与负数释放为空操作。
	require.NoError(t, l.Release(0, "req-x"))
	require.NoError(t, l.Release(-1, "req-y"))
}

func TestLedger_CommitWithoutReservePoisons(t *testing.T) {
	l := NewLedger(LedgerConfig{TotalBudget: types.AmountFromDollars(1)}, halfDollarBook(), zaptest.NewLogger(t))

	err := l.Commit(types.AssetCover, 1, "req-1")
	require.Error(t, err)
	assert.True(t, types.IsFatal(err))
	assert.False(t, l.Healthy())

	// 中毒后所有操作都必须失败。
	_, err = l.Reserve(types.AssetCover, 1, "req-2")
	assert.True(t, types.IsFatal(err))
	assert.True(t, types.IsFatal(l.Commit(types.AssetCover, 1, "req-2")))
	assert.True(t, types.IsFatal(l.Release(1, "req-2")))
}

func TestLedger_UnknownAssetType(t *testing.T) {
	l := NewLedger(DefaultLedgerConfig(), halfDollarBook(), zaptest.NewLogger(t))

	_, err := l.Reserve(types.AssetIcon, 1, "req-1")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownAssetType, types.GetErrorCode(err))

	_, err = l.Reserve(types.AssetCover, 0, "req-2")
	assert.True(t, types.IsValidation(err))
	_, err = l.Reserve(types.AssetCover, -3, "req-3")
	assert.True(t, types.IsValidation(err))
}

func TestLedger_SinkReceivesOrderedEntries(t *testing.T) {
	sink, entries := collectSink()
	l := NewLedger(LedgerConfig{TotalBudget: types.AmountFromDollars(1)}, halfDollarBook(), zaptest.NewLogger(t))
	l.SetSink(sink)

	amount, err := l.Reserve(types.AssetCover, 1, "req-1")
	require.NoError(t, err)
	require.NoError(t, l.Commit(types.AssetCover, 1, "req-1"))

	amount2, err := l.Reserve(types.AssetCover, 1, "req-2")
	require.NoError(t, err)
	require.NoError(t, l.Release(amount2, "req-2"))

	got := entries()
	require.Len(t, got, 4)

	assert.Equal(t, types.AuditReserve, got[0].Op)
	assert.Equal(t, amount, got[0].Amount)
	assert.Equal(t, "req-1", got[0].RefID)
	assert.Equal(t, types.Amount(0), got[0].Spent)
	assert.Equal(t, amount, got[0].Reserved)

	assert.Equal(t, types.AuditCommit, got[1].Op)
	assert.Equal(t, amount, got[1].Spent)
	assert.Equal(t, types.Amount(0), got[1].Reserved)

	assert.Equal(t, types.AuditReserve, got[2].Op)
	assert.Equal(t, types.AuditRelease, got[3].Op)
	assert.Equal(t, "req-2", got[3].RefID)
	assert.Equal(t, amount, got[3].Spent, "release must not touch spent")
	assert.Equal(t, types.Amount(0), got[3].Reserved)

	// 拒绝的预留不产生流水。
	_, err = l.Reserve(types.AssetCover, 1, "req-3")
	require.Error(t, err)
	assert.Len(t, entries(), 4)
}

func TestLedger_AlertsFireOncePerThreshold(t *testing.T) {
	cfg := LedgerConfig{
		TotalBudget:     types.AmountFromDollars(1),
		AlertThresholds: []float64{0.5},
	}
	l := NewLedger(cfg, halfDollarBook(), zaptest.NewLogger(t))

	var mu sync.Mutex
	var fired []Alert
	l.OnAlert(func(a Alert) {
		mu.Lock()
		fired = append(fired, a)
		mu.Unlock()
	})

	_, err := l.Reserve(types.AssetCover, 1, "req-1")
	require.NoError(t, err)

	testutil.AssertEventuallyTrue(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, 2*time.Second)

	// 继续推进用量不应重复同一阈值的告警。
	require.NoError(t, l.Commit(types.AssetCover, 1, "req-1"))
	_, err = l.Reserve(types.AssetCover, 1, "req-2")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Len(t, fired, 1)
	assert.InDelta(t, 0.5, fired[0].Threshold, 0.001)
	mu.Unlock()
}

func TestLedger_ConcurrentStress(t *testing.T) {
	const (
		slots    = 100
		attempts = 200
	)
	unit := types.AmountFromDollars(0.04)
	book := NewPriceBook(map[types.AssetType]types.Amount{types.AssetCard: unit})
	cfg := LedgerConfig{TotalBudget: unit.Mul(slots)}
	l := NewLedger(cfg, book, zap.NewNop())

	sink, entries := collectSink()
	l.SetSink(sink)

	var wg sync.WaitGroup
	var granted, denied, committed, released sync.Map
	var unexpected sync.Map
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount, err := l.Reserve(types.AssetCard, 1, "req")
			if err != nil {
				if !types.IsBudgetExceeded(err) {
					unexpected.Store(i, err)
					return
				}
				denied.Store(i, true)
				return
			}
			granted.Store(i, true)
			if i%2 == 0 {
				if err := l.Commit(types.AssetCard, 1, "req"); err != nil {
					unexpected.Store(i, err)
					return
				}
				committed.Store(i, true)
			} else {
				if err := l.Release(amount, "req"); err != nil {
					unexpected.Store(i, err)
					return
				}
				released.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	unexpected.Range(func(i, err any) bool {
		t.Fatalf("goroutine %v: unexpected error: %v", i, err)
		return false
	})

	count := func(m *sync.Map) int {
		n := 0
		m.Range(func(_, _ any) bool { n++; return true })
		return n
	}

	s := l.Status()
	assert.Equal(t, types.Amount(0), s.Reserved, "all reservations must be settled")
	assert.Equal(t, unit.Mul(count(&committed)), s.Spent, "spent must equal committed amounts exactly")
	assert.True(t, l.Healthy())

	// 释放归还的额度允许后来者占用，授予数因此可超过 slots，
	// 但任意时刻的流水快照都必须满足不变式。
	assert.GreaterOrEqual(t, count(&granted), slots)
	assert.Equal(t, attempts, count(&granted)+count(&denied))
	for _, e := range entries() {
		assert.GreaterOrEqual(t, e.Spent, types.Amount(0))
		assert.GreaterOrEqual(t, e.Reserved, types.Amount(0))
		assert.LessOrEqual(t, e.Spent+e.Reserved, cfg.TotalBudget,
			"invariant violated in audit snapshot: %+v", e)
	}
}
