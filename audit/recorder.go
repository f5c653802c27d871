// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/budget"
	"github.com/BaSui01/renderflow/types"
)

// Recorder 把账本流水与工作器结果落入 TrailStore，并为每条流水
// 盖上运行 ID 与追加序号。序号从 1 起，与存储中的追加顺序一致。
//
// 存储追加失败只记日志与丢弃计数，绝不让审计写入反过来中断运行，
// 账本内存状态才是预算的权威来源。
type Recorder struct {
	store  TrailStore
	runID  string
	logger *zap.Logger

	mu  sync.Mutex
	seq uint64

	dropped uint64
}

// NewRecorder 创建绑定到一次运行的记录器。
func NewRecorder(store TrailStore, runID string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:  store,
		runID:  runID,
		logger: logger.With(zap.String("component", "audit_recorder"), zap.String("run_id", runID)),
	}
}

// RunID 返回本次运行的标识。
func (r *Recorder) RunID() string {
	return r.runID
}

// LedgerSink 返回挂到 Ledger.SetSink 的回调。回调在账本临界区内
// 被调用，账本锁已保证了流水顺序，这里按同样顺序编号并落盘。
func (r *Recorder) LedgerSink() budget.Sink {
	return func(entry types.AuditEntry) {
		r.append(context.Background(), entry)
	}
}

// RecordBatchStart 在批次执行前写入 batch_start 标记，金额为批次声明成本。
func (r *Recorder) RecordBatchStart(ctx context.Context, batch *types.Batch) {
	r.append(ctx, types.AuditEntry{
		Op:        types.AuditBatchStart,
		Amount:    batch.DeclaredCost,
		RefID:     batch.ID,
		AssetType: batch.AssetType,
		Detail:    fmt.Sprintf("size=%d", len(batch.Requests)),
		Timestamp: time.Now(),
	})
}

// RecordBatchEnd 在批次结束后写入 batch_end 标记，Detail 带上成功与失败计数。
func (r *Recorder) RecordBatchEnd(ctx context.Context, batch *types.Batch, generated, failed int) {
	r.append(ctx, types.AuditEntry{
		Op:        types.AuditBatchEnd,
		Amount:    batch.DeclaredCost,
		RefID:     batch.ID,
		AssetType: batch.AssetType,
		Detail:    fmt.Sprintf("generated=%d failed=%d", generated, failed),
		Timestamp: time.Now(),
	})
}

// RecordResult 落盘一个请求结果。
func (r *Recorder) RecordResult(ctx context.Context, result types.GenerationResult) {
	result.RunID = r.runID
	if err := r.store.AppendResult(ctx, result); err != nil {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Error("failed to append result",
			zap.String("request_id", result.RequestID),
			zap.Error(err))
	}
}

// BuildReport 从存储读回全部结果，汇总运行报告并保存。
func (r *Recorder) BuildReport(ctx context.Context, startedAt time.Time, totalRequested int) (*types.RunReport, error) {
	results, err := r.store.Results(ctx, r.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}

	report := types.BuildRunReport(r.runID, startedAt, time.Now(), totalRequested, results)
	if err := r.store.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}
	return &report, nil
}

// Dropped 返回因存储故障被丢弃的记录条数。
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) append(ctx context.Context, entry types.AuditEntry) {
	r.mu.Lock()
	r.seq++
	entry.RunID = r.runID
	entry.Seq = r.seq
	err := r.store.AppendEntry(ctx, entry)
	if err != nil {
		r.dropped++
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("failed to append audit entry",
			zap.String("op", string(entry.Op)),
			zap.Uint64("seq", entry.Seq),
			zap.Error(err))
	}
}
