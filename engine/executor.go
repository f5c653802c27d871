// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/renderflow/audit"
	"github.com/BaSui01/renderflow/budget"
	"github.com/BaSui01/renderflow/internal/metrics"
	"github.com/BaSui01/renderflow/internal/pool"
	"github.com/BaSui01/renderflow/types"
)

// ExecutorConfig 配置批次执行器。
type ExecutorConfig struct {
	// PerBatchConcurrency 为批内并发上限。
	PerBatchConcurrency int `json:"per_batch_concurrency" yaml:"per_batch_concurrency"`

	// InterBatchDelay 为相邻批次开始之间的最小间隔，首个批次不等待。
	InterBatchDelay time.Duration `json:"inter_batch_delay" yaml:"inter_batch_delay"`
}

// DefaultExecutorConfig 返回合理的默认值。
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PerBatchConcurrency: 3,
		InterBatchDelay:     2 * time.Second,
	}
}

// Executor 按序驱动批次，同时受三重资源约束：全局渲染池容量、
// 批内 errgroup 并发上限、批间限速。
type Executor struct {
	config   ExecutorConfig
	ledger   *budget.Ledger
	worker   *Worker
	recorder *audit.Recorder
	pool     *pool.RenderPool
	limiter  *rate.Limiter
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewExecutor 创建批次执行器。
func NewExecutor(config ExecutorConfig, ledger *budget.Ledger, worker *Worker, recorder *audit.Recorder, renderPool *pool.RenderPool, logger *zap.Logger) *Executor {
	if config.PerBatchConcurrency <= 0 {
		config.PerBatchConcurrency = DefaultExecutorConfig().PerBatchConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.InterBatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(config.InterBatchDelay), 1)
	}

	return &Executor{
		config:   config,
		ledger:   ledger,
		worker:   worker,
		recorder: recorder,
		pool:     renderPool,
		limiter:  limiter,
		logger:   logger.With(zap.String("component", "batch_executor")),
	}
}

// ExecuteBatches 依次执行全部批次并返回每个请求的结果。
// 负担能力预检失败即停止运行（fail-fast），剩余请求按跳过记录；
// 返回的 error 仅在账本中毒这类致命条件下非空，部分成功不是错误。
func (e *Executor) ExecuteBatches(ctx context.Context, batches []*types.Batch) ([]types.GenerationResult, error) {
	total := 0
	for _, b := range batches {
		total += len(b.Requests)
	}
	results := make([]types.GenerationResult, 0, total)

	for i, batch := range batches {
		if i > 0 && e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				results = append(results, e.skipBatches(ctx, batches[i:], "run cancelled")...)
				return results, nil
			}
		}
		if ctx.Err() != nil {
			results = append(results, e.skipBatches(ctx, batches[i:], "run cancelled")...)
			return results, nil
		}

		// 负担能力预检：可用额度必须覆盖整个批次的声明成本。
		// 失败即停：本批与其后所有批次都不再尝试。
		status := e.ledger.Status()
		if status.Available < batch.DeclaredCost {
			for _, b := range batches[i:] {
				b.Status = types.BatchBudgetExceeded
			}
			e.logger.Warn("insufficient budget for batch, stopping run",
				zap.String("batch_id", batch.ID),
				zap.String("declared_cost", batch.DeclaredCost.String()),
				zap.String("available", status.Available.String()))
			e.metrics.RecordBatch(batch.AssetType, string(types.BatchBudgetExceeded), 0)
			results = append(results, e.skipBatches(ctx, batches[i:], "insufficient budget for remaining batches")...)
			return results, nil
		}

		batchResults := e.executeBatch(ctx, batch)
		results = append(results, batchResults...)

		if !e.ledger.Healthy() {
			e.logger.Error("ledger poisoned, aborting run", zap.String("batch_id", batch.ID))
			results = append(results, e.skipBatches(ctx, batches[i+1:], "run aborted: ledger invariant violated")...)
			return results, types.NewLedgerInvariantError("run aborted after ledger invariant violation")
		}
	}

	return results, nil
}

func (e *Executor) executeBatch(ctx context.Context, batch *types.Batch) []types.GenerationResult {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.batch",
			trace.WithAttributes(
				attribute.String("batch.id", batch.ID),
				attribute.String("batch.asset_type", string(batch.AssetType)),
				attribute.Int("batch.size", len(batch.Requests)),
			))
		defer span.End()
	}

	batch.Status = types.BatchRunning
	batch.StartedAt = time.Now()
	if e.recorder != nil {
		e.recorder.RecordBatchStart(context.WithoutCancel(ctx), batch)
	}

	e.logger.Info("batch started",
		zap.String("batch_id", batch.ID),
		zap.String("asset_type", string(batch.AssetType)),
		zap.Int("size", len(batch.Requests)),
		zap.String("declared_cost", batch.DeclaredCost.String()))

	results := make([]types.GenerationResult, len(batch.Requests))

	g := new(errgroup.Group)
	g.SetLimit(e.config.PerBatchConcurrency)
	for i := range batch.Requests {
		g.Go(func() error {
			req := batch.Requests[i]
			err := e.pool.Do(ctx, func(jobCtx context.Context) error {
				results[i] = e.worker.Process(jobCtx, batch.ID, req)
				return nil
			})
			if err != nil {
				// 提交被取消或池已关闭，请求未进入执行。
				results[i] = e.skipOne(ctx, batch.ID, req, "run cancelled while queued")
			}
			return nil
		})
	}
	_ = g.Wait()

	generated, failed := 0, 0
	for _, r := range results {
		switch r.Status {
		case types.ResultGenerated:
			generated++
		case types.ResultFailed:
			failed++
		}
	}

	batch.Generated = generated
	batch.Failed = failed
	batch.CompletedAt = time.Now()
	if failed == len(batch.Requests) && len(batch.Requests) > 0 {
		batch.Status = types.BatchFailed
	} else {
		batch.Status = types.BatchCompleted
	}

	if e.recorder != nil {
		e.recorder.RecordBatchEnd(context.WithoutCancel(ctx), batch, generated, failed)
	}
	e.metrics.RecordBatch(batch.AssetType, string(batch.Status), batch.CompletedAt.Sub(batch.StartedAt))

	e.logger.Info("batch finished",
		zap.String("batch_id", batch.ID),
		zap.String("status", string(batch.Status)),
		zap.Int("generated", generated),
		zap.Int("failed", failed))

	return results
}

// skipBatches 为未执行批次的全部请求记录跳过结果。
func (e *Executor) skipBatches(ctx context.Context, batches []*types.Batch, reason string) []types.GenerationResult {
	var skipped []types.GenerationResult
	for _, batch := range batches {
		for _, req := range batch.Requests {
			skipped = append(skipped, e.skipOne(ctx, batch.ID, req, reason))
		}
	}
	return skipped
}

func (e *Executor) skipOne(ctx context.Context, batchID string, req types.GenerationRequest, reason string) types.GenerationResult {
	result := types.GenerationResult{
		RequestID:   req.ID,
		BatchID:     batchID,
		AssetType:   req.AssetType,
		Filename:    req.Filename,
		Status:      types.ResultSkipped,
		Reason:      reason,
		CompletedAt: time.Now(),
	}
	if e.recorder != nil {
		e.recorder.RecordResult(context.WithoutCancel(ctx), result)
	}
	return result
}
