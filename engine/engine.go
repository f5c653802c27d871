// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/audit"
	"github.com/BaSui01/renderflow/budget"
	"github.com/BaSui01/renderflow/compose"
	"github.com/BaSui01/renderflow/gate"
	"github.com/BaSui01/renderflow/internal/metrics"
	"github.com/BaSui01/renderflow/internal/pool"
	"github.com/BaSui01/renderflow/types"
)

// ============================================================================
// 🎯 引擎配置
// ============================================================================

// Config 汇总一次运行的全部可调参数。
type Config struct {
	// TotalBudget 为本次运行的预算上限（微美元）。
	TotalBudget types.Amount `json:"total_budget_micros" yaml:"total_budget_micros"`

	// AlertThresholds 为预算告警阈值（0.0-1.0）。
	AlertThresholds []float64 `json:"alert_thresholds" yaml:"alert_thresholds"`

	// Gate 为准入闸门配置。
	Gate gate.Config `json:"gate" yaml:"gate"`

	// Compose 为批次组建配置。
	Compose compose.Config `json:"compose" yaml:"compose"`

	// Executor 为批次执行配置。
	Executor ExecutorConfig `json:"executor" yaml:"executor"`

	// Worker 为单请求工作器配置。
	Worker WorkerConfig `json:"worker" yaml:"worker"`

	// GlobalConcurrency 为全局渲染池容量，跨批次共享。
	GlobalConcurrency int `json:"global_concurrency" yaml:"global_concurrency"`

	// ResumeFrom 指定要续跑的先前运行 ID。该运行中已生成的请求
	// 会被跳过，不再重复计费。空表示全新运行。
	ResumeFrom string `json:"resume_from" yaml:"resume_from"`
}

// DefaultConfig 返回合理的默认值。
func DefaultConfig() Config {
	return Config{
		TotalBudget:       types.AmountFromDollars(5.0),
		AlertThresholds:   []float64{0.8, 0.95},
		Gate:              gate.DefaultConfig(),
		Compose:           compose.DefaultConfig(),
		Executor:          DefaultExecutorConfig(),
		Worker:            DefaultWorkerConfig(),
		GlobalConcurrency: 4,
	}
}

// ============================================================================
// 📦 引擎
// ============================================================================

// Engine 将准入、组建、执行与审计装配为一条完整的生成流水线。
// 一个引擎实例对应一个运行 ID，Run 只应调用一次。
type Engine struct {
	config Config

	ledger   *budget.Ledger
	gate     *gate.Gate
	composer *compose.Composer
	executor *Executor
	worker   *Worker
	recorder *audit.Recorder
	store    audit.TrailStore
	pool     *pool.RenderPool
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger

	// ownsStore 表示存储由引擎自建，Close 时一并关闭。
	ownsStore bool
	closed    atomic.Bool
}

// New 装配引擎。未显式注入的部件使用默认实现：空操作日志器、
// 内存审计存储、默认单价表、自动生成的运行 ID。渲染器必须注入。
func New(opts ...Option) (*Engine, error) {
	o := &engineOptions{config: DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}

	if o.renderer == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "renderer is required")
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.config.TotalBudget <= 0 {
		o.config.TotalBudget = DefaultConfig().TotalBudget
	}

	ownsStore := o.storeOwned
	if o.store == nil {
		o.store = audit.NewMemoryTrailStore()
		ownsStore = true
	}
	if o.runID == "" {
		o.runID = "run-" + time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	}

	recorder := audit.NewRecorder(o.store, o.runID, o.logger)

	ledger := budget.NewLedger(budget.LedgerConfig{
		TotalBudget:     o.config.TotalBudget,
		AlertThresholds: o.config.AlertThresholds,
	}, o.priceBook, o.logger)
	ledger.SetSink(recorder.LedgerSink())

	collector := o.metrics
	logger := o.logger
	ledger.OnAlert(func(alert budget.Alert) {
		collector.RecordBudgetAlert(fmt.Sprintf("%g", alert.Threshold))
		logger.Warn("budget alert",
			zap.Float64("threshold", alert.Threshold),
			zap.String("spent", alert.Status.Spent.String()),
			zap.String("total", alert.Status.Total.String()),
			zap.String("message", alert.Message))
	})

	renderPool := pool.NewRenderPool(o.config.GlobalConcurrency, o.logger)

	worker := NewWorker(o.config.Worker, ledger, o.renderer, recorder, o.logger)
	worker.metrics = o.metrics

	executor := NewExecutor(o.config.Executor, ledger, worker, recorder, renderPool, o.logger)
	executor.metrics = o.metrics
	executor.tracer = o.tracer

	return &Engine{
		config:    o.config,
		ledger:    ledger,
		gate:      gate.NewGate(o.config.Gate, o.approver, o.logger),
		composer:  compose.NewComposer(o.config.Compose, o.logger),
		executor:  executor,
		worker:    worker,
		recorder:  recorder,
		store:     o.store,
		pool:      renderPool,
		metrics:   o.metrics,
		tracer:    o.tracer,
		logger:    o.logger.With(zap.String("component", "engine"), zap.String("run_id", o.runID)),
		ownsStore: ownsStore,
	}, nil
}

// RunID 返回本次运行的标识。
func (e *Engine) RunID() string {
	return e.recorder.RunID()
}

// BudgetStatus 返回账本当前快照。
func (e *Engine) BudgetStatus() budget.Status {
	return e.ledger.Status()
}

// Run 执行完整流水线：准入、组建、按批执行、汇总报告。
//
// 准入整体拒绝时返回 (report, err) 均非 nil：报告记录全部请求为
// 跳过，错误携带拒绝原因。执行阶段的预算耗尽与上下文取消属于
// 正常结局，报告如实记录且不返回错误；仅账本不变式违例返回错误。
func (e *Engine) Run(ctx context.Context, requests []types.GenerationRequest) (*types.RunReport, error) {
	if e.closed.Load() {
		return nil, types.NewError(types.ErrInvalidConfig, "engine is closed")
	}
	startedAt := time.Now()

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.run", trace.WithAttributes(
			attribute.String("run.id", e.RunID()),
			attribute.Int("run.requests", len(requests)),
		))
		defer span.End()
	}

	e.logger.Info("run started",
		zap.Int("requests", len(requests)),
		zap.String("total_budget", e.config.TotalBudget.String()))

	// ========== 准入 ==========
	admission, screenErr := e.gate.Screen(ctx, requests)
	e.metrics.RecordGateScreen(len(admission.Valid), len(admission.Rejected))

	if screenErr != nil || !admission.Admitted {
		return e.denyRun(ctx, startedAt, requests, admission, screenErr)
	}
	if t := e.config.Gate.ConfirmationThreshold; t > 0 && len(admission.Valid) > t {
		e.metrics.RecordApproval("approved")
	}

	// 单条校验拒绝在获准的运行里记为失败结果,进入报告的失败清单。
	now := time.Now()
	for _, rej := range admission.Rejected {
		e.recorder.RecordResult(ctx, types.GenerationResult{
			RequestID:   rej.Request.ID,
			AssetType:   rej.Request.AssetType,
			Filename:    rej.Request.Filename,
			Status:      types.ResultFailed,
			ErrorCode:   types.ErrValidation,
			Reason:      rej.Reason,
			CompletedAt: now,
		})
	}

	// ========== 组建 ==========
	batches, err := e.composeBatches(ctx, admission.Valid)
	if err != nil {
		return nil, err
	}

	// ========== 执行 ==========
	_, execErr := e.executor.ExecuteBatches(ctx, batches)

	// ========== 汇总 ==========
	noCancel := context.WithoutCancel(ctx)
	report, buildErr := e.recorder.BuildReport(noCancel, startedAt, len(requests))
	if buildErr != nil {
		e.logger.Error("failed to build run report", zap.Error(buildErr))
		if execErr != nil {
			return nil, execErr
		}
		return nil, buildErr
	}

	if haltReason := e.haltReason(batches, execErr); haltReason != "" {
		report.Halted = true
		report.HaltReason = haltReason
		if err := e.store.SaveReport(noCancel, *report); err != nil {
			e.logger.Warn("failed to persist halt flag", zap.Error(err))
		}
	}

	e.logger.Info("run finished",
		zap.Int("generated", report.Generated),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.String("total_cost", report.TotalCost.String()),
		zap.Bool("halted", report.Halted),
		zap.Uint64("audit_drops", e.recorder.Dropped()))
	return report, execErr
}

// Close 释放引擎持有的资源。等待渲染池清空后，关闭引擎自建的
// 存储；注入的存储由调用方关闭。可重复调用。
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.pool.Close()
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

// denyRun 处理准入整体拒绝：全部请求记为跳过并出具报告。
func (e *Engine) denyRun(ctx context.Context, startedAt time.Time, requests []types.GenerationRequest, admission *gate.Admission, screenErr error) (*types.RunReport, error) {
	reason := admission.Reason
	if screenErr != nil {
		var terr *types.Error
		if errors.As(screenErr, &terr) {
			reason = terr.Message
		} else {
			reason = screenErr.Error()
		}
	}
	switch types.GetErrorCode(screenErr) {
	case types.ErrApprovalRejected:
		e.metrics.RecordApproval("rejected")
	case types.ErrApprovalTimeout:
		e.metrics.RecordApproval("timeout")
	}

	e.logger.Warn("run denied admission",
		zap.String("reason", reason),
		zap.Int("valid", len(admission.Valid)),
		zap.Int("rejected", len(admission.Rejected)))

	now := time.Now()
	noCancel := context.WithoutCancel(ctx)
	for _, req := range requests {
		e.recorder.RecordResult(noCancel, types.GenerationResult{
			RequestID:   req.ID,
			AssetType:   req.AssetType,
			Filename:    req.Filename,
			Status:      types.ResultSkipped,
			Reason:      reason,
			CompletedAt: now,
		})
	}

	report, buildErr := e.recorder.BuildReport(noCancel, startedAt, len(requests))
	if buildErr != nil {
		e.logger.Error("failed to build run report", zap.Error(buildErr))
	}
	if screenErr == nil {
		screenErr = types.NewError(types.ErrValidation, reason)
	}
	return report, screenErr
}

// composeBatches 组建批次；ResumeFrom 非空时先从存储载入先前运行
// 的完成集并剔除对应请求。续跑数据读不到时直接失败，静默退化
// 成全量重跑会造成重复计费。
func (e *Engine) composeBatches(ctx context.Context, valid []types.GenerationRequest) ([]*types.Batch, error) {
	if e.config.ResumeFrom == "" {
		return e.composer.Compose(valid), nil
	}

	done, err := e.store.CompletedRequests(ctx, e.config.ResumeFrom)
	if err != nil {
		return nil, types.NewError(types.ErrStoreFailure,
			fmt.Sprintf("cannot load completed requests of run %s", e.config.ResumeFrom)).WithCause(err)
	}

	batches, alreadyDone := e.composer.ComposeExcluding(valid, done)
	if len(alreadyDone) > 0 {
		e.logger.Info("resuming previous run",
			zap.String("resume_from", e.config.ResumeFrom),
			zap.Int("already_completed", len(alreadyDone)))
		now := time.Now()
		reason := fmt.Sprintf("already completed in run %s", e.config.ResumeFrom)
		for _, req := range alreadyDone {
			e.recorder.RecordResult(ctx, types.GenerationResult{
				RequestID:   req.ID,
				AssetType:   req.AssetType,
				Filename:    req.Filename,
				Status:      types.ResultSkipped,
				Reason:      reason,
				CompletedAt: now,
			})
		}
	}
	return batches, nil
}

// haltReason 判定运行是否属于提前停止：账本损坏或负担能力预检失败。
// 上下文取消是调用方的主动决定，不算停止。
func (e *Engine) haltReason(batches []*types.Batch, execErr error) string {
	if execErr != nil {
		var terr *types.Error
		if errors.As(execErr, &terr) {
			return terr.Message
		}
		return execErr.Error()
	}
	for _, b := range batches {
		if b.Status == types.BatchBudgetExceeded {
			return "insufficient budget for remaining batches"
		}
	}
	return ""
}
