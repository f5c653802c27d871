// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/audit"
	"github.com/BaSui01/renderflow/budget"
	"github.com/BaSui01/renderflow/internal/metrics"
	"github.com/BaSui01/renderflow/render"
	"github.com/BaSui01/renderflow/types"
)

// WorkerConfig 配置生成工作器。
type WorkerConfig struct {
	// PerRequestTimeout 为单次渲染调用的超时上限。
	PerRequestTimeout time.Duration `json:"per_request_timeout" yaml:"per_request_timeout"`
}

// DefaultWorkerConfig 返回合理的默认值。
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{PerRequestTimeout: 120 * time.Second}
}

// Worker 处理单个请求的完整预算周期：预留、渲染、提交或释放。
// 工作器自身不重试，重试属于渲染器装饰层，到这里的失败即为终局。
type Worker struct {
	ledger   *budget.Ledger
	renderer render.Renderer
	recorder *audit.Recorder
	config   WorkerConfig
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewWorker 创建生成工作器。
func NewWorker(config WorkerConfig, ledger *budget.Ledger, renderer render.Renderer, recorder *audit.Recorder, logger *zap.Logger) *Worker {
	if config.PerRequestTimeout <= 0 {
		config.PerRequestTimeout = DefaultWorkerConfig().PerRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		ledger:   ledger,
		renderer: renderer,
		recorder: recorder,
		config:   config,
		logger:   logger.With(zap.String("component", "generation_worker")),
	}
}

// Process 执行一个请求并返回其不可变结果。结果同时交付记录器；
// 预留在所有路径上恰好结算一次。
func (w *Worker) Process(ctx context.Context, batchID string, req types.GenerationRequest) types.GenerationResult {
	started := time.Now()

	// 取消发生在派发之前：不预留、不渲染。
	if ctx.Err() != nil {
		return w.finish(ctx, types.GenerationResult{
			RequestID:   req.ID,
			BatchID:     batchID,
			AssetType:   req.AssetType,
			Filename:    req.Filename,
			Status:      types.ResultSkipped,
			Reason:      "run cancelled before dispatch",
			Elapsed:     time.Since(started),
			CompletedAt: time.Now(),
		})
	}

	amount, err := w.ledger.Reserve(req.AssetType, 1, req.ID)
	if err != nil {
		w.logger.Warn("reservation denied",
			zap.String("request_id", req.ID),
			zap.String("asset_type", string(req.AssetType)),
			zap.Error(err))
		return w.finish(ctx, w.failedResult(batchID, req, started, err))
	}

	w.metrics.RequestStarted()
	defer w.metrics.RequestFinished()

	// 渲染在脱离取消的上下文中进行：运行被取消时已预留的请求
	// 仍然跑到自己的超时并正常结算，预留不悬挂。
	renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.PerRequestTimeout)
	defer cancel()

	artifact, renderErr := w.safeRender(renderCtx, &render.Request{
		Prompt:    req.Prompt,
		AssetType: req.AssetType,
		RefID:     req.ID,
		Filename:  req.Filename,
	})

	if renderErr != nil {
		if relErr := w.ledger.Release(amount, req.ID); relErr != nil {
			w.logger.Error("release after render failure failed",
				zap.String("request_id", req.ID), zap.Error(relErr))
		}
		w.metrics.RecordRender(w.renderer.Name(), "", req.AssetType, "failed", time.Since(started))
		return w.finish(ctx, w.failedResult(batchID, req, started, renderErr))
	}

	if commitErr := w.ledger.Commit(req.AssetType, 1, req.ID); commitErr != nil {
		// 提交失败意味着账本已中毒；尽力释放，结果按失败记录。
		if relErr := w.ledger.Release(amount, req.ID); relErr != nil {
			w.logger.Error("release after commit failure failed",
				zap.String("request_id", req.ID), zap.Error(relErr))
		}
		w.metrics.RecordRender(w.renderer.Name(), artifact.Model, req.AssetType, "failed", time.Since(started))
		return w.finish(ctx, w.failedResult(batchID, req, started, commitErr))
	}

	w.metrics.RecordRender(w.renderer.Name(), artifact.Model, req.AssetType, "generated", time.Since(started))
	w.metrics.RecordRenderCost(w.renderer.Name(), artifact.Model, amount)

	w.logger.Info("request generated",
		zap.String("request_id", req.ID),
		zap.String("batch_id", batchID),
		zap.String("cost", amount.String()),
		zap.Duration("elapsed", time.Since(started)))

	return w.finish(ctx, types.GenerationResult{
		RequestID:   req.ID,
		BatchID:     batchID,
		AssetType:   req.AssetType,
		Filename:    req.Filename,
		Status:      types.ResultGenerated,
		ActualCost:  amount,
		Reference:   artifactReference(artifact),
		Elapsed:     time.Since(started),
		CompletedAt: time.Now(),
	})
}

// safeRender 调用渲染器并把 panic 转为错误。预留的释放由调用方
// 在错误路径上完成，panic 也不例外。
func (w *Worker) safeRender(ctx context.Context, req *render.Request) (artifact *render.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("renderer panicked",
				zap.String("request_id", req.RefID),
				zap.Any("panic", r))
			artifact = nil
			err = types.NewGenerationError(fmt.Sprintf("renderer panicked: %v", r), nil)
		}
	}()
	return w.renderer.Render(ctx, req)
}

func (w *Worker) failedResult(batchID string, req types.GenerationRequest, started time.Time, cause error) types.GenerationResult {
	code := types.GetErrorCode(cause)
	if code == "" {
		code = types.ErrGeneration
	}
	reason := cause.Error()

	var terr *types.Error
	if errors.As(cause, &terr) {
		reason = terr.Message
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		code = types.ErrRenderTimeout
		reason = fmt.Sprintf("render timed out after %s", w.config.PerRequestTimeout)
	}

	return types.GenerationResult{
		RequestID:   req.ID,
		BatchID:     batchID,
		AssetType:   req.AssetType,
		Filename:    req.Filename,
		Status:      types.ResultFailed,
		ErrorCode:   code,
		Reason:      reason,
		Elapsed:     time.Since(started),
		CompletedAt: time.Now(),
	}
}

// finish 把结果交付记录器后原样返回。交付用脱离取消的上下文，
// 运行取消不丢结果。
func (w *Worker) finish(ctx context.Context, result types.GenerationResult) types.GenerationResult {
	if w.recorder != nil {
		w.recorder.RecordResult(context.WithoutCancel(ctx), result)
	}
	return result
}

func artifactReference(artifact *render.Artifact) string {
	if artifact.URL != "" {
		return artifact.URL
	}
	// 未配置落盘装饰器时，内联产物只留占位引用。
	if artifact.B64Data != "" {
		return "inline-b64"
	}
	return ""
}
