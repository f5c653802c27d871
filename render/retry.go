package render

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// RetryPolicy 定义渲染重试策略。
type RetryPolicy struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	// Jitter 添加 ±25% 随机抖动，防止并发工作器同步重试。
	Jitter bool `json:"jitter" yaml:"jitter"`
}

// DefaultRetryPolicy 返回适合图像渲染外呼的默认策略。
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryingRenderer 以指数退避包装另一个 Renderer。
// 只重试被标记为可重试的错误（网络失败、429、5xx）；内容类拒绝
// 重试也不会变好，直接上抛。重试发生在同一笔预算预留之内。
type RetryingRenderer struct {
	inner  Renderer
	policy *RetryPolicy
	logger *zap.Logger
}

// NewRetryingRenderer 创建重试装饰器。policy 为 nil 时用默认策略。
func NewRetryingRenderer(inner Renderer, policy *RetryPolicy, logger *zap.Logger) *RetryingRenderer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryingRenderer{
		inner:  inner,
		policy: policy,
		logger: logger.With(zap.String("component", "retrying_renderer")),
	}
}

// Name 返回被包装实现的名称。
func (r *RetryingRenderer) Name() string { return r.inner.Name() }

// Render 执行渲染，失败时按策略重试。
func (r *RetryingRenderer) Render(ctx context.Context, req *Request) (*Artifact, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Debug("retrying render",
				zap.String("ref_id", req.RefID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, types.NewGenerationError("render retry cancelled", ctx.Err()).
					WithProvider(r.Name())
			case <-time.After(delay):
			}
		}

		artifact, err := r.inner.Render(ctx, req)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("render succeeded after retry",
					zap.String("ref_id", req.RefID),
					zap.Int("attempt", attempt))
			}
			return artifact, nil
		}
		lastErr = err

		if !types.IsRetryable(err) {
			return nil, err
		}
	}

	r.logger.Warn("render retries exhausted",
		zap.String("ref_id", req.RefID),
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr))
	return nil, lastErr
}

func (r *RetryingRenderer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}
