package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/renderflow/types"
)

// StubRenderer 是可编排的内存渲染器，测试与演练（dry-run）使用。
// 不产生任何外呼与费用。
type StubRenderer struct {
	// Latency 每次渲染的模拟耗时。
	Latency time.Duration

	// FailIDs 中的 RefID 渲染失败；FailRetryable 控制失败是否可重试。
	FailIDs       map[string]bool
	FailRetryable bool

	// RenderFn 非空时完全接管渲染，便于按用例编排行为。
	RenderFn func(ctx context.Context, req *Request) (*Artifact, error)

	mu    sync.Mutex
	calls []Request
}

// NewStubRenderer 创建空白桩渲染器：零延迟，全部成功。
func NewStubRenderer() *StubRenderer {
	return &StubRenderer{}
}

// Name 返回实现名称。
func (s *StubRenderer) Name() string { return "stub" }

// Render 按编排返回结果，默认生成占位产物。
func (s *StubRenderer) Render(ctx context.Context, req *Request) (*Artifact, error) {
	s.mu.Lock()
	s.calls = append(s.calls, *req)
	s.mu.Unlock()

	if s.RenderFn != nil {
		return s.RenderFn(ctx, req)
	}

	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return nil, types.NewGenerationError("render cancelled", ctx.Err()).
				WithProvider(s.Name())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewGenerationError("render cancelled", err).
			WithProvider(s.Name())
	}

	if s.FailIDs[req.RefID] {
		return nil, types.NewGenerationError(
			fmt.Sprintf("scripted failure for %s", req.RefID), nil).
			WithProvider(s.Name()).
			WithRetryable(s.FailRetryable)
	}

	return &Artifact{
		URL:       fmt.Sprintf("stub://%s/%s.png", req.AssetType, req.RefID),
		Provider:  s.Name(),
		Model:     "stub-model",
		CreatedAt: time.Now(),
	}, nil
}

// Calls 返回已收到的渲染请求副本，按调用顺序。
func (s *StubRenderer) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount 返回已收到的渲染请求数。
func (s *StubRenderer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
