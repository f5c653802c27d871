// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

package engine

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/audit"
	"github.com/BaSui01/renderflow/budget"
	"github.com/BaSui01/renderflow/gate"
	"github.com/BaSui01/renderflow/internal/metrics"
	"github.com/BaSui01/renderflow/render"
)

// Option 配置引擎的可选项。
type Option func(*engineOptions)

type engineOptions struct {
	config     Config
	runID      string
	renderer   render.Renderer
	approver   gate.Approver
	store      audit.TrailStore
	storeOwned bool
	priceBook  *budget.PriceBook
	metrics    *metrics.Collector
	tracer     trace.Tracer
	logger     *zap.Logger
}

// WithConfig 设置运行配置。
func WithConfig(config Config) Option {
	return func(o *engineOptions) { o.config = config }
}

// WithRunID 指定运行 ID，不指定时自动生成。
func WithRunID(runID string) Option {
	return func(o *engineOptions) { o.runID = runID }
}

// WithResumeFrom 指定要续跑的运行 ID，在已设置的配置之上生效。
func WithResumeFrom(runID string) Option {
	return func(o *engineOptions) { o.config.ResumeFrom = runID }
}

// WithRenderer 设置渲染器，必选。
func WithRenderer(renderer render.Renderer) Option {
	return func(o *engineOptions) { o.renderer = renderer }
}

// WithApprover 设置人工确认回调。不设置时，超过确认阈值的运行
// 将被整体拒绝。
func WithApprover(approver gate.Approver) Option {
	return func(o *engineOptions) { o.approver = approver }
}

// WithStore 设置审计存储。不设置时使用内存存储，引擎负责关闭
// 自建的存储，注入的存储由调用方管理生命周期。
func WithStore(store audit.TrailStore) Option {
	return func(o *engineOptions) {
		o.store = store
		o.storeOwned = false
	}
}

// WithOwnedStore 注入存储并把生命周期移交引擎，Close 时一并关闭。
// 供从配置装配整条流水线、调用方不单独持有存储的场合使用。
func WithOwnedStore(store audit.TrailStore) Option {
	return func(o *engineOptions) {
		o.store = store
		o.storeOwned = true
	}
}

// WithPriceBook 设置账本单价表，不设置时使用默认表。
func WithPriceBook(book *budget.PriceBook) Option {
	return func(o *engineOptions) { o.priceBook = book }
}

// WithMetrics 设置指标收集器，nil 表示不采集。
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *engineOptions) { o.metrics = collector }
}

// WithTracer 设置链路追踪器，nil 表示不追踪。
func WithTracer(tracer trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = tracer }
}

// WithLogger 设置日志器。
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}
