// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有记录方法对 nil 接收者安全，
// 未配置指标的运行直接传 nil 即可。
type Collector struct {
	// 渲染指标
	renderRequestsTotal   *prometheus.CounterVec
	renderRequestDuration *prometheus.HistogramVec
	renderCost            *prometheus.CounterVec
	renderPromptTokens    *prometheus.CounterVec

	// 预算指标
	budgetSpent      prometheus.Gauge
	budgetReserved   prometheus.Gauge
	budgetRemaining  prometheus.Gauge
	ledgerOpsTotal   *prometheus.CounterVec
	budgetAlertTotal *prometheus.CounterVec

	// 批次指标
	batchesTotal     *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	// 准入指标
	gateScreenedTotal *prometheus.CounterVec
	approvalsTotal    *prometheus.CounterVec

	// 审计指标
	auditDropsTotal *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 渲染指标
	c.renderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_requests_total",
			Help:      "Total number of render requests",
		},
		[]string{"provider", "model", "asset_type", "status"},
	)

	c.renderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_request_duration_seconds",
			Help:      "Render request duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	c.renderCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_cost_dollars_total",
			Help:      "Total committed render cost in USD",
		},
		[]string{"provider", "model"},
	)

	c.renderPromptTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_prompt_tokens_total",
			Help:      "Total prompt tokens sent to token-billed models",
		},
		[]string{"provider", "model"},
	)

	// 预算指标
	c.budgetSpent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_spent_dollars",
		Help:      "Committed spend in USD",
	})

	c.budgetReserved = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_reserved_dollars",
		Help:      "Outstanding reservations in USD",
	})

	c.budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_remaining_dollars",
		Help:      "Available budget in USD",
	})

	c.ledgerOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Total number of ledger operations",
		},
		[]string{"op"},
	)

	c.budgetAlertTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_alerts_total",
			Help:      "Budget usage alerts fired",
		},
		[]string{"threshold"},
	)

	// 批次指标
	c.batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of batches by final status",
		},
		[]string{"asset_type", "status"},
	)

	c.batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Batch execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"asset_type"},
	)

	c.requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "render_requests_in_flight",
		Help:      "Render requests currently being processed",
	})

	// 准入指标
	c.gateScreenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_screened_total",
			Help:      "Requests screened by the safety gate",
		},
		[]string{"outcome"}, // outcome: valid, rejected
	)

	c.approvalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_approvals_total",
			Help:      "Manual approval decisions",
		},
		[]string{"decision"}, // decision: approved, rejected, timeout
	)

	// 审计指标
	c.auditDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_drops_total",
			Help:      "Audit records dropped due to store failures",
		},
		[]string{"kind"}, // kind: entry, result
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎨 渲染指标记录
// =============================================================================

// RecordRender 记录一次渲染请求的结局与耗时。
func (c *Collector) RecordRender(provider, model string, assetType types.AssetType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.renderRequestsTotal.WithLabelValues(provider, model, string(assetType), status).Inc()
	c.renderRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordRenderCost 记录提交的渲染成本。
func (c *Collector) RecordRenderCost(provider, model string, cost types.Amount) {
	if c == nil {
		return
	}
	c.renderCost.WithLabelValues(provider, model).Add(cost.Dollars())
}

// RecordPromptTokens 记录按 Token 计费模型的提示词用量。
func (c *Collector) RecordPromptTokens(provider, model string, tokens int) {
	if c == nil {
		return
	}
	c.renderPromptTokens.WithLabelValues(provider, model).Add(float64(tokens))
}

// RequestStarted 标记一个请求进入执行。
func (c *Collector) RequestStarted() {
	if c == nil {
		return
	}
	c.requestsInFlight.Inc()
}

// RequestFinished 标记一个请求离开执行。
func (c *Collector) RequestFinished() {
	if c == nil {
		return
	}
	c.requestsInFlight.Dec()
}

// =============================================================================
// 💰 预算指标记录
// =============================================================================

// RecordLedgerOp 记录一次账本操作并刷新预算快照。
func (c *Collector) RecordLedgerOp(op types.AuditOp, spent, reserved, remaining types.Amount) {
	if c == nil {
		return
	}
	c.ledgerOpsTotal.WithLabelValues(string(op)).Inc()
	c.budgetSpent.Set(spent.Dollars())
	c.budgetReserved.Set(reserved.Dollars())
	c.budgetRemaining.Set(remaining.Dollars())
}

// RecordBudgetAlert 记录一次预算用量告警。
func (c *Collector) RecordBudgetAlert(threshold string) {
	if c == nil {
		return
	}
	c.budgetAlertTotal.WithLabelValues(threshold).Inc()
}

// =============================================================================
// 📦 批次指标记录
// =============================================================================

// RecordBatch 记录批次的最终状态与耗时。
func (c *Collector) RecordBatch(assetType types.AssetType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.batchesTotal.WithLabelValues(string(assetType), status).Inc()
	c.batchDuration.WithLabelValues(string(assetType)).Observe(duration.Seconds())
}

// =============================================================================
// 🛡️ 准入指标记录
// =============================================================================

// RecordGateScreen 记录准入检查的通过与拒绝数。
func (c *Collector) RecordGateScreen(valid, rejected int) {
	if c == nil {
		return
	}
	c.gateScreenedTotal.WithLabelValues("valid").Add(float64(valid))
	c.gateScreenedTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordApproval 记录一次人工确认的裁决。
func (c *Collector) RecordApproval(decision string) {
	if c == nil {
		return
	}
	c.approvalsTotal.WithLabelValues(decision).Inc()
}

// =============================================================================
// 📝 审计指标记录
// =============================================================================

// RecordAuditDrop 记录一条因存储故障被丢弃的审计记录。
func (c *Collector) RecordAuditDrop(kind string) {
	if c == nil {
		return
	}
	c.auditDropsTotal.WithLabelValues(kind).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
