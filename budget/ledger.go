package budget

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// LedgerConfig 配置预算账本。
type LedgerConfig struct {
	// TotalBudget 为本次运行的预算上限（微美元）。
	TotalBudget types.Amount `json:"total_budget_micros" yaml:"total_budget_micros"`

	// AlertThresholds 为触发告警的用量比例（0.0-1.0），每个阈值只告警一次。
	AlertThresholds []float64 `json:"alert_thresholds" yaml:"alert_thresholds"`
}

// DefaultLedgerConfig 返回合理的默认值。
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		TotalBudget:     types.AmountFromDollars(5.0),
		AlertThresholds: []float64{0.8, 0.95},
	}
}

// Status 是账本某一时刻的一致快照。
type Status struct {
	Total       types.Amount `json:"total_micros"`
	Spent       types.Amount `json:"spent_micros"`
	Reserved    types.Amount `json:"reserved_micros"`
	Available   types.Amount `json:"available_micros"`
	PercentUsed float64      `json:"percent_used"`
}

// Alert 代表一次预算用量告警。
type Alert struct {
	Threshold float64   `json:"threshold"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertHandler 处理预算告警。
type AlertHandler func(alert Alert)

// Sink 在账本临界区内接收每条流水，顺序与账本变更顺序严格一致。
// 实现必须快速返回，且不得回调账本方法，否则死锁。
type Sink func(entry types.AuditEntry)

// Ledger 是本次运行唯一共享的财务状态。三个变更操作互斥串行，
// 每次变更后自检不变式 spent + reserved <= total；一旦违反，账本
// 进入中毒状态，后续所有操作返回 LEDGER_INVARIANT 错误。
type Ledger struct {
	config LedgerConfig
	book   *PriceBook
	logger *zap.Logger

	mu       sync.Mutex
	spent    types.Amount
	reserved types.Amount
	poisoned bool

	sink          Sink
	alertHandlers []AlertHandler
	alerted       map[float64]bool
}

// NewLedger 创建预算账本。logger 为 nil 时使用 Nop，book 为 nil 时
// 使用默认单价表。
func NewLedger(config LedgerConfig, book *PriceBook, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if book == nil {
		book = DefaultPriceBook()
	}
	if len(config.AlertThresholds) == 0 {
		config.AlertThresholds = DefaultLedgerConfig().AlertThresholds
	}
	return &Ledger{
		config:  config,
		book:    book,
		logger:  logger.With(zap.String("component", "budget_ledger")),
		alerted: make(map[float64]bool),
	}
}

// SetSink 设置流水回调，必须在账本被并发使用前完成。
func (l *Ledger) SetSink(sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// OnAlert 注册一个告警处理器。
func (l *Ledger) OnAlert(handler AlertHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alertHandlers = append(l.alertHandlers, handler)
}

// Reserve 按单价表为 count 个 assetType 资产预留预算并返回预留金额。
// 预算不足时返回 BUDGET_EXCEEDED，不产生任何流水。
func (l *Ledger) Reserve(assetType types.AssetType, count int, refID string) (types.Amount, error) {
	if count <= 0 {
		return 0, types.NewValidationError(fmt.Sprintf("reserve count must be positive, got %d", count))
	}
	unit, ok := l.book.UnitCost(assetType)
	if !ok {
		return 0, types.NewError(types.ErrUnknownAssetType, "no unit cost for asset type "+string(assetType))
	}
	cost := unit.Mul(count)

	l.mu.Lock()
	if l.poisoned {
		l.mu.Unlock()
		return 0, errPoisoned()
	}
	available := l.config.TotalBudget - l.spent - l.reserved
	if cost > available {
		l.mu.Unlock()
		l.logger.Warn("reservation denied",
			zap.String("asset_type", string(assetType)),
			zap.String("ref_id", refID),
			zap.String("cost", cost.String()),
			zap.String("available", available.String()))
		return 0, types.NewBudgetExceededError(cost, available)
	}
	l.reserved += cost
	if err := l.verifyLocked(); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	l.emitLocked(types.AuditReserve, cost, refID, assetType, "")
	l.checkAlertsLocked()
	l.mu.Unlock()

	l.logger.Debug("reserved",
		zap.String("asset_type", string(assetType)),
		zap.Int("count", count),
		zap.String("amount", cost.String()),
		zap.String("ref_id", refID))
	return cost, nil
}

// Commit 将此前预留的金额转为已花费。调用方必须已预留至少同额预算，
// 否则视为合同违例：账本中毒并返回致命错误。
func (l *Ledger) Commit(assetType types.AssetType, count int, refID string) error {
	if count <= 0 {
		return types.NewValidationError(fmt.Sprintf("commit count must be positive, got %d", count))
	}
	unit, ok := l.book.UnitCost(assetType)
	if !ok {
		return types.NewError(types.ErrUnknownAssetType, "no unit cost for asset type "+string(assetType))
	}
	cost := unit.Mul(count)

	l.mu.Lock()
	if l.poisoned {
		l.mu.Unlock()
		return errPoisoned()
	}
	if cost > l.reserved {
		l.poisoned = true
		detail := fmt.Sprintf("commit of %s exceeds reserved %s (ref %s)", cost, l.reserved, refID)
		l.mu.Unlock()
		l.logger.Error("ledger contract violated, poisoning ledger", zap.String("detail", detail))
		return types.NewLedgerInvariantError(detail)
	}
	l.reserved -= cost
	l.spent += cost
	if err := l.verifyLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.emitLocked(types.AuditCommit, cost, refID, assetType, "")
	l.checkAlertsLocked()
	l.mu.Unlock()

	l.logger.Debug("committed",
		zap.String("asset_type", string(assetType)),
		zap.Int("count", count),
		zap.String("amount", cost.String()),
		zap.String("ref_id", refID))
	return nil
}

// Release 将失败请求的预留金额归还预算池。reserved 永不为负：
// 超出当前预留的部分按当前预留截断。amount <= 0 时为空操作。
func (l *Ledger) Release(amount types.Amount, refID string) error {
	if amount <= 0 {
		return nil
	}

	l.mu.Lock()
	if l.poisoned {
		l.mu.Unlock()
		return errPoisoned()
	}
	actual := amount
	if actual > l.reserved {
		actual = l.reserved
	}
	l.reserved -= actual
	if err := l.verifyLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.emitLocked(types.AuditRelease, actual, refID, "", "")
	l.mu.Unlock()

	l.logger.Debug("released",
		zap.String("amount", actual.String()),
		zap.String("ref_id", refID))
	return nil
}

// Status 返回账本当前快照。纯读操作，与变更共用同一临界区以保证一致。
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

// Healthy 报告账本是否仍可信（未发生不变式违例）。
func (l *Ledger) Healthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.poisoned
}

func (l *Ledger) statusLocked() Status {
	used := l.spent + l.reserved
	s := Status{
		Total:     l.config.TotalBudget,
		Spent:     l.spent,
		Reserved:  l.reserved,
		Available: l.config.TotalBudget - used,
	}
	if l.config.TotalBudget > 0 {
		s.PercentUsed = float64(used) / float64(l.config.TotalBudget) * 100
	}
	return s
}

// verifyLocked 在每次变更后断言账本不变式，违反则进入中毒状态。
func (l *Ledger) verifyLocked() error {
	if l.spent >= 0 && l.reserved >= 0 && l.spent+l.reserved <= l.config.TotalBudget {
		return nil
	}
	l.poisoned = true
	detail := fmt.Sprintf("spent=%s reserved=%s total=%s", l.spent, l.reserved, l.config.TotalBudget)
	l.logger.Error("ledger invariant violated, poisoning ledger", zap.String("detail", detail))
	return types.NewLedgerInvariantError(detail)
}

func (l *Ledger) emitLocked(op types.AuditOp, amount types.Amount, refID string, assetType types.AssetType, detail string) {
	if l.sink == nil {
		return
	}
	l.sink(types.AuditEntry{
		Op:        op,
		Amount:    amount,
		RefID:     refID,
		AssetType: assetType,
		Spent:     l.spent,
		Reserved:  l.reserved,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

func (l *Ledger) checkAlertsLocked() {
	if l.config.TotalBudget <= 0 {
		return
	}
	util := float64(l.spent+l.reserved) / float64(l.config.TotalBudget)
	for _, th := range l.config.AlertThresholds {
		if util >= th && !l.alerted[th] {
			l.alerted[th] = true
			alert := Alert{
				Threshold: th,
				Status:    l.statusLocked(),
				Message:   fmt.Sprintf("budget usage crossed %.0f%%", th*100),
				Timestamp: time.Now(),
			}
			l.logger.Warn("budget alert",
				zap.Float64("threshold", th),
				zap.Float64("percent_used", alert.Status.PercentUsed))
			for _, handler := range l.alertHandlers {
				go handler(alert)
			}
		}
	}
}

func errPoisoned() error {
	return types.NewLedgerInvariantError("ledger poisoned by a previous invariant violation")
}
