package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// Ticket 是一次确认请求的摘要，给审批方决策用。
type Ticket struct {
	ID                string                  `json:"id"`
	RunID             string                  `json:"run_id,omitempty"`
	ValidCount        int                     `json:"valid_count"`
	EstimatedCost     types.Amount            `json:"estimated_cost_micros"`
	EstimatedDuration time.Duration           `json:"estimated_duration_ns"`
	CountsByType      map[types.AssetType]int `json:"counts_by_type,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

// Decision 是审批方对 Ticket 的答复。
type Decision struct {
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	DecidedBy string    `json:"decided_by,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Approver 对确认请求作出决定。实现必须尊重 ctx 的截止时间；
// 超时后的返回值会被闸门丢弃。
type Approver interface {
	Decide(ctx context.Context, ticket Ticket) (*Decision, error)
}

// ApproverFunc 把函数适配为 Approver。
type ApproverFunc func(ctx context.Context, ticket Ticket) (*Decision, error)

// Decide 实现 Approver。
func (f ApproverFunc) Decide(ctx context.Context, ticket Ticket) (*Decision, error) {
	return f(ctx, ticket)
}

// =============================================================================
// 自动审批
// =============================================================================

// AutoApprover 按成本上限自动批准：预估成本不超过 MaxCost 即放行，
// MaxCost 为 0 表示无条件批准（等价于 CLI 的 --yes）。
type AutoApprover struct {
	MaxCost types.Amount
}

// NewAutoApprover 创建自动审批器。
func NewAutoApprover(maxCost types.Amount) *AutoApprover {
	return &AutoApprover{MaxCost: maxCost}
}

// Decide 实现 Approver。
func (a *AutoApprover) Decide(_ context.Context, ticket Ticket) (*Decision, error) {
	if a.MaxCost > 0 && ticket.EstimatedCost > a.MaxCost {
		return &Decision{
			Approved:  false,
			Reason:    fmt.Sprintf("estimated cost %s exceeds auto-approve limit %s", ticket.EstimatedCost, a.MaxCost),
			DecidedBy: "auto",
			Timestamp: time.Now(),
		}, nil
	}
	return &Decision{Approved: true, DecidedBy: "auto", Timestamp: time.Now()}, nil
}

// =============================================================================
// 人工审批
// =============================================================================

// ManualApprover 维护待决确认单，等待人工 Approve / Reject。
// Decide 阻塞到有人答复或 ctx 超时；超时后的确认单自动清理。
type ManualApprover struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	pending map[string]*pendingTicket
}

type pendingTicket struct {
	ticket     Ticket
	responseCh chan *Decision
}

// NewManualApprover 创建人工审批器。
func NewManualApprover(logger *zap.Logger) *ManualApprover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualApprover{
		logger:  logger.With(zap.String("component", "manual_approver")),
		pending: make(map[string]*pendingTicket),
	}
}

// Decide 实现 Approver：登记确认单并等待答复。
func (m *ManualApprover) Decide(ctx context.Context, ticket Ticket) (*Decision, error) {
	p := &pendingTicket{
		ticket:     ticket,
		responseCh: make(chan *Decision, 1),
	}

	m.mu.Lock()
	m.pending[ticket.ID] = p
	m.mu.Unlock()

	m.logger.Info("approval ticket pending",
		zap.String("ticket_id", ticket.ID),
		zap.Int("valid_count", ticket.ValidCount),
		zap.String("estimated_cost", ticket.EstimatedCost.String()))

	select {
	case decision := <-p.responseCh:
		return decision, nil
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, ticket.ID)
		m.mu.Unlock()
		m.logger.Warn("approval ticket expired", zap.String("ticket_id", ticket.ID))
		return nil, ctx.Err()
	}
}

// Approve 批准指定确认单。确认单不存在或已决时返回错误。
func (m *ManualApprover) Approve(ticketID, decidedBy string) error {
	return m.resolve(ticketID, &Decision{
		Approved:  true,
		DecidedBy: decidedBy,
		Timestamp: time.Now(),
	})
}

// Reject 拒绝指定确认单。
func (m *ManualApprover) Reject(ticketID, reason string) error {
	return m.resolve(ticketID, &Decision{
		Approved:  false,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// Pending 返回当前所有待决确认单。
func (m *ManualApprover) Pending() []Ticket {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Ticket, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p.ticket)
	}
	return out
}

func (m *ManualApprover) resolve(ticketID string, decision *Decision) error {
	m.mu.Lock()
	p, ok := m.pending[ticketID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("ticket not found or already resolved: %s", ticketID)
	}
	delete(m.pending, ticketID)
	m.mu.Unlock()

	m.logger.Info("approval ticket resolved",
		zap.String("ticket_id", ticketID),
		zap.Bool("approved", decision.Approved))

	select {
	case p.responseCh <- decision:
	default:
	}
	return nil
}

func generateTicketID() string {
	return fmt.Sprintf("ticket_%d", time.Now().UnixNano())
}
