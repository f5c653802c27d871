package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// TimeoutAction 决定确认等待超时后的结局。
type TimeoutAction string

const (
	// TimeoutReject 超时视为拒绝（默认）：未经确认的花费不应被沉默放行。
	TimeoutReject TimeoutAction = "reject"
	// TimeoutApprove 超时视为批准，仅用于确认只作通知的场合。
	TimeoutApprove TimeoutAction = "approve"
)

// Config 配置准入闸门。
type Config struct {
	// MinPromptLength / MaxPromptLength 提示词长度界限（rune 数），0 表示不限。
	MinPromptLength int `json:"min_prompt_length" yaml:"min_prompt_length"`
	MaxPromptLength int `json:"max_prompt_length" yaml:"max_prompt_length"`

	// Blocklist 禁止关键词；CaseSensitive 控制匹配是否区分大小写。
	Blocklist     []string `json:"blocklist" yaml:"blocklist"`
	CaseSensitive bool     `json:"case_sensitive" yaml:"case_sensitive"`

	// MaxTotalItems / MaxTotalCost 硬性上限，独立于账本与审批生效，
	// 0 表示不限。命中即整体拒绝，批准也救不回来。
	MaxTotalItems int          `json:"max_total_items" yaml:"max_total_items"`
	MaxTotalCost  types.Amount `json:"max_total_cost_micros" yaml:"max_total_cost_micros"`

	// ConfirmationThreshold 有效请求数超过该值时必须显式批准，0 表示永不要求。
	ConfirmationThreshold int `json:"confirmation_threshold" yaml:"confirmation_threshold"`

	// ApprovalTimeout 确认等待上限；TimeoutAction 决定超时结局。
	ApprovalTimeout time.Duration `json:"approval_timeout" yaml:"approval_timeout"`
	TimeoutAction   TimeoutAction `json:"approval_timeout_action" yaml:"approval_timeout_action"`

	// EstimatedTimePerItem 单件渲染耗时估计，进入确认单的预估总耗时。
	EstimatedTimePerItem time.Duration `json:"estimated_time_per_item" yaml:"estimated_time_per_item"`
}

// DefaultConfig 返回合理的默认值。
func DefaultConfig() Config {
	return Config{
		MinPromptLength:       8,
		MaxPromptLength:       4000,
		ConfirmationThreshold: 10,
		ApprovalTimeout:       2 * time.Minute,
		TimeoutAction:         TimeoutReject,
		EstimatedTimePerItem:  10 * time.Second,
	}
}

// Rejection 是单条请求的拒绝记录。
type Rejection struct {
	Request types.GenerationRequest `json:"request"`
	Reason  string                  `json:"reason"`
}

// Admission 是一次准入筛查的结论。Admitted 为 false 时不得组建任何批次，
// Valid/Rejected 分区在两种结局下都完整可用。
type Admission struct {
	Admitted          bool                      `json:"admitted"`
	Valid             []types.GenerationRequest `json:"valid"`
	Rejected          []Rejection               `json:"rejected,omitempty"`
	EstimatedCost     types.Amount              `json:"estimated_cost_micros"`
	EstimatedDuration time.Duration             `json:"estimated_duration_ns"`
	Reason            string                    `json:"reason,omitempty"`
}

// Gate 是付费生成的准入闸门：校验、限额、确认一次完成。
type Gate struct {
	config     Config
	validators []Validator
	approver   Approver
	logger     *zap.Logger
}

// NewGate 创建准入闸门。approver 为 nil 时，超过确认阈值的集合一律拒绝。
func NewGate(config Config, approver Approver, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TimeoutAction == "" {
		config.TimeoutAction = TimeoutReject
	}
	if config.ApprovalTimeout <= 0 {
		config.ApprovalTimeout = 2 * time.Minute
	}
	if config.EstimatedTimePerItem <= 0 {
		config.EstimatedTimePerItem = 10 * time.Second
	}

	validators := []Validator{
		NewLengthValidator(&LengthValidatorConfig{
			MinLength: config.MinPromptLength,
			MaxLength: config.MaxPromptLength,
		}),
	}
	if len(config.Blocklist) > 0 {
		validators = append(validators, NewKeywordValidator(&KeywordValidatorConfig{
			Blocklist:     config.Blocklist,
			CaseSensitive: config.CaseSensitive,
		}))
	}

	return &Gate{
		config:     config,
		validators: validators,
		approver:   approver,
		logger:     logger.With(zap.String("component", "safety_gate")),
	}
}

// Screen 对候选请求集合执行准入筛查：逐条校验分区 valid / rejected，
// 聚合预估成本与耗时，检查硬性上限，必要时取得批准。
// 返回的 error 说明整体拒绝的原因；无论结局如何 Admission 都完整返回。
func (g *Gate) Screen(ctx context.Context, requests []types.GenerationRequest) (*Admission, error) {
	admission := &Admission{}

	for _, req := range requests {
		if reason := g.validateOne(ctx, req); reason != "" {
			admission.Rejected = append(admission.Rejected, Rejection{Request: req, Reason: reason})
			continue
		}
		admission.Valid = append(admission.Valid, req)
		admission.EstimatedCost += req.EstimatedUnitCost
	}
	admission.EstimatedDuration = time.Duration(len(admission.Valid)) * g.config.EstimatedTimePerItem

	g.logger.Info("admission screening",
		zap.Int("submitted", len(requests)),
		zap.Int("valid", len(admission.Valid)),
		zap.Int("rejected", len(admission.Rejected)),
		zap.String("estimated_cost", admission.EstimatedCost.String()))

	if len(admission.Valid) == 0 {
		admission.Reason = "no valid requests after validation"
		return admission, nil
	}

	// 硬性上限先于审批检查，命中即整体拒绝。
	if g.config.MaxTotalItems > 0 && len(admission.Valid) > g.config.MaxTotalItems {
		admission.Reason = fmt.Sprintf("valid count %d exceeds max total items %d",
			len(admission.Valid), g.config.MaxTotalItems)
		g.logger.Warn("admission denied by item ceiling", zap.String("reason", admission.Reason))
		return admission, types.NewError(types.ErrCeilingExceeded, admission.Reason)
	}
	if g.config.MaxTotalCost > 0 && admission.EstimatedCost > g.config.MaxTotalCost {
		admission.Reason = fmt.Sprintf("estimated cost %s exceeds max total cost %s",
			admission.EstimatedCost, g.config.MaxTotalCost)
		g.logger.Warn("admission denied by cost ceiling", zap.String("reason", admission.Reason))
		return admission, types.NewError(types.ErrCeilingExceeded, admission.Reason)
	}

	if g.config.ConfirmationThreshold > 0 && len(admission.Valid) > g.config.ConfirmationThreshold {
		if err := g.confirm(ctx, admission); err != nil {
			admission.Reason = err.Error()
			return admission, err
		}
	}

	admission.Admitted = true
	return admission, nil
}

func (g *Gate) validateOne(ctx context.Context, req types.GenerationRequest) string {
	if err := req.Validate(); err != nil {
		return messageOf(err)
	}
	for _, v := range g.validators {
		if err := v.Validate(ctx, req.Prompt); err != nil {
			return v.Name() + ": " + messageOf(err)
		}
	}
	return ""
}

func (g *Gate) confirm(ctx context.Context, admission *Admission) error {
	if g.approver == nil {
		g.logger.Warn("approval required but no approver configured",
			zap.Int("valid_count", len(admission.Valid)))
		return types.NewApprovalRejectedError("approval required but no approver configured")
	}

	counts := make(map[types.AssetType]int)
	for _, req := range admission.Valid {
		counts[req.AssetType]++
	}
	ticket := Ticket{
		ID:                generateTicketID(),
		ValidCount:        len(admission.Valid),
		EstimatedCost:     admission.EstimatedCost,
		EstimatedDuration: admission.EstimatedDuration,
		CountsByType:      counts,
		CreatedAt:         time.Now(),
	}

	approvalCtx, cancel := context.WithTimeout(ctx, g.config.ApprovalTimeout)
	defer cancel()

	decision, err := g.approver.Decide(approvalCtx, ticket)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// 运行本身被取消，与超时结局无关，一律拒绝。
			return types.NewApprovalRejectedError("run cancelled during approval wait")
		case errors.Is(approvalCtx.Err(), context.DeadlineExceeded):
			if g.config.TimeoutAction == TimeoutApprove {
				g.logger.Warn("approval timed out, admitting per configured timeout action",
					zap.String("ticket_id", ticket.ID),
					zap.Duration("timeout", g.config.ApprovalTimeout))
				return nil
			}
			return types.NewApprovalTimeoutError(g.config.ApprovalTimeout)
		default:
			return types.NewApprovalRejectedError("approver failed: " + err.Error())
		}
	}
	if decision == nil || !decision.Approved {
		reason := ""
		if decision != nil {
			reason = decision.Reason
		}
		return types.NewApprovalRejectedError(reason)
	}

	g.logger.Info("admission approved",
		zap.String("ticket_id", ticket.ID),
		zap.String("decided_by", decision.DecidedBy))
	return nil
}

func messageOf(err error) string {
	var e *types.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
