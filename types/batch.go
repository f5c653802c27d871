package types

import "time"

// BatchStatus 表示批次的生命周期状态。
type BatchStatus string

const (
	// BatchPending 批次已组合，尚未开始执行。
	BatchPending BatchStatus = "pending"
	// BatchRunning 批次正在执行。
	BatchRunning BatchStatus = "running"
	// BatchCompleted 批次执行完毕（允许包含个别失败请求）。
	BatchCompleted BatchStatus = "completed"
	// BatchBudgetExceeded 负担能力预检失败，批次未执行，运行就此停止。
	BatchBudgetExceeded BatchStatus = "budget_exceeded"
	// BatchFailed 批次内全部请求失败。
	BatchFailed BatchStatus = "failed"
)

// IsTerminal 判断状态是否为终态。
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchCompleted, BatchBudgetExceeded, BatchFailed:
		return true
	}
	return false
}

// Batch 是同一资产类型请求的有界有序批次。
// 由组合器创建，仅执行器变更其状态与计数。
type Batch struct {
	ID        string              `json:"id"`
	AssetType AssetType           `json:"asset_type"`
	Requests  []GenerationRequest `json:"requests"`

	// DeclaredCost 为成员预估单价之和，执行前用于负担能力预检。
	DeclaredCost Amount `json:"declared_cost_micros"`

	Status    BatchStatus `json:"status"`
	Generated int         `json:"generated"`
	Failed    int         `json:"failed"`

	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Size 返回批次内请求数。
func (b *Batch) Size() int {
	return len(b.Requests)
}
