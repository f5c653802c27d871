package types

import "time"

// AuditOp 枚举审计流水支持的操作。
type AuditOp string

const (
	AuditReserve    AuditOp = "reserve"
	AuditCommit     AuditOp = "commit"
	AuditRelease    AuditOp = "release"
	AuditBatchStart AuditOp = "batch_start"
	AuditBatchEnd   AuditOp = "batch_end"
)

// AuditEntry 是一条只写一次的账本流水。
// reserve/commit/release 三类条目在账本临界区内生成，Spent/Reserved
// 快照与操作本身原子一致，可用于在任意时点重建花费。
type AuditEntry struct {
	RunID string `json:"run_id"`

	// Seq 由记录器按追加顺序编号，从 1 起。
	Seq uint64 `json:"seq"`

	Op AuditOp `json:"op"`

	// Amount 为本次操作涉及的金额；batch_start/batch_end 记录批次声明成本。
	Amount Amount `json:"amount_micros"`

	// RefID 为关联的请求或批次标识。
	RefID     string    `json:"ref_id"`
	AssetType AssetType `json:"asset_type,omitempty"`

	// Spent/Reserved 是操作完成后的账本快照。
	Spent    Amount `json:"spent_micros"`
	Reserved Amount `json:"reserved_micros"`

	// Detail 携带批次条目的附加信息（如 generated/failed 计数）。
	Detail string `json:"detail,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
