package types

import "time"

// ResultStatus 表示单个请求的最终结果状态。
type ResultStatus string

const (
	// ResultGenerated 渲染成功且成本已提交。
	ResultGenerated ResultStatus = "generated"
	// ResultFailed 渲染失败或预留被拒，预留（如有）已释放。
	ResultFailed ResultStatus = "failed"
	// ResultSkipped 请求未进入执行（准入拒绝、续跑排除或运行取消）。
	ResultSkipped ResultStatus = "skipped"
)

// GenerationResult 是单个请求的不可变执行结果。
// 由生成工作器创建，交付记录器后不再修改。
type GenerationResult struct {
	RunID     string    `json:"run_id"`
	RequestID string    `json:"request_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	AssetType AssetType `json:"asset_type"`
	Filename  string    `json:"filename"`

	Status ResultStatus `json:"status"`

	// ActualCost 为实际提交的成本；失败与跳过时为 0。
	ActualCost Amount `json:"actual_cost_micros"`

	// Reference 为渲染服务返回的产物引用（URL 或句柄）。
	Reference string `json:"reference,omitempty"`

	// ErrorCode 与 Reason 记录失败分类与细节。
	ErrorCode ErrorCode `json:"error_code,omitempty"`
	Reason    string    `json:"reason,omitempty"`

	Elapsed     time.Duration `json:"elapsed_ns"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Succeeded 判断结果是否为成功生成。
func (r GenerationResult) Succeeded() bool {
	return r.Status == ResultGenerated
}

// ArtifactInfo 是成功产物的元数据摘要，进入运行报告。
type ArtifactInfo struct {
	RequestID  string    `json:"request_id"`
	Filename   string    `json:"filename"`
	AssetType  AssetType `json:"asset_type"`
	Reference  string    `json:"reference"`
	ActualCost Amount    `json:"actual_cost_micros"`
}
