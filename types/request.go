package types

import "strings"

// GenerationRequest 是一次付费生成的不可变请求描述。
// 由上游请求编译器创建，通过准入后不再修改。
type GenerationRequest struct {
	// ID 是请求的全局唯一标识，续跑去重以它为准。
	ID string `json:"id" yaml:"id"`

	// AssetType 决定批次分组与账本单价。
	AssetType AssetType `json:"asset_type" yaml:"asset_type"`

	// Prompt 是发往渲染服务的提示词。
	Prompt string `json:"prompt" yaml:"prompt"`

	// Filename 是产物的目标文件名。
	Filename string `json:"filename" yaml:"filename"`

	// EstimatedUnitCost 是预估单价（微美元），用于准入聚合与批次声明成本。
	EstimatedUnitCost Amount `json:"estimated_unit_cost_micros" yaml:"estimated_unit_cost_micros"`

	// Priority 数值越大越优先；组合器本身不重排，仅供调用方预排序。
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Validate 检查请求的结构完整性，不做内容安全校验。
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return NewValidationError("request id is required")
	}
	if !r.AssetType.Valid() {
		return NewValidationError("unknown asset type: " + string(r.AssetType))
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return NewValidationError("prompt is required")
	}
	if strings.TrimSpace(r.Filename) == "" {
		return NewValidationError("filename is required")
	}
	if r.EstimatedUnitCost < 0 {
		return NewValidationError("estimated unit cost must be non-negative")
	}
	return nil
}
