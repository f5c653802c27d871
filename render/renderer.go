package render

import (
	"context"
	"time"

	"github.com/BaSui01/renderflow/types"
)

// Request 是发往渲染服务的单次出图请求。
type Request struct {
	// Prompt 提示词，准入闸门已校验。
	Prompt string `json:"prompt"`

	// AssetType 用于按类型选择尺寸等渲染参数。
	AssetType types.AssetType `json:"asset_type"`

	// RefID 上游请求 ID，进入日志与幂等键。
	RefID string `json:"ref_id"`

	// Filename 目标输出文件名。保存装饰器据此落盘，其余实现忽略。
	Filename string `json:"filename,omitempty"`

	// Model / Size / Quality / Style 为空时用实现的默认值。
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

// Artifact 是一次成功渲染的产物。
type Artifact struct {
	// URL / B64Data 二选一，取决于服务的返回格式。
	URL     string `json:"url,omitempty"`
	B64Data string `json:"b64_data,omitempty"`

	// RevisedPrompt 服务端改写后的提示词（如有）。
	RevisedPrompt string `json:"revised_prompt,omitempty"`

	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Renderer 是渲染服务客户端。Render 渲染一张图；返回错误时必须
// 保证远端未计费（请求未发出或被明确拒绝）。
type Renderer interface {
	// Render 渲染一张图。
	Render(ctx context.Context, req *Request) (*Artifact, error)

	// Name 返回实现名称，进入日志与审计。
	Name() string
}
