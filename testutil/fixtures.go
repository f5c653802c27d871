// =============================================================================
// 📦 测试数据工厂
// =============================================================================
package testutil

import (
	"fmt"

	"github.com/BaSui01/renderflow/types"
)

// Request 构造单个生成请求样例。
func Request(id string, assetType types.AssetType, unitCost types.Amount) types.GenerationRequest {
	return types.GenerationRequest{
		ID:                id,
		AssetType:         assetType,
		Prompt:            "a serene mountain lake at golden hour, " + id,
		Filename:          id + ".png",
		EstimatedUnitCost: unitCost,
	}
}

// Requests 构造 n 个同类型同单价的生成请求，ID 形如 req-001。
func Requests(n int, assetType types.AssetType, unitCost types.Amount) []types.GenerationRequest {
	out := make([]types.GenerationRequest, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Request(fmt.Sprintf("req-%03d", i), assetType, unitCost))
	}
	return out
}

// RequestsOfTypes 按给定类型序列构造请求，保持提交顺序，ID 含类型便于断言。
func RequestsOfTypes(unitCost types.Amount, assetTypes ...types.AssetType) []types.GenerationRequest {
	out := make([]types.GenerationRequest, 0, len(assetTypes))
	for i, at := range assetTypes {
		out = append(out, Request(fmt.Sprintf("req-%s-%03d", at, i+1), at, unitCost))
	}
	return out
}
