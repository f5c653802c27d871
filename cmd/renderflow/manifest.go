package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/renderflow/budget"
	"github.com/BaSui01/renderflow/types"
)

// =============================================================================
// 📜 生成清单
// =============================================================================
// 清单是待渲染请求的列表，YAML 或 JSON（按扩展名区分）：
//
//	requests:
//	  - id: cover-001              # 省略时由 filename 推导
//	    asset_type: cover
//	    prompt: a lighthouse at dusk, oil painting
//	    filename: covers/001.png
//	    estimated_unit_cost: 0.08  # 美元；省略时按内置价目表补全
//	    priority: 5

type manifest struct {
	Requests []manifestItem `json:"requests" yaml:"requests"`
}

// manifestItem 是清单里的一条请求。单价用美元书写，转换为微美元
// 只发生在这里，和配置加载同一约定。
type manifestItem struct {
	ID                string  `json:"id" yaml:"id"`
	AssetType         string  `json:"asset_type" yaml:"asset_type"`
	Prompt            string  `json:"prompt" yaml:"prompt"`
	Filename          string  `json:"filename" yaml:"filename"`
	EstimatedUnitCost float64 `json:"estimated_unit_cost" yaml:"estimated_unit_cost"`
	Priority          int     `json:"priority" yaml:"priority"`
}

// loadManifest 读取清单文件并转换为生成请求。缺省单价按内置价目表
// 补全，准入聚合的预估成本才有意义；重复 ID 直接报错，续跑去重
// 依赖 ID 唯一。
func loadManifest(path string) ([]types.GenerationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	}

	book := budget.DefaultPriceBook()
	seen := make(map[string]bool, len(m.Requests))
	requests := make([]types.GenerationRequest, 0, len(m.Requests))

	for i, item := range m.Requests {
		req := types.GenerationRequest{
			ID:                item.ID,
			AssetType:         types.AssetType(item.AssetType),
			Prompt:            item.Prompt,
			Filename:          item.Filename,
			EstimatedUnitCost: types.AmountFromDollars(item.EstimatedUnitCost),
			Priority:          item.Priority,
		}
		if req.ID == "" {
			req.ID = idFromFilename(item.Filename)
		}
		if req.EstimatedUnitCost == 0 {
			if unit, ok := book.UnitCost(req.AssetType); ok {
				req.EstimatedUnitCost = unit
			}
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i+1, err)
		}
		if seen[req.ID] {
			return nil, fmt.Errorf("manifest entry %d: duplicate request id %q", i+1, req.ID)
		}
		seen[req.ID] = true
		requests = append(requests, req)
	}
	return requests, nil
}

// idFromFilename 用目标文件名推导请求 ID。续跑去重要求 ID 稳定，
// 文件名天然唯一且不随清单条目增删移位。
func idFromFilename(filename string) string {
	id := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.ReplaceAll(id, string(filepath.Separator), "-")
}
