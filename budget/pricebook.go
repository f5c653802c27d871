package budget

import (
	"sort"

	"github.com/BaSui01/renderflow/types"
)

// PriceBook 维护各资产类型的单价（微美元）。构造后只读。
type PriceBook struct {
	prices map[types.AssetType]types.Amount
}

// NewPriceBook 以给定价格表创建单价本，传入的 map 会被拷贝。
func NewPriceBook(prices map[types.AssetType]types.Amount) *PriceBook {
	copied := make(map[types.AssetType]types.Amount, len(prices))
	for t, p := range prices {
		copied[t] = p
	}
	return &PriceBook{prices: copied}
}

// DefaultPriceBook 返回默认单价表，对齐主流图像生成服务的按张计费。
func DefaultPriceBook() *PriceBook {
	return NewPriceBook(map[types.AssetType]types.Amount{
		types.AssetCover:        types.AmountFromDollars(0.08),
		types.AssetCard:         types.AmountFromDollars(0.04),
		types.AssetIcon:         types.AmountFromDollars(0.02),
		types.AssetIllustration: types.AmountFromDollars(0.08),
	})
}

// UnitCost 查询某资产类型的单价，未登记时返回 false。
func (b *PriceBook) UnitCost(assetType types.AssetType) (types.Amount, bool) {
	p, ok := b.prices[assetType]
	return p, ok
}

// Types 返回已登记的资产类型，按字典序排序保证确定性。
func (b *PriceBook) Types() []types.AssetType {
	out := make([]types.AssetType, 0, len(b.prices))
	for t := range b.prices {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
