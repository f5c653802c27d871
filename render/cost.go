package render

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/renderflow/types"
)

// CostCalculator 按模型 / 质量 / 尺寸计算单张渲染价格（微美元）。
// 按张计费的模型直接查表；按 token 计费的模型（gpt-image 系列）在
// 表价基础上叠加提示词 token 费用。请求编译与单价本构建时使用。
type CostCalculator struct {
	mu sync.RWMutex
	// prices key: model|quality|size，查找时逐级回退到通配。
	prices map[string]types.Amount
	// tokenPrices key: model，每 1K 提示词 token 的价格。
	tokenPrices map[string]types.Amount

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewCostCalculator 创建成本计算器并装载默认价格。
func NewCostCalculator() *CostCalculator {
	c := &CostCalculator{
		prices:      make(map[string]types.Amount),
		tokenPrices: make(map[string]types.Amount),
	}
	c.loadDefaultPrices()
	return c
}

// loadDefaultPrices 加载默认价格（可被配置覆盖）。
func (c *CostCalculator) loadDefaultPrices() {
	defaults := []struct {
		model, quality, size string
		price                float64
	}{
		{"dall-e-3", "standard", "1024x1024", 0.040},
		{"dall-e-3", "standard", "1792x1024", 0.080},
		{"dall-e-3", "standard", "1024x1792", 0.080},
		{"dall-e-3", "hd", "1024x1024", 0.080},
		{"dall-e-3", "hd", "1792x1024", 0.120},
		{"dall-e-3", "hd", "1024x1792", 0.120},
		{"dall-e-2", "*", "1024x1024", 0.020},
		{"dall-e-2", "*", "512x512", 0.018},
		{"gpt-image-1", "low", "*", 0.011},
		{"gpt-image-1", "medium", "*", 0.042},
		{"gpt-image-1", "high", "*", 0.167},
	}
	for _, d := range defaults {
		c.SetPrice(d.model, d.quality, d.size, types.AmountFromDollars(d.price))
	}

	// gpt-image 系列的提示词按 token 计费，$5 / 1M tokens。
	c.SetTokenPrice("gpt-image-1", types.AmountFromDollars(0.005))
}

// SetPrice 设置一档价格，quality / size 可用 "*" 通配。
func (c *CostCalculator) SetPrice(model, quality, size string, price types.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[priceKey(model, quality, size)] = price
}

// SetTokenPrice 设置模型每 1K 提示词 token 的价格。
func (c *CostCalculator) SetTokenPrice(model string, perThousand types.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenPrices[model] = perThousand
}

// UnitPrice 查询单张表价，未登记时返回 false。
// 查找顺序：精确 → 质量通配 → 尺寸通配 → 两者通配。
func (c *CostCalculator) UnitPrice(model, quality, size string) (types.Amount, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, key := range []string{
		priceKey(model, quality, size),
		priceKey(model, "*", size),
		priceKey(model, quality, "*"),
		priceKey(model, "*", "*"),
	} {
		if p, ok := c.prices[key]; ok {
			return p, true
		}
	}
	return 0, false
}

// EstimateUnitCost 估算单次渲染成本：表价加提示词 token 费用（如该
// 模型按 token 计费）。未登记的模型返回 false，调用方应拒绝而不是
// 以零成本进入账本。
func (c *CostCalculator) EstimateUnitCost(model, quality, size, prompt string) (types.Amount, bool) {
	base, ok := c.UnitPrice(model, quality, size)
	if !ok {
		return 0, false
	}

	c.mu.RLock()
	perThousand, tokenBilled := c.tokenPrices[model]
	c.mu.RUnlock()
	if !tokenBilled || prompt == "" {
		return base, true
	}

	tokens := c.countPromptTokens(prompt)
	surcharge := types.Amount(int64(perThousand) * int64(tokens) / 1000)
	return base + surcharge, true
}

// countPromptTokens 用 tiktoken 计数；编码不可用时退回字符估算
// （CJK 约 1.5 字/token，ASCII 约 4 字/token）。
func (c *CostCalculator) countPromptTokens(prompt string) int {
	c.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("o200k_base")
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc != nil {
		return len(c.enc.Encode(prompt, nil, nil))
	}

	totalChars := utf8.RuneCountInString(prompt)
	cjk := 0
	for _, r := range prompt {
		if isCJK(r) {
			cjk++
		}
	}
	estimated := int(float64(cjk)/1.5 + float64(totalChars-cjk)/4.0)
	if estimated == 0 && totalChars > 0 {
		estimated = 1
	}
	return estimated
}

// PriceBookFor 依据渲染配置为各资产类型生成单价表，供预算账本使用。
func (c *CostCalculator) PriceBookFor(cfg OpenAIConfig) map[types.AssetType]types.Amount {
	quality := cfg.Quality
	if quality == "" {
		quality = "standard"
	}

	book := make(map[types.AssetType]types.Amount, len(types.AllAssetTypes()))
	for _, at := range types.AllAssetTypes() {
		size := cfg.SizeByAsset[at]
		if size == "" {
			size = "1024x1024"
		}
		if price, ok := c.UnitPrice(cfg.Model, quality, size); ok {
			book[at] = price
		}
	}
	return book
}

func priceKey(model, quality, size string) string {
	return strings.Join([]string{model, quality, size}, "|")
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3040 && r <= 0x30FF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}
