package compose

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// Config 配置批次组合。
type Config struct {
	// BatchSizes 按资产类型的批次大小，未登记的类型用 DefaultBatchSize。
	BatchSizes map[types.AssetType]int `json:"batch_sizes" yaml:"batch_sizes"`

	// DefaultBatchSize 默认批次大小，必须为正。
	DefaultBatchSize int `json:"default_batch_size" yaml:"default_batch_size"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{DefaultBatchSize: 5}
}

// Validate 检查配置合法性。
func (c Config) Validate() error {
	if c.DefaultBatchSize <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("default batch size must be positive, got %d", c.DefaultBatchSize))
	}
	for at, size := range c.BatchSizes {
		if size <= 0 {
			return types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("batch size for %s must be positive, got %d", at, size))
		}
	}
	return nil
}

// Composer 把请求列表组合为按类型分组、有界有序的批次。
type Composer struct {
	config Config
	logger *zap.Logger
}

// NewComposer 创建组合器。config 非法时退回默认配置并记录告警。
func NewComposer(config Config, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "batch_composer"))
	if err := config.Validate(); err != nil {
		logger.Warn("invalid composer config, falling back to defaults", zap.Error(err))
		config = DefaultConfig()
	}
	return &Composer{config: config, logger: logger}
}

// Compose 组合全量请求：按资产类型分组（保持提交顺序），再按批次
// 大小切片。跨类型顺序为类型首次出现的顺序。
func (c *Composer) Compose(requests []types.GenerationRequest) []*types.Batch {
	var typeOrder []types.AssetType
	groups := make(map[types.AssetType][]types.GenerationRequest)

	for _, req := range requests {
		if _, seen := groups[req.AssetType]; !seen {
			typeOrder = append(typeOrder, req.AssetType)
		}
		groups[req.AssetType] = append(groups[req.AssetType], req)
	}

	var batches []*types.Batch
	for _, at := range typeOrder {
		group := groups[at]
		size := c.batchSizeFor(at)

		seq := 0
		for start := 0; start < len(group); start += size {
			end := start + size
			if end > len(group) {
				end = len(group)
			}
			seq++

			members := group[start:end]
			var declared types.Amount
			for _, req := range members {
				declared += req.EstimatedUnitCost
			}

			batches = append(batches, &types.Batch{
				ID:           fmt.Sprintf("batch-%s-%03d", at, seq),
				AssetType:    at,
				Requests:     members,
				DeclaredCost: declared,
				Status:       types.BatchPending,
			})
		}
	}

	c.logger.Info("batches composed",
		zap.Int("requests", len(requests)),
		zap.Int("batches", len(batches)),
		zap.Int("asset_types", len(typeOrder)))
	return batches
}

// ComposeExcluding 先剔除已完成的请求 ID 再组合，返回批次与被跳过的
// 请求。剔除先于切片，批次形状与对剩余集合的全新组合一致。
func (c *Composer) ComposeExcluding(requests []types.GenerationRequest, done map[string]bool) ([]*types.Batch, []types.GenerationRequest) {
	if len(done) == 0 {
		return c.Compose(requests), nil
	}

	remaining := make([]types.GenerationRequest, 0, len(requests))
	var skipped []types.GenerationRequest
	for _, req := range requests {
		if done[req.ID] {
			skipped = append(skipped, req)
			continue
		}
		remaining = append(remaining, req)
	}

	if len(skipped) > 0 {
		c.logger.Info("resume skipping completed requests",
			zap.Int("skipped", len(skipped)),
			zap.Int("remaining", len(remaining)))
	}
	return c.Compose(remaining), skipped
}

func (c *Composer) batchSizeFor(assetType types.AssetType) int {
	if size, ok := c.config.BatchSizes[assetType]; ok && size > 0 {
		return size
	}
	return c.config.DefaultBatchSize
}

// SortByPriority 稳定排序：优先级高者在前，同优先级保持原顺序。
// 供调用方在组合前自行使用，组合器内部不会调用。
func SortByPriority(requests []types.GenerationRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Priority > requests[j].Priority
	})
}
