package compose

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// 组合是请求集合的一个划分：每条请求恰好落入一个批次，批次不超过
// 大小上限、类型齐一、类型内保持提交顺序，声明成本等于成员之和。
func TestProperty_ComposePartitionsRequests(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	allTypes := types.AllAssetTypes()

	properties.Property("compose is an order-preserving bounded partition", prop.ForAll(
		func(typeIdxs []int, batchSize int) bool {
			requests := make([]types.GenerationRequest, 0, len(typeIdxs))
			for i, idx := range typeIdxs {
				at := allTypes[idx%len(allTypes)]
				requests = append(requests, types.GenerationRequest{
					ID:                fmt.Sprintf("req-%03d", i+1),
					AssetType:         at,
					Prompt:            "generated property test prompt",
					Filename:          fmt.Sprintf("req-%03d.png", i+1),
					EstimatedUnitCost: types.Amount((idx%len(allTypes) + 1) * 10_000),
				})
			}

			c := NewComposer(Config{DefaultBatchSize: batchSize}, zap.NewNop())
			batches := c.Compose(requests)

			// 每条请求恰好出现一次。
			seen := make(map[string]int)
			total := 0
			for _, b := range batches {
				total += b.Size()
				for _, req := range b.Requests {
					seen[req.ID]++
				}
			}
			if total != len(requests) {
				t.Logf("partition lost or duplicated requests: %d != %d", total, len(requests))
				return false
			}
			for id, n := range seen {
				if n != 1 {
					t.Logf("request %s appears %d times", id, n)
					return false
				}
			}

			// 批次有界、类型齐一、声明成本一致。
			for _, b := range batches {
				if b.Size() == 0 || b.Size() > batchSize {
					t.Logf("batch %s size %d out of bounds (max %d)", b.ID, b.Size(), batchSize)
					return false
				}
				var declared types.Amount
				for _, req := range b.Requests {
					if req.AssetType != b.AssetType {
						t.Logf("batch %s mixes asset types", b.ID)
						return false
					}
					declared += req.EstimatedUnitCost
				}
				if declared != b.DeclaredCost {
					t.Logf("batch %s declared cost %d != member sum %d", b.ID, b.DeclaredCost, declared)
					return false
				}
			}

			// 类型内顺序 = 提交顺序：按类型串联批次成员应复原子序列。
			for _, at := range allTypes {
				var want, got []string
				for _, req := range requests {
					if req.AssetType == at {
						want = append(want, req.ID)
					}
				}
				for _, b := range batches {
					if b.AssetType != at {
						continue
					}
					for _, req := range b.Requests {
						got = append(got, req.ID)
					}
				}
				if len(want) != len(got) {
					t.Logf("type %s member count mismatch", at)
					return false
				}
				for i := range want {
					if want[i] != got[i] {
						t.Logf("type %s order broken at %d: %s != %s", at, i, want[i], got[i])
						return false
					}
				}
			}

			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.IntRange(1, 7),
	))

	properties.TestingRun(t)
}

// 续跑剔除等价于对剩余集合的全新组合。
func TestProperty_ComposeExcludingMatchesFreshCompose(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	allTypes := types.AllAssetTypes()

	properties.Property("excluding done requests matches composing the remainder", prop.ForAll(
		func(typeIdxs []int, doneMask []bool, batchSize int) bool {
			requests := make([]types.GenerationRequest, 0, len(typeIdxs))
			for i, idx := range typeIdxs {
				requests = append(requests, types.GenerationRequest{
					ID:                fmt.Sprintf("req-%03d", i+1),
					AssetType:         allTypes[idx%len(allTypes)],
					Prompt:            "generated property test prompt",
					Filename:          fmt.Sprintf("req-%03d.png", i+1),
					EstimatedUnitCost: 40_000,
				})
			}

			done := make(map[string]bool)
			var remaining []types.GenerationRequest
			for i, req := range requests {
				if i < len(doneMask) && doneMask[i] {
					done[req.ID] = true
					continue
				}
				remaining = append(remaining, req)
			}

			c := NewComposer(Config{DefaultBatchSize: batchSize}, zap.NewNop())
			excluded, skipped := c.ComposeExcluding(requests, done)
			fresh := c.Compose(remaining)

			if len(skipped) != len(done) {
				t.Logf("skipped %d != done %d", len(skipped), len(done))
				return false
			}
			if len(excluded) != len(fresh) {
				t.Logf("batch count mismatch: %d != %d", len(excluded), len(fresh))
				return false
			}
			for i := range fresh {
				if excluded[i].ID != fresh[i].ID ||
					excluded[i].DeclaredCost != fresh[i].DeclaredCost ||
					excluded[i].Size() != fresh[i].Size() {
					t.Logf("batch %d shape mismatch", i)
					return false
				}
				for j := range fresh[i].Requests {
					if excluded[i].Requests[j].ID != fresh[i].Requests[j].ID {
						t.Logf("batch %d member %d mismatch", i, j)
						return false
					}
				}
			}

			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.Bool()),
		gen.IntRange(1, 7),
	))

	properties.TestingRun(t)
}
