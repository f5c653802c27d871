package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPool_CapsConcurrency(t *testing.T) {
	p := NewRenderPool(3, nil)
	defer p.Close()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(ctx, func(context.Context) error {
				cur := active.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3), "并发峰值不得超过池大小")
	assert.Equal(t, int64(12), p.Stats().Completed)
}

func TestRenderPool_ReturnsJobError(t *testing.T) {
	p := NewRenderPool(1, nil)
	defer p.Close()

	wantErr := errors.New("render exploded")
	err := p.Do(context.Background(), func(context.Context) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestRenderPool_PanicBecomesError(t *testing.T) {
	p := NewRenderPool(1, nil)
	defer p.Close()

	err := p.Do(context.Background(), func(context.Context) error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// 池在 panic 之后继续可用。
	assert.NoError(t, p.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestRenderPool_CancelledSubmission(t *testing.T) {
	p := NewRenderPool(1, nil)
	defer p.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup

	// 占住唯一的工作者并填满队列。
	for i := 0; i < 1+cap(p.jobs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(context.Context) error {
				<-release
				return nil
			})
		}()
	}
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	wg.Wait()
}

func TestRenderPool_ClosedRejects(t *testing.T) {
	p := NewRenderPool(2, nil)
	p.Close()
	p.Close() // 幂等

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestRenderPool_DefaultSize(t *testing.T) {
	p := NewRenderPool(0, nil)
	defer p.Close()
	assert.Equal(t, 4, p.Size())
}
