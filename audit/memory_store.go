package audit

import (
	"context"
	"sync"

	"github.com/BaSui01/renderflow/types"
)

// MemoryTrailStore 是内存存储实现，测试与内嵌场景使用。
type MemoryTrailStore struct {
	mu      sync.RWMutex
	entries map[string][]types.AuditEntry
	results map[string][]types.GenerationResult
	reports map[string]types.RunReport
	closed  bool
}

// NewMemoryTrailStore 创建内存存储。
func NewMemoryTrailStore() *MemoryTrailStore {
	return &MemoryTrailStore{
		entries: make(map[string][]types.AuditEntry),
		results: make(map[string][]types.GenerationResult),
		reports: make(map[string]types.RunReport),
	}
}

// AppendEntry 追加一条账本流水。
func (s *MemoryTrailStore) AppendEntry(_ context.Context, entry types.AuditEntry) error {
	if entry.RunID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.entries[entry.RunID] = append(s.entries[entry.RunID], entry)
	return nil
}

// AppendResult 追加一个请求结果。
func (s *MemoryTrailStore) AppendResult(_ context.Context, result types.GenerationResult) error {
	if result.RunID == "" || result.RequestID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.results[result.RunID] = append(s.results[result.RunID], result)
	return nil
}

// Entries 返回指定运行的全部流水。
func (s *MemoryTrailStore) Entries(_ context.Context, runID string) ([]types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]types.AuditEntry, len(s.entries[runID]))
	copy(out, s.entries[runID])
	return out, nil
}

// Results 返回指定运行的全部结果。
func (s *MemoryTrailStore) Results(_ context.Context, runID string) ([]types.GenerationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]types.GenerationResult, len(s.results[runID]))
	copy(out, s.results[runID])
	return out, nil
}

// SaveReport 保存运行报告。
func (s *MemoryTrailStore) SaveReport(_ context.Context, report types.RunReport) error {
	if report.RunID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.reports[report.RunID] = report
	return nil
}

// Report 读取指定运行的报告。
func (s *MemoryTrailStore) Report(_ context.Context, runID string) (*types.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	report, ok := s.reports[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &report, nil
}

// CompletedRequests 返回已成功生成的请求 ID 集合。
func (s *MemoryTrailStore) CompletedRequests(_ context.Context, runID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	done := make(map[string]bool)
	for _, r := range s.results[runID] {
		if r.Succeeded() {
			done[r.RequestID] = true
		}
	}
	return done, nil
}

// Close 关闭存储。
func (s *MemoryTrailStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
