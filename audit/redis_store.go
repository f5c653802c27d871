package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// RedisTrailStore 是 Redis 存储实现，适合分布式部署。
// 流水与结果用 LIST 保持追加顺序，已完成请求用 SET，报告为单键。
type RedisTrailStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisTrailStore 连接 Redis 并创建存储。
func NewRedisTrailStore(config RedisStoreConfig, logger *zap.Logger) (*RedisTrailStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "renderflow:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisTrailStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       config.TTL,
		logger:    logger.With(zap.String("component", "redis_trail_store")),
	}, nil
}

func (s *RedisTrailStore) entriesKey(runID string) string {
	return s.keyPrefix + "run:" + runID + ":entries"
}

func (s *RedisTrailStore) resultsKey(runID string) string {
	return s.keyPrefix + "run:" + runID + ":results"
}

func (s *RedisTrailStore) reportKey(runID string) string {
	return s.keyPrefix + "run:" + runID + ":report"
}

func (s *RedisTrailStore) doneKey(runID string) string {
	return s.keyPrefix + "run:" + runID + ":done"
}

func (s *RedisTrailStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// AppendEntry 追加一条账本流水。
func (s *RedisTrailStore) AppendEntry(ctx context.Context, entry types.AuditEntry) error {
	if entry.RunID == "" {
		return ErrInvalidInput
	}
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	pipe := s.client.Pipeline()
	key := s.entriesKey(entry.RunID)
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// AppendResult 追加一个请求结果；成功结果同步进入已完成集合。
func (s *RedisTrailStore) AppendResult(ctx context.Context, result types.GenerationResult) error {
	if result.RunID == "" || result.RequestID == "" {
		return ErrInvalidInput
	}
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	pipe := s.client.Pipeline()
	resultsKey := s.resultsKey(result.RunID)
	pipe.RPush(ctx, resultsKey, data)
	if result.Succeeded() {
		pipe.SAdd(ctx, s.doneKey(result.RunID), result.RequestID)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, resultsKey, s.ttl)
		pipe.Expire(ctx, s.doneKey(result.RunID), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Entries 返回指定运行的全部流水，按追加顺序。
func (s *RedisTrailStore) Entries(ctx context.Context, runID string) ([]types.AuditEntry, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.entriesKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]types.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var entry types.AuditEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("corrupt audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Results 返回指定运行的全部结果，按追加顺序。
func (s *RedisTrailStore) Results(ctx context.Context, runID string) ([]types.GenerationResult, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.resultsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]types.GenerationResult, 0, len(raw))
	for _, item := range raw {
		var result types.GenerationResult
		if err := json.Unmarshal([]byte(item), &result); err != nil {
			return nil, fmt.Errorf("corrupt result: %w", err)
		}
		out = append(out, result)
	}
	return out, nil
}

// SaveReport 保存运行报告，同一运行覆盖更新。
func (s *RedisTrailStore) SaveReport(ctx context.Context, report types.RunReport) error {
	if report.RunID == "" {
		return ErrInvalidInput
	}
	if err := s.guard(); err != nil {
		return err
	}

	payload, err := marshalReport(report)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.reportKey(report.RunID), payload, s.ttl).Err()
}

// Report 读取指定运行的报告。
func (s *RedisTrailStore) Report(ctx context.Context, runID string) (*types.RunReport, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	payload, err := s.client.Get(ctx, s.reportKey(runID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalReport(payload)
}

// CompletedRequests 返回已成功生成的请求 ID 集合。
func (s *RedisTrailStore) CompletedRequests(ctx context.Context, runID string) (map[string]bool, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.doneKey(runID)).Result()
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

// Close 关闭 Redis 连接。
func (s *RedisTrailStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
