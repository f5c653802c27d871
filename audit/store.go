package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

// 存储层哨兵错误。
var (
	ErrStoreClosed  = errors.New("trail store is closed")
	ErrRunNotFound  = errors.New("run not found")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType 枚举支持的存储后端。
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFile     StoreType = "file"
	StoreTypeDatabase StoreType = "database"
	StoreTypeRedis    StoreType = "redis"
)

// TrailStore 是审计流水的存储接口。Append 两个方法必须逐条落盘，
// 不得缓冲；查询方法按追加顺序返回。
type TrailStore interface {
	// AppendEntry 追加一条账本流水。
	AppendEntry(ctx context.Context, entry types.AuditEntry) error

	// AppendResult 追加一个请求结果。
	AppendResult(ctx context.Context, result types.GenerationResult) error

	// Entries 返回指定运行的全部流水，按追加顺序。
	Entries(ctx context.Context, runID string) ([]types.AuditEntry, error)

	// Results 返回指定运行的全部结果，按追加顺序。
	Results(ctx context.Context, runID string) ([]types.GenerationResult, error)

	// SaveReport 保存运行报告，可覆盖。
	SaveReport(ctx context.Context, report types.RunReport) error

	// Report 读取指定运行的报告，不存在时返回 ErrRunNotFound。
	Report(ctx context.Context, runID string) (*types.RunReport, error)

	// CompletedRequests 返回指定运行已成功生成的请求 ID 集合，
	// 供续跑剔除使用。失败的请求不在其中：钱已释放，重试不会重复扣费。
	CompletedRequests(ctx context.Context, runID string) (map[string]bool, error)

	// Close 关闭存储并释放资源。
	Close() error
}

// StoreConfig 汇总各后端的存储配置。
type StoreConfig struct {
	Type StoreType `json:"type" yaml:"type"`

	// File 后端配置。
	File FileStoreConfig `json:"file" yaml:"file"`

	// Redis 后端配置。
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// DSN 为 database 后端的连接串（空则用内存 SQLite）。
	DSN string `json:"dsn" yaml:"dsn"`
}

// FileStoreConfig 配置文件后端。
type FileStoreConfig struct {
	// BaseDir 运行目录根，每个运行一个子目录。
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Fsync 每次追加后同步落盘，崩溃不丢已确认的流水。
	Fsync bool `json:"fsync" yaml:"fsync"`
}

// RedisStoreConfig 配置 Redis 后端。
type RedisStoreConfig struct {
	Host      string        `json:"host" yaml:"host"`
	Port      int           `json:"port" yaml:"port"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	PoolSize  int           `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultStoreConfig 返回默认配置：文件后端，fsync 开启。
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type: StoreTypeFile,
		File: FileStoreConfig{
			BaseDir: "./data/runs",
			Fsync:   true,
		},
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			PoolSize:  10,
			KeyPrefix: "renderflow:",
		},
	}
}

// NewTrailStore 按配置创建存储实现。
func NewTrailStore(config StoreConfig, logger *zap.Logger) (TrailStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryTrailStore(), nil
	case StoreTypeFile:
		return NewFileTrailStore(config.File, logger)
	case StoreTypeDatabase:
		return NewGormTrailStore(config.DSN, logger)
	case StoreTypeRedis:
		return NewRedisTrailStore(config.Redis, logger)
	default:
		return nil, fmt.Errorf("%w: unknown trail store type %q", ErrInvalidInput, config.Type)
	}
}

func marshalReport(report types.RunReport) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

func unmarshalReport(payload string) (*types.RunReport, error) {
	var report types.RunReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("corrupt report payload: %w", err)
	}
	return &report, nil
}
