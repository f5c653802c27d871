package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/renderflow/internal/metrics"
)

// =============================================================================
// 🗄️ 审计库连接池
// =============================================================================

// PoolConfig 连接池参数。
type PoolConfig struct {
	// Name 指标与日志里的逻辑库名。
	Name string `yaml:"name" json:"name"`

	// MaxIdleConns / MaxOpenConns 空闲与打开连接上限。
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// ConnMaxLifetime / ConnMaxIdleTime 连接生命周期上限。
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// HealthCheckInterval 健康检查周期，0 表示不检查。
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 返回默认连接池配置。审计写入是低并发顺序追加，
// 池子不需要服务级的连接数。
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:                "audit_trail",
		MaxIdleConns:        5,
		MaxOpenConns:        20,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// PoolManager 管理审计存储的数据库连接池：统一池参数、周期健康
// 检查并上报连接指标、事务重试。
type PoolManager struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	config  PoolConfig
	metrics *metrics.Collector
	logger  *zap.Logger

	stop chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewPoolManager 以给定的 gorm 连接创建池管理器。collector 可为 nil。
func NewPoolManager(db *gorm.DB, config PoolConfig, collector *metrics.Collector, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = DefaultPoolConfig().Name
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:      db,
		sqlDB:   sqlDB,
		config:  config,
		metrics: collector,
		logger:  logger.With(zap.String("component", "db_pool"), zap.String("database", config.Name)),
		stop:    make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go pm.healthCheckLoop()
	}

	pm.logger.Info("database pool initialized",
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("conn_max_lifetime", config.ConnMaxLifetime))
	return pm, nil
}

// DB 返回 GORM 实例，审计存储以它建表与写入。
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// Ping 检查数据库连通性。
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.closed {
		return fmt.Errorf("pool is closed")
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回连接池统计。
func (pm *PoolManager) Stats() PoolStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	s := pm.sqlDB.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
		MaxIdleClosed:      s.MaxIdleClosed,
		MaxLifetimeClosed:  s.MaxLifetimeClosed,
	}
}

// Close 停止健康检查并关闭连接池。可重复调用。
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.stop)

	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (pm *PoolManager) healthCheckLoop() {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := pm.Ping(ctx)
		cancel()
		if err != nil {
			pm.logger.Error("database health check failed", zap.Error(err))
			continue
		}

		stats := pm.Stats()
		pm.metrics.RecordDBConnections(pm.config.Name, stats.OpenConnections, stats.Idle)
		pm.logger.Debug("database health check passed",
			zap.Int("open_connections", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int("idle", stats.Idle))
	}
}

// PoolStats 连接池统计信息。
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	MaxIdleClosed      int64         `json:"max_idle_closed"`
	MaxLifetimeClosed  int64         `json:"max_lifetime_closed"`
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务体。
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在单个事务中执行 fn，成功时上报查询耗时指标。
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return fmt.Errorf("pool is closed")
	}
	db := pm.db
	pm.mu.RUnlock()

	started := time.Now()
	if err := db.WithContext(ctx).Transaction(fn); err != nil {
		return err
	}
	pm.metrics.RecordDBQuery(pm.config.Name, "transaction", time.Since(started))
	return nil
}

// WithTransactionRetry 对死锁、序列化失败等瞬态错误做指数退避重试。
// 审计批量落盘用它抵御并发运行间的行锁冲突。
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := pm.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return err
		}

		pm.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		backoff := time.Duration(1<<uint(i)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, lastErr)
}

// isRetryableError 判定瞬态数据库错误：死锁、序列化失败
// （PostgreSQL SQLSTATE 40001）、锁超时与连接级故障。
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"deadlock",
		"serialization failure",
		"40001",
		"lock timeout",
		"lock wait timeout",
		"connection reset",
		"connection refused",
		"broken pipe",
		"bad connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
