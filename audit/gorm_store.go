package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/renderflow/internal/database"
	"github.com/BaSui01/renderflow/types"
)

// AuditEntryRecord 是账本流水的数据库行。
type AuditEntryRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RunID          string    `gorm:"size:64;not null;index:idx_entry_run" json:"run_id"`
	Seq            uint64    `gorm:"not null" json:"seq"`
	Op             string    `gorm:"size:16;not null" json:"op"`
	AmountMicros   int64     `json:"amount_micros"`
	RefID          string    `gorm:"size:128" json:"ref_id"`
	AssetType      string    `gorm:"size:32" json:"asset_type"`
	SpentMicros    int64     `json:"spent_micros"`
	ReservedMicros int64     `json:"reserved_micros"`
	Detail         string    `gorm:"size:512" json:"detail"`
	Timestamp      time.Time `json:"timestamp"`
}

// TableName 指定表名。
func (AuditEntryRecord) TableName() string { return "audit_entries" }

// ResultRecord 是请求结果的数据库行。
type ResultRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RunID            string    `gorm:"size:64;not null;index:idx_result_run" json:"run_id"`
	RequestID        string    `gorm:"size:128;not null;index:idx_result_request" json:"request_id"`
	BatchID          string    `gorm:"size:128" json:"batch_id"`
	AssetType        string    `gorm:"size:32" json:"asset_type"`
	Filename         string    `gorm:"size:256" json:"filename"`
	Status           string    `gorm:"size:16;not null" json:"status"`
	ActualCostMicros int64     `json:"actual_cost_micros"`
	Reference        string    `gorm:"size:512" json:"reference"`
	ErrorCode        string    `gorm:"size:32" json:"error_code"`
	Reason           string    `gorm:"size:512" json:"reason"`
	ElapsedNs        int64     `json:"elapsed_ns"`
	CompletedAt      time.Time `json:"completed_at"`
}

// TableName 指定表名。
func (ResultRecord) TableName() string { return "generation_results" }

// ReportRecord 是运行报告的数据库行，报告本体以 JSON 存储。
type ReportRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"size:64;not null;uniqueIndex:idx_report_run" json:"run_id"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名。
func (ReportRecord) TableName() string { return "run_reports" }

// GormTrailStore 是数据库存储实现，SQLite 与 PostgreSQL 均可用。
type GormTrailStore struct {
	db     *gorm.DB
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewGormTrailStore 按 DSN 打开数据库并创建存储。dsn 为空时用共享
// 内存 SQLite，便于测试与演练。
func NewGormTrailStore(dsn string, logger *zap.Logger) (*GormTrailStore, error) {
	db, err := database.Open(dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open trail database: %w", err)
	}
	return NewGormTrailStoreWithDB(db, logger)
}

// NewGormTrailStoreWithDB 复用已打开的连接，自动迁移审计表。
func NewGormTrailStoreWithDB(db *gorm.DB, logger *zap.Logger) (*GormTrailStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil gorm db", ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(&AuditEntryRecord{}, &ResultRecord{}, &ReportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate audit tables: %w", err)
	}

	return &GormTrailStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_trail_store")),
	}, nil
}

func (s *GormTrailStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// AppendEntry 追加一条账本流水。
func (s *GormTrailStore) AppendEntry(ctx context.Context, entry types.AuditEntry) error {
	if entry.RunID == "" {
		return ErrInvalidInput
	}
	if err := s.guard(); err != nil {
		return err
	}

	record := AuditEntryRecord{
		RunID:          entry.RunID,
		Seq:            entry.Seq,
		Op:             string(entry.Op),
		AmountMicros:   int64(entry.Amount),
		RefID:          entry.RefID,
		AssetType:      string(entry.AssetType),
		SpentMicros:    int64(entry.Spent),
		ReservedMicros: int64(entry.Reserved),
		Detail:         entry.Detail,
		Timestamp:      entry.Timestamp,
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// AppendResult 追加一个请求结果。
func (s *GormTrailStore) AppendResult(ctx context.Context, result types.GenerationResult) error {
	if result.RunID == "" || result.RequestID == "" {
		return ErrInvalidInput
	}
	if err := s.guard(); err != nil {
		return err
	}

	record := ResultRecord{
		RunID:            result.RunID,
		RequestID:        result.RequestID,
		BatchID:          result.BatchID,
		AssetType:        string(result.AssetType),
		Filename:         result.Filename,
		Status:           string(result.Status),
		ActualCostMicros: int64(result.ActualCost),
		Reference:        result.Reference,
		ErrorCode:        string(result.ErrorCode),
		Reason:           result.Reason,
		ElapsedNs:        int64(result.Elapsed),
		CompletedAt:      result.CompletedAt,
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// Entries 返回指定运行的全部流水，按追加顺序。
func (s *GormTrailStore) Entries(ctx context.Context, runID string) ([]types.AuditEntry, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var records []AuditEntryRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.AuditEntry, 0, len(records))
	for _, r := range records {
		out = append(out, types.AuditEntry{
			RunID:     r.RunID,
			Seq:       r.Seq,
			Op:        types.AuditOp(r.Op),
			Amount:    types.Amount(r.AmountMicros),
			RefID:     r.RefID,
			AssetType: types.AssetType(r.AssetType),
			Spent:     types.Amount(r.SpentMicros),
			Reserved:  types.Amount(r.ReservedMicros),
			Detail:    r.Detail,
			Timestamp: r.Timestamp,
		})
	}
	return out, nil
}

// Results 返回指定运行的全部结果，按追加顺序。
func (s *GormTrailStore) Results(ctx context.Context, runID string) ([]types.GenerationResult, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var records []ResultRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.GenerationResult, 0, len(records))
	for _, r := range records {
		out = append(out, types.GenerationResult{
			RunID:       r.RunID,
			RequestID:   r.RequestID,
			BatchID:     r.BatchID,
			AssetType:   types.AssetType(r.AssetType),
			Filename:    r.Filename,
			Status:      types.ResultStatus(r.Status),
			ActualCost:  types.Amount(r.ActualCostMicros),
			Reference:   r.Reference,
			ErrorCode:   types.ErrorCode(r.ErrorCode),
			Reason:      r.Reason,
			Elapsed:     time.Duration(r.ElapsedNs),
			CompletedAt: r.CompletedAt,
		})
	}
	return out, nil
}

// SaveReport 保存运行报告，同一运行覆盖更新。
func (s *GormTrailStore) SaveReport(ctx context.Context, report types.RunReport) error {
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

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ReportRecord
		err := tx.Where("run_id = ?", report.RunID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&ReportRecord{
				RunID:     report.RunID,
				Payload:   payload,
				UpdatedAt: time.Now(),
			}).Error
		case err != nil:
			return err
		default:
			existing.Payload = payload
			existing.UpdatedAt = time.Now()
			return tx.Save(&existing).Error
		}
	})
}

// Report 读取指定运行的报告。
func (s *GormTrailStore) Report(ctx context.Context, runID string) (*types.RunReport, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var record ReportRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalReport(record.Payload)
}

// CompletedRequests 返回已成功生成的请求 ID 集合。
func (s *GormTrailStore) CompletedRequests(ctx context.Context, runID string) (map[string]bool, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.WithContext(ctx).
		Model(&ResultRecord{}).
		Where("run_id = ? AND status = ?", runID, string(types.ResultGenerated)).
		Pluck("request_id", &ids).Error
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

// Close 关闭底层连接。
func (s *GormTrailStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
