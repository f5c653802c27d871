package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/types"
)

const (
	trailFileName   = "trail.jsonl"
	resultsFileName = "results.jsonl"
	reportFileName  = "report.json"
)

// chainedEntry 是落盘的流水行：流水本体加哈希链字段。
// hash = sha256(本体 JSON || 前一行 hash 的字节)，首行无 prev_hash。
type chainedEntry struct {
	types.AuditEntry
	PrevHash string `json:"prev_hash,omitempty"`
	Hash     string `json:"hash"`
}

// FileTrailStore 是文件存储实现，适合单机生产部署。
// 每个运行一个目录：流水与结果各为一个 JSONL 追加文件，报告为
// 原子写入的 JSON。流水文件带 SHA-256 哈希链，事后可验证未被篡改。
type FileTrailStore struct {
	baseDir string
	fsync   bool
	logger  *zap.Logger

	mu     sync.Mutex
	runs   map[string]*runFiles
	closed bool
}

type runFiles struct {
	trail    *os.File
	results  *os.File
	lastHash string
}

// NewFileTrailStore 创建文件存储并确保根目录存在。
func NewFileTrailStore(config FileStoreConfig, logger *zap.Logger) (*FileTrailStore, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("%w: file trail store requires base_dir", ErrInvalidInput)
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trail store directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileTrailStore{
		baseDir: config.BaseDir,
		fsync:   config.Fsync,
		logger:  logger.With(zap.String("component", "file_trail_store")),
		runs:    make(map[string]*runFiles),
	}, nil
}

// AppendEntry 追加一条账本流水并延长哈希链。
func (s *FileTrailStore) AppendEntry(_ context.Context, entry types.AuditEntry) error {
	if entry.RunID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	rf, err := s.openRunLocked(entry.RunID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	line := chainedEntry{
		AuditEntry: entry,
		PrevHash:   rf.lastHash,
		Hash:       chainHash(body, rf.lastHash),
	}
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to marshal chained entry: %w", err)
	}

	if err := s.appendLine(rf.trail, data); err != nil {
		return err
	}
	rf.lastHash = line.Hash
	return nil
}

// AppendResult 追加一个请求结果。
func (s *FileTrailStore) AppendResult(_ context.Context, result types.GenerationResult) error {
	if result.RunID == "" || result.RequestID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	rf, err := s.openRunLocked(result.RunID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return s.appendLine(rf.results, data)
}

func (s *FileTrailStore) appendLine(f *os.File, data []byte) error {
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append line: %w", err)
	}
	if s.fsync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to fsync: %w", err)
		}
	}
	return nil
}

// openRunLocked 打开（或创建）运行目录与追加文件，恢复哈希链尾。
func (s *FileTrailStore) openRunLocked(runID string) (*runFiles, error) {
	if rf, ok := s.runs[runID]; ok {
		return rf, nil
	}

	dir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	trail, err := os.OpenFile(filepath.Join(dir, trailFileName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trail file: %w", err)
	}
	results, err := os.OpenFile(filepath.Join(dir, resultsFileName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		trail.Close()
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}

	// 续跑同一运行时从已有文件恢复链尾。
	lastHash, err := lastChainHash(filepath.Join(dir, trailFileName))
	if err != nil {
		trail.Close()
		results.Close()
		return nil, err
	}

	rf := &runFiles{trail: trail, results: results, lastHash: lastHash}
	s.runs[runID] = rf
	return rf, nil
}

func lastChainHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			last = scanner.Text()
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to scan trail file: %w", err)
	}
	if last == "" {
		return "", nil
	}

	var line chainedEntry
	if err := json.Unmarshal([]byte(last), &line); err != nil {
		return "", fmt.Errorf("corrupt trail tail: %w", err)
	}
	return line.Hash, nil
}

// Entries 返回指定运行的全部流水。
func (s *FileTrailStore) Entries(_ context.Context, runID string) ([]types.AuditEntry, error) {
	lines, err := s.readChained(runID)
	if err != nil {
		return nil, err
	}
	out := make([]types.AuditEntry, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.AuditEntry)
	}
	return out, nil
}

// Results 返回指定运行的全部结果。
func (s *FileTrailStore) Results(_ context.Context, runID string) ([]types.GenerationResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.mu.Unlock()

	path := filepath.Join(s.baseDir, runID, resultsFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []types.GenerationResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r types.GenerationResult
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("corrupt results line: %w", err)
		}
		out = append(out, r)
	}
	return out, scanner.Err()
}

// SaveReport 原子写入运行报告（临时文件加重命名）。
func (s *FileTrailStore) SaveReport(_ context.Context, report types.RunReport) error {
	if report.RunID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.mu.Unlock()

	dir := filepath.Join(s.baseDir, report.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, reportFileName)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return os.Rename(tempPath, path)
}

// Report 读取指定运行的报告。
func (s *FileTrailStore) Report(_ context.Context, runID string) (*types.RunReport, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, reportFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	var report types.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("corrupt report: %w", err)
	}
	return &report, nil
}

// CompletedRequests 返回已成功生成的请求 ID 集合。
func (s *FileTrailStore) CompletedRequests(ctx context.Context, runID string) (map[string]bool, error) {
	results, err := s.Results(ctx, runID)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool)
	for _, r := range results {
		if r.Succeeded() {
			done[r.RequestID] = true
		}
	}
	return done, nil
}

// VerifyChain 重算指定运行的哈希链，发现断链或篡改时返回错误。
func (s *FileTrailStore) VerifyChain(_ context.Context, runID string) error {
	lines, err := s.readChained(runID)
	if err != nil {
		return err
	}

	prev := ""
	for i, line := range lines {
		if line.PrevHash != prev {
			return fmt.Errorf("hash chain broken at line %d: prev_hash %q, want %q",
				i+1, line.PrevHash, prev)
		}
		body, err := json.Marshal(line.AuditEntry)
		if err != nil {
			return err
		}
		if want := chainHash(body, prev); line.Hash != want {
			return fmt.Errorf("hash mismatch at line %d: entry was altered", i+1)
		}
		prev = line.Hash
	}
	return nil
}

func (s *FileTrailStore) readChained(runID string) ([]chainedEntry, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.mu.Unlock()

	path := filepath.Join(s.baseDir, runID, trailFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []chainedEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var line chainedEntry
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("corrupt trail line: %w", err)
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// Close 关闭全部运行文件。
func (s *FileTrailStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for runID, rf := range s.runs {
		if err := rf.trail.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := rf.results.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.runs, runID)
	}
	return firstErr
}

// chainHash 计算链上一行的哈希：sha256(本体 || 前哈希字节)。
func chainHash(body []byte, prevHash string) string {
	concat := make([]byte, 0, len(body)+sha256.Size)
	concat = append(concat, body...)
	if prevHash != "" {
		if prevBytes, err := hex.DecodeString(prevHash); err == nil {
			concat = append(concat, prevBytes...)
		}
	}
	sum := sha256.Sum256(concat)
	return hex.EncodeToString(sum[:])
}
