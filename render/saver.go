package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/internal/pool"
	"github.com/BaSui01/renderflow/types"
)

// SavingRenderer 把内层渲染器返回的内联 base64 产物解码落盘，并把
// 产物引用改写为本地文件路径；URL 产物原样透传。应包在重试装饰器
// 之外：落盘只在渲染最终成功后发生一次，磁盘故障不会触发重新出图
// （图已经计费，重渲染修不了磁盘）。
type SavingRenderer struct {
	inner  Renderer
	dir    string
	logger *zap.Logger
}

// NewSavingRenderer 创建落盘装饰器，产物写入 dir 下按请求文件名
// 命名的文件。
func NewSavingRenderer(inner Renderer, dir string, logger *zap.Logger) *SavingRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SavingRenderer{
		inner:  inner,
		dir:    dir,
		logger: logger.With(zap.String("component", "saving_renderer")),
	}
}

// Name 返回被包装实现的名称。
func (s *SavingRenderer) Name() string { return s.inner.Name() }

// Render 渲染一张图；返回内联数据时解码写入目标文件。
func (s *SavingRenderer) Render(ctx context.Context, req *Request) (*Artifact, error) {
	artifact, err := s.inner.Render(ctx, req)
	if err != nil {
		return nil, err
	}
	if artifact.B64Data == "" {
		return artifact, nil
	}

	path, err := s.save(req, artifact.B64Data)
	if err != nil {
		return nil, types.NewGenerationError("failed to save artifact", err).
			WithProvider(s.Name())
	}

	artifact.URL = path
	artifact.B64Data = ""
	return artifact, nil
}

// save 解码 base64 负载并原子写入目标文件，返回最终路径。
func (s *SavingRenderer) save(req *Request, b64 string) (string, error) {
	name := req.Filename
	if name == "" {
		name = req.RefID + ".png"
	}
	name = filepath.Clean(name)
	if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filename %q escapes output directory", req.Filename)
	}

	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	if _, err := io.Copy(buf, base64.NewDecoder(base64.StdEncoding, strings.NewReader(b64))); err != nil {
		return "", fmt.Errorf("failed to decode artifact payload: %w", err)
	}

	// 先写临时文件再改名，半截文件不会被当成完整产物。
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize artifact file: %w", err)
	}

	s.logger.Debug("artifact saved",
		zap.String("ref_id", req.RefID),
		zap.String("path", path),
		zap.Int("bytes", buf.Len()))
	return path, nil
}
