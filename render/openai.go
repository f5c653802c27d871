package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/internal/tlsutil"
	"github.com/BaSui01/renderflow/types"
)

// OpenAIConfig 配置 OpenAI 图像渲染客户端。
type OpenAIConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // dall-e-3, gpt-image-1
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Quality / Style 全局默认，可被单次请求覆盖。
	Quality string `json:"quality,omitempty" yaml:"quality,omitempty"` // standard, hd
	Style   string `json:"style,omitempty" yaml:"style,omitempty"`     // vivid, natural

	// SizeByAsset 按资产类型选择尺寸，未登记的类型用 1024x1024。
	SizeByAsset map[types.AssetType]string `json:"size_by_asset,omitempty" yaml:"size_by_asset,omitempty"`
}

// DefaultOpenAIConfig 返回默认配置：横幅类资产用宽幅，其余方图。
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "dall-e-3",
		Timeout: 120 * time.Second,
		Quality: "standard",
		SizeByAsset: map[types.AssetType]string{
			types.AssetCover:        "1792x1024",
			types.AssetCard:         "1024x1024",
			types.AssetIcon:         "1024x1024",
			types.AssetIllustration: "1792x1024",
		},
	}
}

// OpenAIRenderer 使用 OpenAI DALL-E / gpt-image 系列渲染图像。
type OpenAIRenderer struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIRenderer 创建 OpenAI 渲染客户端。
func NewOpenAIRenderer(cfg OpenAIConfig, logger *zap.Logger) *OpenAIRenderer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIRenderer{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger.With(zap.String("component", "openai_renderer")),
	}
}

// Name 返回实现名称。
func (r *OpenAIRenderer) Name() string { return "openai-image" }

type imageGenRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageGenResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

type imageGenError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Render 渲染一张图。网络错误与 429/5xx 标记为可重试；4xx 为终判。
func (r *OpenAIRenderer) Render(ctx context.Context, req *Request) (*Artifact, error) {
	model := req.Model
	if model == "" {
		model = r.cfg.Model
	}

	body := imageGenRequest{
		Model:   model,
		Prompt:  req.Prompt,
		N:       1,
		Size:    r.sizeFor(req),
		Quality: req.Quality,
		Style:   req.Style,
	}
	if body.Quality == "" {
		body.Quality = r.cfg.Quality
	}
	if body.Style == "" {
		body.Style = r.cfg.Style
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewGenerationError("failed to encode render request", err).
			WithProvider(r.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(r.cfg.BaseURL, "/")+"/v1/images/generations",
		bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewGenerationError("failed to create render request", err).
			WithProvider(r.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewGenerationError("render cancelled", ctx.Err()).
				WithProvider(r.Name())
		}
		// 网络层失败，请求未被计费，可安全重试。
		return nil, types.NewGenerationError("render request failed", err).
			WithProvider(r.Name()).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, r.statusError(resp)
	}

	var genResp imageGenResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, types.NewGenerationError("failed to decode render response", err).
			WithProvider(r.Name())
	}
	if len(genResp.Data) == 0 {
		return nil, types.NewGenerationError("render response contains no image", nil).
			WithProvider(r.Name())
	}

	d := genResp.Data[0]
	r.logger.Debug("image rendered",
		zap.String("ref_id", req.RefID),
		zap.String("model", model),
		zap.Duration("elapsed", time.Since(started)))

	return &Artifact{
		URL:           d.URL,
		B64Data:       d.B64JSON,
		RevisedPrompt: d.RevisedPrompt,
		Provider:      r.Name(),
		Model:         model,
		CreatedAt:     time.Unix(genResp.Created, 0),
	}, nil
}

func (r *OpenAIRenderer) sizeFor(req *Request) string {
	if req.Size != "" {
		return req.Size
	}
	if size, ok := r.cfg.SizeByAsset[req.AssetType]; ok {
		return size
	}
	return "1024x1024"
}

func (r *OpenAIRenderer) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := fmt.Sprintf("render error: status=%d", resp.StatusCode)
	var apiErr imageGenError
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
		message = fmt.Sprintf("render error: status=%d %s", resp.StatusCode, apiErr.Error.Message)
	} else if len(raw) > 0 {
		message = fmt.Sprintf("render error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	// 限流与服务端错误可重试；其余 4xx 重试也不会变好。
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500

	return types.NewGenerationError(message, nil).
		WithProvider(r.Name()).
		WithHTTPStatus(resp.StatusCode).
		WithRetryable(retryable)
}
