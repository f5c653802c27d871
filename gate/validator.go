package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/renderflow/types"
)

// Validator 校验单条提示词，不通过时返回 VALIDATION 错误。
type Validator interface {
	// Name 返回校验器名称，进入拒绝原因便于定位。
	Name() string
	// Validate 校验提示词内容。
	Validate(ctx context.Context, prompt string) error
}

// =============================================================================
// 长度校验
// =============================================================================

// LengthValidatorConfig 长度校验器配置
type LengthValidatorConfig struct {
	// MinLength 最小长度（rune 数），0 表示不限。
	MinLength int
	// MaxLength 最大长度（rune 数），0 表示不限。
	MaxLength int
}

// DefaultLengthValidatorConfig 返回默认配置，上限对齐主流图像服务的
// 提示词长度限制。
func DefaultLengthValidatorConfig() *LengthValidatorConfig {
	return &LengthValidatorConfig{
		MinLength: 8,
		MaxLength: 4000,
	}
}

// LengthValidator 长度校验器。提示词过短多为模板渲染遗漏变量，
// 过长会被渲染服务截断或拒绝，两种情况都不值得花钱外呼。
type LengthValidator struct {
	minLength int
	maxLength int
}

// NewLengthValidator 创建长度校验器
func NewLengthValidator(config *LengthValidatorConfig) *LengthValidator {
	if config == nil {
		config = DefaultLengthValidatorConfig()
	}
	return &LengthValidator{
		minLength: config.MinLength,
		maxLength: config.MaxLength,
	}
}

// Name 返回校验器名称
func (v *LengthValidator) Name() string {
	return "length_validator"
}

// Validate 执行长度校验。使用 rune 计数以支持多字节文字。
func (v *LengthValidator) Validate(_ context.Context, prompt string) error {
	promptLen := len([]rune(prompt))
	if v.minLength > 0 && promptLen < v.minLength {
		return types.NewValidationError(
			fmt.Sprintf("prompt length %d below minimum %d", promptLen, v.minLength))
	}
	if v.maxLength > 0 && promptLen > v.maxLength {
		return types.NewValidationError(
			fmt.Sprintf("prompt length %d exceeds maximum %d", promptLen, v.maxLength))
	}
	return nil
}

// =============================================================================
// 关键词校验
// =============================================================================

// KeywordValidatorConfig 关键词校验器配置
type KeywordValidatorConfig struct {
	// Blocklist 禁止的关键词列表。
	Blocklist []string
	// CaseSensitive 是否区分大小写。
	CaseSensitive bool
}

// KeywordMatch 关键词命中位置
type KeywordMatch struct {
	Keyword  string `json:"keyword"`
	Position int    `json:"position"`
}

// KeywordValidator 关键词校验器，检测提示词中的禁止内容。
// 付费渲染只取拒绝动作：被替换或截断过的提示词会渲染出错误的产物，
// 照样收费。
type KeywordValidator struct {
	blocklist     []string
	caseSensitive bool
}

// NewKeywordValidator 创建关键词校验器
func NewKeywordValidator(config *KeywordValidatorConfig) *KeywordValidator {
	if config == nil {
		config = &KeywordValidatorConfig{}
	}
	blocklist := make([]string, len(config.Blocklist))
	copy(blocklist, config.Blocklist)
	return &KeywordValidator{
		blocklist:     blocklist,
		caseSensitive: config.CaseSensitive,
	}
}

// Name 返回校验器名称
func (v *KeywordValidator) Name() string {
	return "keyword_validator"
}

// Validate 执行关键词校验，命中任意禁止词即拒绝。
func (v *KeywordValidator) Validate(_ context.Context, prompt string) error {
	matches := v.Detect(prompt)
	if len(matches) == 0 {
		return nil
	}

	keywords := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, m := range matches {
		key := strings.ToLower(m.Keyword)
		if !seen[key] {
			seen[key] = true
			keywords = append(keywords, m.Keyword)
		}
	}
	return types.NewValidationError("blocked keyword: " + strings.Join(keywords, ", "))
}

// Detect 返回提示词中所有禁止关键词的命中位置。
func (v *KeywordValidator) Detect(prompt string) []KeywordMatch {
	var matches []KeywordMatch

	search := prompt
	if !v.caseSensitive {
		search = strings.ToLower(prompt)
	}

	for _, keyword := range v.blocklist {
		needle := keyword
		if !v.caseSensitive {
			needle = strings.ToLower(keyword)
		}
		if needle == "" {
			continue
		}

		start := 0
		for {
			idx := strings.Index(search[start:], needle)
			if idx == -1 {
				break
			}
			pos := start + idx
			matches = append(matches, KeywordMatch{Keyword: keyword, Position: pos})
			start = pos + len(needle)
		}
	}
	return matches
}

// Blocklist 返回禁止关键词列表的副本。
func (v *KeywordValidator) Blocklist() []string {
	out := make([]string, len(v.blocklist))
	copy(out, v.blocklist)
	return out
}
