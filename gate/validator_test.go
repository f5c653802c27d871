package gate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/renderflow/types"
)

// =============================================================================
// 🧪 长度校验测试
// =============================================================================

func TestLengthValidator_Bounds(t *testing.T) {
	v := NewLengthValidator(&LengthValidatorConfig{MinLength: 8, MaxLength: 20})
	ctx := context.Background()

	t.Run("below minimum", func(t *testing.T) {
		err := v.Validate(ctx, "short")
		require.Error(t, err)
		assert.True(t, types.IsValidation(err))
		assert.Contains(t, err.Error(), "below minimum")
	})

	t.Run("at minimum", func(t *testing.T) {
		assert.NoError(t, v.Validate(ctx, "12345678"))
	})

	t.Run("at maximum", func(t *testing.T) {
		assert.NoError(t, v.Validate(ctx, strings.Repeat("a", 20)))
	})

	t.Run("above maximum", func(t *testing.T) {
		err := v.Validate(ctx, strings.Repeat("a", 21))
		require.Error(t, err)
		assert.True(t, types.IsValidation(err))
		assert.Contains(t, err.Error(), "exceeds maximum")
	})
}

func TestLengthValidator_CountsRunes(t *testing.T) {
	// 多字节文字按 rune 计数，不按字节。
	v := NewLengthValidator(&LengthValidatorConfig{MinLength: 4, MaxLength: 4})
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, "山水画卷"))
	assert.Error(t, v.Validate(ctx, "山水画"))
	assert.Error(t, v.Validate(ctx, "山水画卷轴"))
}

func TestLengthValidator_ZeroBoundsDisabled(t *testing.T) {
	v := NewLengthValidator(&LengthValidatorConfig{})
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, ""))
	assert.NoError(t, v.Validate(ctx, strings.Repeat("a", 100_000)))
}

func TestLengthValidator_NilConfigUsesDefaults(t *testing.T) {
	v := NewLengthValidator(nil)
	ctx := context.Background()

	assert.Error(t, v.Validate(ctx, "tiny"))
	assert.NoError(t, v.Validate(ctx, "a perfectly reasonable prompt"))
	assert.Equal(t, "length_validator", v.Name())
}

// =============================================================================
// 🧪 关键词校验测试
// =============================================================================

func TestKeywordValidator_Detect(t *testing.T) {
	v := NewKeywordValidator(&KeywordValidatorConfig{Blocklist: []string{"nude"}})

	matches := v.Detect("a nude statue, nude again")
	require.Len(t, matches, 2)
	assert.Equal(t, "nude", matches[0].Keyword)
	assert.Equal(t, 2, matches[0].Position)
	assert.Equal(t, 15, matches[1].Position)
}

func TestKeywordValidator_CaseInsensitiveByDefault(t *testing.T) {
	v := NewKeywordValidator(&KeywordValidatorConfig{Blocklist: []string{"NSFW"}})

	err := v.Validate(context.Background(), "strictly nsfw content")
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestKeywordValidator_CaseSensitive(t *testing.T) {
	v := NewKeywordValidator(&KeywordValidatorConfig{
		Blocklist:     []string{"NSFW"},
		CaseSensitive: true,
	})
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, "strictly nsfw content"))
	assert.Error(t, v.Validate(ctx, "strictly NSFW content"))
}

func TestKeywordValidator_ReasonListsKeywordOnce(t *testing.T) {
	v := NewKeywordValidator(&KeywordValidatorConfig{Blocklist: []string{"gore"}})

	err := v.Validate(context.Background(), "gore and more gore")
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(err.Error(), "gore"))
}

func TestKeywordValidator_EmptyBlocklist(t *testing.T) {
	v := NewKeywordValidator(nil)

	assert.NoError(t, v.Validate(context.Background(), "anything goes here"))
	assert.Empty(t, v.Detect("anything"))
}

func TestKeywordValidator_BlocklistReturnsCopy(t *testing.T) {
	v := NewKeywordValidator(&KeywordValidatorConfig{Blocklist: []string{"banned"}})

	got := v.Blocklist()
	got[0] = "mutated"

	require.Len(t, v.Detect("banned word"), 1)
	assert.Equal(t, []string{"banned"}, v.Blocklist())
}
