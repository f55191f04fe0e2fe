package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoadsEmbeddedLocales(t *testing.T) {
	c, err := New("en")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "zh"}, c.Languages())

	_, err = New("fr")
	assert.Error(t, err)
	_, err = New("not a tag!")
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	c, err := New("en")
	require.NoError(t, err)

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"zh", "zh"},
		{"zh-CN,zh;q=0.9,en;q=0.8", "zh"},
		{"fr-FR,en;q=0.5", "en"},
		{"de", "en"},
		{"garbage;;", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Match(tt.header))
		})
	}
}

func TestT(t *testing.T) {
	c, err := New("en")
	require.NoError(t, err)

	ctx := WithLocalizer(context.Background(), c.Localizer("zh"))
	assert.Equal(t, "别名 admin 为系统保留字", T(ctx, "error.alias_reserved", map[string]any{"Alias": "admin"}, "fallback"))
	assert.Equal(t, "短链不存在", T(ctx, "error.not_found", nil, "fallback"))

	en := WithLocalizer(context.Background(), c.Localizer("en"))
	assert.Equal(t, "URL must be at most 2048 characters", T(en, "error.url_too_long", map[string]any{"Max": 2048}, ""))

	assert.Equal(t, "fallback", T(ctx, "error.unknown_id", nil, "fallback"))
	assert.Equal(t, "fallback", T(context.Background(), "error.not_found", nil, "fallback"))
}
