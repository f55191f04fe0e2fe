package i18n

import (
	"context"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

type localizerKey struct{}

// Catalog 内置的多语言消息目录
type Catalog struct {
	bundle      *i18n.Bundle
	defaultLang string
	languages   []string
}

// New 加载内置的全部语言文件，defaultLang 必须是其中之一
func New(defaultLang string) (*Catalog, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("default language %q: %w", defaultLang, err)
	}
	bundle := i18n.NewBundle(tag)
	// 注册 TOML 解析器
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	c := &Catalog{bundle: bundle, defaultLang: tag.String()}
	for _, entry := range entries {
		name := path.Join("locales", entry.Name())
		data, err := localeFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		// 文件名即语言标签，如 en.toml -> en
		c.languages = append(c.languages, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
	}
	if !contains(c.languages, c.defaultLang) {
		return nil, fmt.Errorf("no messages for default language %q", c.defaultLang)
	}
	return c, nil
}

// Languages 支持的语言列表
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.languages...)
}

// Match 按 Accept-Language 的优先级选出第一个支持的语言，zh-CN 之类按主语言匹配
func (c *Catalog) Match(acceptLanguage string) string {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	for _, tag := range tags {
		if contains(c.languages, tag.String()) {
			return tag.String()
		}
		if base, conf := tag.Base(); conf != language.No && contains(c.languages, base.String()) {
			return base.String()
		}
	}
	return c.defaultLang
}

func (c *Catalog) Localizer(lang string) *i18n.Localizer {
	return i18n.NewLocalizer(c.bundle, lang, c.defaultLang)
}

// WithLocalizer 将 Localizer 放入请求上下文
func WithLocalizer(ctx context.Context, l *i18n.Localizer) context.Context {
	return context.WithValue(ctx, localizerKey{}, l)
}

func FromContext(ctx context.Context) *i18n.Localizer {
	l, _ := ctx.Value(localizerKey{}).(*i18n.Localizer)
	return l
}

// T 翻译消息；上下文中没有 Localizer 或目录缺少该消息时返回 fallback
func T(ctx context.Context, id string, data map[string]any, fallback string) string {
	l := FromContext(ctx)
	if l == nil || id == "" {
		return fallback
	}
	msg, err := l.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil || msg == "" {
		return fallback
	}
	return msg
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
