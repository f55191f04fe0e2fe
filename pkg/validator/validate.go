package validator

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	MaxURLLength     = 2048
	MinURLLength     = 10
	DefaultAliasMin  = 3
	DefaultAliasMax  = 30
	EntryCodeMin     = 4
	EntryCodeMax     = 10
	MaxMetadataBytes = 1 << 20
	MaxExpiration    = 365 * 24 * time.Hour
)

// DefaultReservedWords 与路由及常见系统路径冲突的别名
var DefaultReservedWords = []string{
	"api", "admin", "s", "shorten", "check", "list", "health", "stats", "overall",
	"www", "static", "assets", "login", "logout", "dashboard", "qr", "help",
}

var (
	schemePattern    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)
	aliasPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	entryCodePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// Validator 输入校验，所有方法无副作用
type Validator struct {
	aliasMin int
	aliasMax int
	reserved map[string]struct{}
	domains  []string
	now      func() time.Time
}

type Option func(*Validator)

// WithAliasLength 自定义别名长度范围
func WithAliasLength(min, max int) Option {
	return func(v *Validator) {
		if min > 0 {
			v.aliasMin = min
		}
		if max >= v.aliasMin {
			v.aliasMax = max
		}
	}
}

// WithReservedWords 替换保留字列表
func WithReservedWords(words ...string) Option {
	return func(v *Validator) {
		v.reserved = make(map[string]struct{}, len(words))
		for _, w := range words {
			v.reserved[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithAllowedDomains 目标地址白名单，子域名同样放行；为空时不限制
func WithAllowedDomains(domains ...string) Option {
	return func(v *Validator) {
		v.domains = v.domains[:0]
		for _, d := range domains {
			if d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), "."); d != "" {
				v.domains = append(v.domains, d)
			}
		}
	}
}

func (v *Validator) domainAllowed(host string) bool {
	if len(v.domains) == 0 {
		return true
	}
	for _, d := range v.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// WithClock 注入时钟，测试中使用
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		aliasMin: DefaultAliasMin,
		aliasMax: DefaultAliasMax,
		now:      time.Now,
	}
	WithReservedWords(DefaultReservedWords...)(v)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IsReserved 大小写不敏感地判断是否为保留字
func (v *Validator) IsReserved(word string) bool {
	_, ok := v.reserved[strings.ToLower(word)]
	return ok
}

// ValidateURL 校验并规范化目标 URL，缺少协议时补全 https://
func (v *Validator) ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", newViolation(FieldURL, MsgURLRequired, nil)
	}
	if len(trimmed) > MaxURLLength {
		return "", newViolation(FieldURL, MsgURLTooLong, map[string]any{"Max": MaxURLLength})
	}
	if len(trimmed) < MinURLLength {
		return "", newViolation(FieldURL, MsgURLTooShort, map[string]any{"Min": MinURLLength})
	}

	candidate := trimmed
	if !schemePattern.MatchString(candidate) {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", newViolation(FieldURL, MsgURLInvalid, nil)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", newViolation(FieldURL, MsgURLScheme, map[string]any{"Scheme": u.Scheme})
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", newViolation(FieldURL, MsgURLInvalid, nil)
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "", newViolation(FieldURL, MsgURLLocalHost, nil)
	}
	if !v.domainAllowed(host) {
		return "", newViolation(FieldURL, MsgURLDomain, map[string]any{"Host": host})
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.RawPath == "" {
		u.Path = "/"
	}
	// 补全协议与重新编码后可能超出存储列宽
	canonical := u.String()
	if len(canonical) > MaxURLLength {
		return "", newViolation(FieldURL, MsgURLTooLong, map[string]any{"Max": MaxURLLength})
	}
	return canonical, nil
}

// ValidateAlias 校验自定义别名
func (v *Validator) ValidateAlias(alias string) error {
	if len(alias) < v.aliasMin {
		return newViolation(FieldAlias, MsgAliasTooShort, map[string]any{"Min": v.aliasMin})
	}
	if len(alias) > v.aliasMax {
		return newViolation(FieldAlias, MsgAliasTooLong, map[string]any{"Max": v.aliasMax})
	}
	if !aliasPattern.MatchString(alias) {
		return newViolation(FieldAlias, MsgAliasInvalid, nil)
	}
	if v.IsReserved(alias) {
		return newViolation(FieldAlias, MsgAliasReserved, map[string]any{"Alias": alias})
	}
	return nil
}

// ValidateExpiration 支持 time.Time、毫秒时间戳与字符串；nil 表示永不过期
func (v *Validator) ValidateExpiration(value any) (*time.Time, error) {
	var ts time.Time
	switch t := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		ts = t
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		ts = *t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		parsed, ok := parseTimeString(s)
		if !ok {
			return nil, newViolation(FieldExpiresAt, MsgExpiresInvalid, nil)
		}
		ts = parsed
	case float64:
		ts = time.UnixMilli(int64(t))
	case int:
		ts = time.UnixMilli(int64(t))
	case int64:
		ts = time.UnixMilli(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return nil, newViolation(FieldExpiresAt, MsgExpiresInvalid, nil)
		}
		ts = time.UnixMilli(n)
	default:
		return nil, newViolation(FieldExpiresAt, MsgExpiresInvalid, nil)
	}

	if ts.IsZero() {
		return nil, newViolation(FieldExpiresAt, MsgExpiresInvalid, nil)
	}

	now := v.now()
	if !ts.After(now) {
		return nil, newViolation(FieldExpiresAt, MsgExpiresPast, nil)
	}
	if ts.After(now.Add(MaxExpiration)) {
		return nil, newViolation(FieldExpiresAt, MsgExpiresTooFar, nil)
	}

	utc := ts.UTC()
	return &utc, nil
}

func parseTimeString(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	// 纯数字字符串按毫秒时间戳处理
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(n), true
	}
	if t, err := cast.ToTimeE(s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ValidateEntryCode 访问码为空时视为未设置
func (v *Validator) ValidateEntryCode(code string) error {
	if code == "" {
		return nil
	}
	if len(code) < EntryCodeMin || len(code) > EntryCodeMax || !entryCodePattern.MatchString(code) {
		return newViolation(FieldEntryCode, MsgEntryCodeInvalid, map[string]any{"Min": EntryCodeMin, "Max": EntryCodeMax})
	}
	return nil
}

// ValidateMetadata 元数据必须是 JSON 对象且序列化后不超过 1 MiB
func (v *Validator) ValidateMetadata(value any) (map[string]any, error) {
	var m map[string]any
	switch t := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		m = t
	case map[string]string:
		m = make(map[string]any, len(t))
		for k, val := range t {
			m[k] = val
		}
	default:
		return nil, newViolation(FieldMetadata, MsgMetadataNotObject, nil)
	}

	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, newViolation(FieldMetadata, MsgMetadataNotJSON, nil)
	}
	if len(encoded) > MaxMetadataBytes {
		return nil, newViolation(FieldMetadata, MsgMetadataTooLarge, map[string]any{"Max": MaxMetadataBytes})
	}
	return m, nil
}

// CreateOptions 创建短链的原始输入
type CreateOptions struct {
	URL         string
	CustomAlias string
	ExpiresAt   any
	EntryCode   string
	Metadata    any
}

// Normalized 通过校验后的规范化输入
type Normalized struct {
	URL         string
	CustomAlias string
	ExpiresAt   *time.Time
	EntryCode   string
	Metadata    map[string]any
}

// ValidateCreateOptions 汇总所有字段的校验结果，不会在第一个错误处返回
func (v *Validator) ValidateCreateOptions(opts CreateOptions) (*Normalized, Violations) {
	var violations Violations
	out := &Normalized{
		CustomAlias: opts.CustomAlias,
		EntryCode:   opts.EntryCode,
	}

	normalizedURL, err := v.ValidateURL(opts.URL)
	if err != nil {
		violations = violations.Append(err)
	}
	out.URL = normalizedURL

	if opts.CustomAlias != "" {
		if err := v.ValidateAlias(opts.CustomAlias); err != nil {
			violations = violations.Append(err)
		}
	}

	expiresAt, err := v.ValidateExpiration(opts.ExpiresAt)
	if err != nil {
		violations = violations.Append(err)
	}
	out.ExpiresAt = expiresAt

	if err := v.ValidateEntryCode(opts.EntryCode); err != nil {
		violations = violations.Append(err)
	}

	metadata, err := v.ValidateMetadata(opts.Metadata)
	if err != nil {
		violations = violations.Append(err)
	}
	out.Metadata = metadata

	if len(violations) > 0 {
		return nil, violations
	}
	return out, nil
}
