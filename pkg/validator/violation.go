package validator

import (
	"bytes"
	"errors"
	"strings"
	"text/template"
)

const (
	FieldURL       = "url"
	FieldAlias     = "customAlias"
	FieldExpiresAt = "expiresAt"
	FieldEntryCode = "entryCode"
	FieldMetadata  = "metadata"
)

// 消息 ID 与 i18n 目录中的 key 保持一致
const (
	MsgURLRequired       = "error.url_required"
	MsgURLTooLong        = "error.url_too_long"
	MsgURLTooShort       = "error.url_too_short"
	MsgURLInvalid        = "error.url_invalid"
	MsgURLScheme         = "error.url_scheme"
	MsgURLLocalHost      = "error.url_local_host"
	MsgURLDomain         = "error.url_domain"
	MsgAliasRequired     = "error.alias_required"
	MsgAliasTooShort     = "error.alias_too_short"
	MsgAliasTooLong      = "error.alias_too_long"
	MsgAliasInvalid      = "error.alias_invalid"
	MsgAliasReserved     = "error.alias_reserved"
	MsgExpiresInvalid    = "error.expires_invalid"
	MsgExpiresPast       = "error.expires_past"
	MsgExpiresTooFar     = "error.expires_too_far"
	MsgEntryCodeInvalid  = "error.entry_code_invalid"
	MsgMetadataNotObject = "error.metadata_not_object"
	MsgMetadataNotJSON   = "error.metadata_not_json"
	MsgMetadataTooLarge  = "error.metadata_too_large"
)

var defaultMessages = map[string]string{
	MsgURLRequired:       "URL is required",
	MsgURLTooLong:        "URL must be at most {{.Max}} characters",
	MsgURLTooShort:       "URL must be at least {{.Min}} characters",
	MsgURLInvalid:        "URL is not a valid absolute URL",
	MsgURLScheme:         "URL scheme {{.Scheme}} is not allowed, use http or https",
	MsgURLLocalHost:      "URL must not point to localhost",
	MsgURLDomain:         "URL host {{.Host}} is not in the allowed domain list",
	MsgAliasRequired:     "Alias is required",
	MsgAliasTooShort:     "Alias must be at least {{.Min}} characters",
	MsgAliasTooLong:      "Alias must be at most {{.Max}} characters",
	MsgAliasInvalid:      "Alias may only contain letters, digits, underscores and hyphens",
	MsgAliasReserved:     "Alias {{.Alias}} is reserved",
	MsgExpiresInvalid:    "Expiration is not a valid date",
	MsgExpiresPast:       "Expiration must be in the future",
	MsgExpiresTooFar:     "Expiration must be within one year",
	MsgEntryCodeInvalid:  "Entry code must be {{.Min}}-{{.Max}} alphanumeric characters",
	MsgMetadataNotObject: "Metadata must be an object",
	MsgMetadataNotJSON:   "Metadata must be JSON serializable",
	MsgMetadataTooLarge:  "Metadata must not exceed {{.Max}} bytes",
}

// DefaultMessage 返回消息 ID 对应的英文模板
func DefaultMessage(id string) string {
	return defaultMessages[id]
}

// Violation 单条校验失败
type Violation struct {
	Field     string         `json:"field"`
	MessageID string         `json:"rule"`
	Message   string         `json:"message"`
	Params    map[string]any `json:"-"`
}

func newViolation(field, id string, params map[string]any) *Violation {
	return &Violation{
		Field:     field,
		MessageID: id,
		Message:   render(defaultMessages[id], params),
		Params:    params,
	}
}

// NewViolation 供其他层（如请求绑定）构造同样格式的校验错误
func NewViolation(field, id, message string) *Violation {
	return &Violation{Field: field, MessageID: id, Message: message}
}

func (v *Violation) Error() string {
	return v.Field + ": " + v.Message
}

func render(tpl string, params map[string]any) string {
	if params == nil || !strings.Contains(tpl, "{{") {
		return tpl
	}
	t, err := template.New("msg").Parse(tpl)
	if err != nil {
		return tpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return tpl
	}
	return buf.String()
}

// Violations 多条校验失败
type Violations []*Violation

// Append 追加一条错误，非 *Violation 的错误只保留消息
func (vs Violations) Append(err error) Violations {
	var v *Violation
	if errors.As(err, &v) {
		return append(vs, v)
	}
	return append(vs, &Violation{Message: err.Error()})
}

func (vs Violations) Error() string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.Error())
	}
	return strings.Join(parts, "; ")
}
