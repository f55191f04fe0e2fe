package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"shorturl-go/pkg/validator"
)

// Kind 错误类别
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindGenerationExhausted Kind = "GENERATION_EXHAUSTED"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindEntryCodeRequired   Kind = "ENTRY_CODE_REQUIRED"
	KindStorage             Kind = "STORAGE_ERROR"
	KindInternal            Kind = "INTERNAL_ERROR"
)

// 错误消息 ID，与 i18n 目录对应
const (
	MsgValidationFailed    = "error.validation_failed"
	MsgNotFound            = "error.not_found"
	MsgAliasTaken          = "error.alias_taken"
	MsgGenerationExhausted = "error.generation_exhausted"
	MsgUnauthorized        = "error.unauthorized"
	MsgEntryCodeRequired   = "error.entry_code_required"
	MsgStorage             = "error.storage"
	MsgInternal            = "error.internal"
	MsgQRDisabled          = "error.qr_disabled"
	MsgBodyInvalid         = "error.body_invalid"
	MsgQueryInvalid        = "error.query_invalid"
	MsgRouteNotFound       = "error.route_not_found"
)

// AppError 自定义错误类型
type AppError struct {
	Kind       Kind
	Code       int
	MessageID  string
	Message    string
	Violations validator.Violations
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 按类别比较，便于 errors.Is(err, apperrors.ErrNotFound)
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Cause == nil && t.Violations == nil
}

// 哨兵值，仅用于 errors.Is 比较
var (
	ErrValidation          = &AppError{Kind: KindValidation}
	ErrNotFound            = &AppError{Kind: KindNotFound}
	ErrConflict            = &AppError{Kind: KindConflict}
	ErrGenerationExhausted = &AppError{Kind: KindGenerationExhausted}
	ErrUnauthorized        = &AppError{Kind: KindUnauthorized}
	ErrEntryCodeRequired   = &AppError{Kind: KindEntryCodeRequired}
	ErrStorage             = &AppError{Kind: KindStorage}
)

// WithCode 创建通用业务错误
func WithCode(kind Kind, code int, messageID, message string) *AppError {
	return &AppError{
		Kind:      kind,
		Code:      code,
		MessageID: messageID,
		Message:   message,
	}
}

// Validation 参数校验错误，携带完整的违规列表
func Validation(violations validator.Violations) *AppError {
	e := WithCode(KindValidation, http.StatusBadRequest, MsgValidationFailed, "Validation failed")
	e.Violations = violations
	return e
}

// NotFound 未知、已过期或已删除，对调用方不做区分
func NotFound(message string) *AppError {
	return WithCode(KindNotFound, http.StatusNotFound, MsgNotFound, message)
}

// Conflict 别名已被占用
func Conflict(message string) *AppError {
	return WithCode(KindConflict, http.StatusConflict, MsgAliasTaken, message)
}

// GenerationExhausted 重试次数耗尽仍未找到空闲短码
func GenerationExhausted(attempts int) *AppError {
	return WithCode(KindGenerationExhausted, http.StatusServiceUnavailable, MsgGenerationExhausted,
		fmt.Sprintf("Unable to generate a unique short code after %d attempts", attempts))
}

// Unauthorized 特权接口缺少或携带无效凭证
func Unauthorized(message string) *AppError {
	return WithCode(KindUnauthorized, http.StatusUnauthorized, MsgUnauthorized, message)
}

// EntryCodeRequired 访问码缺失或不匹配
func EntryCodeRequired() *AppError {
	return WithCode(KindEntryCodeRequired, http.StatusForbidden, MsgEntryCodeRequired,
		"A valid entry code is required to access this link")
}

// Storage 持久层错误，对外统一为 500
func Storage(cause error) *AppError {
	e := WithCode(KindStorage, http.StatusInternalServerError, MsgStorage, "Storage error")
	e.Cause = cause
	return e
}

// Internal 其他系统内部错误
func Internal(cause error) *AppError {
	e := WithCode(KindInternal, http.StatusInternalServerError, MsgInternal, "System error")
	e.Cause = cause
	return e
}

// InvalidRequest 单条请求格式错误，按校验错误返回
func InvalidRequest(field, messageID, message string) *AppError {
	return Validation(validator.Violations{validator.NewViolation(field, messageID, message)})
}
