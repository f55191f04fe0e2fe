package response

import (
	"time"

	"shorturl-go/pkg/validator"
)

// Response 是一个通用的 API 响应结构
type Response[T any] struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      T      `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse 失败响应，code 为错误类别
type ErrorResponse struct {
	Success           bool                 `json:"success"`
	Code              string               `json:"code"`
	Message           string               `json:"message"`
	Errors            validator.Violations `json:"errors,omitempty"`
	RequiresEntryCode bool                 `json:"requiresEntryCode,omitempty"`
	Timestamp         int64                `json:"timestamp"`
}

// PageResponse 分页响应结构体
type PageResponse[T any] struct {
	Page      int `json:"page"`
	Size      int `json:"size"`
	TotalPage int `json:"totalPage"`
	Total     int `json:"total"`
	List      []T `json:"list"`
}

// OK 构造一个成功的响应
func OK[T any](data T, message string) *Response[T] {
	return &Response[T]{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Error 构造一个失败的响应
func Error(code, message string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewPage 计算总页数并构造分页结果
func NewPage[T any](list []T, page, size int, total int64) *PageResponse[T] {
	if list == nil {
		list = []T{}
	}
	totalPage := 0
	if size > 0 {
		totalPage = (int(total) + size - 1) / size
	}
	return &PageResponse[T]{
		Page:      page,
		Size:      size,
		Total:     int(total),
		TotalPage: totalPage,
		List:      list,
	}
}
