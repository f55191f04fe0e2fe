// Package storage 定义短链持久化契约，ShortURLService 只依赖这里的接口。
package storage

import (
	"context"
	"errors"
	"time"

	"shorturl-go/internal/model"
)

var (
	// ErrDuplicate 唯一约束冲突（short_code 或 custom_alias）
	ErrDuplicate = errors.New("storage: duplicate key")
	// ErrNotFound 目标记录不存在或已失效
	ErrNotFound = errors.New("storage: record not found")
	// ErrNotConnected 未调用 Connect 或已 Disconnect
	ErrNotConnected = errors.New("storage: not connected")
)

// 唯一约束所在的列
const (
	FieldShortCode   = "short_code"
	FieldCustomAlias = "custom_alias"
)

// DuplicateError 唯一约束冲突，Field 为无法判断时为空
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return ErrDuplicate.Error() + ": " + e.Err.Error()
	}
	return ErrDuplicate.Error() + " on " + e.Field + ": " + e.Err.Error()
}

// Unwrap 同时匹配 ErrDuplicate 与底层驱动错误
func (e *DuplicateError) Unwrap() []error {
	return []error{ErrDuplicate, e.Err}
}

// 列表排序字段
const (
	SortCreatedAt      = "created_at"
	SortClickCount     = "click_count"
	SortLastAccessedAt = "last_accessed_at"
)

// Adapter 短链存储契约。
// 所有 Find 系列方法隐式排除 is_active=false 以及已过期的记录，未命中返回 (nil, nil)。
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Create(ctx context.Context, record *model.ShortURL) (*model.ShortURL, error)
	FindByShortCode(ctx context.Context, code string) (*model.ShortURL, error)
	FindByAlias(ctx context.Context, alias string) (*model.ShortURL, error)
	// FindByOriginalURL 返回最近创建的、没有别名、访问码和过期时间的有效记录
	FindByOriginalURL(ctx context.Context, originalURL string) (*model.ShortURL, error)
	// IsTaken 判断任意记录（含软删除与已过期）是否以该值作为短码或别名
	IsTaken(ctx context.Context, value string) (bool, error)

	// IncrementClickCount 与 RecordClick 是两次独立写入，不保证原子性
	IncrementClickCount(ctx context.Context, code string) error
	RecordClick(ctx context.Context, event *model.ClickEvent) error

	// DeleteExpired 软删除所有已过期的有效记录，返回影响行数
	DeleteExpired(ctx context.Context) (int64, error)
	Delete(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, code string, patch Patch) (*model.ShortURL, error)

	GetStats(ctx context.Context, code string) (*Stats, error)
	GetOverallStats(ctx context.Context) (*OverallStats, error)
	List(ctx context.Context, opts ListOptions) (*Page, error)
	HealthCheck(ctx context.Context) bool
}

// Patch 部分更新；nil 字段不修改，Clear* 置为 NULL
type Patch struct {
	OriginalURL    *string
	CustomAlias    *string
	ClearAlias     bool
	ExpiresAt      *time.Time
	ClearExpiresAt bool
	EntryCode      *string
	ClearEntryCode bool
	Metadata       map[string]any
	ClearMetadata  bool
	QRCode         *string
}

// IsEmpty 没有任何需要修改的字段
func (p Patch) IsEmpty() bool {
	return p.OriginalURL == nil && p.CustomAlias == nil && !p.ClearAlias &&
		p.ExpiresAt == nil && !p.ClearExpiresAt && p.EntryCode == nil && !p.ClearEntryCode &&
		p.Metadata == nil && !p.ClearMetadata && p.QRCode == nil
}

// DailyClicks 按天聚合的点击数
type DailyClicks struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

// ValueCount 分组计数（referer、country）
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Stats 单条短链及其点击聚合
type Stats struct {
	Record         *model.ShortURL
	TotalClicks    int64
	UniqueVisitors int64
	ClicksByDay    []DailyClicks
	TopReferers    []ValueCount
	TopCountries   []ValueCount
	LastClickAt    *time.Time
}

// OverallStats 全局汇总
type OverallStats struct {
	TotalURLs   int64
	TotalClicks int64
	RecentURLs  []model.ShortURL
}

// ListOptions 分页查询参数
type ListOptions struct {
	Page   int
	Limit  int
	SortBy string
	Order  string
}

// Normalize 补齐默认值并约束非法取值
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 || o.Limit > 100 {
		o.Limit = 20
	}
	switch o.SortBy {
	case SortCreatedAt, SortClickCount, SortLastAccessedAt:
	default:
		o.SortBy = SortCreatedAt
	}
	if o.Order != "asc" {
		o.Order = "desc"
	}
	return o
}

// Page 分页结果
type Page struct {
	Items []model.ShortURL
	Total int64
	Page  int
	Limit int
}
