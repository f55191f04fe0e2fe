package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"shorturl-go/internal/model"
	"shorturl-go/internal/storage"
	"shorturl-go/pkg/validator"
)

// ShortenRequest 创建短链的请求参数；expiresAt 支持 RFC3339 字符串或毫秒时间戳
type ShortenRequest struct {
	URL         string `json:"url"`
	CustomAlias string `json:"customAlias"`
	ExpiresAt   any    `json:"expiresAt"`
	EntryCode   string `json:"entryCode"`
	Metadata    any    `json:"metadata"`
	GenerateQR  *bool  `json:"generateQR"`
}

// UpdateRequest 部分更新；字段缺省表示不修改。
// customAlias / entryCode 传空串、expiresAt / metadata 传 null 表示清除。
type UpdateRequest struct {
	URL         *string         `json:"url"`
	CustomAlias *string         `json:"customAlias"`
	ExpiresAt   json.RawMessage `json:"expiresAt"`
	EntryCode   *string         `json:"entryCode"`
	Metadata    json.RawMessage `json:"metadata"`
}

// IsNull 字段显式传入 null
func IsNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// DecodeRaw 解码为任意值，数字保留为 json.Number
func DecodeRaw(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// ListQuery 列表查询参数
type ListQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	SortBy string `form:"sortBy" binding:"omitempty,oneof=created_at click_count last_accessed_at"`
	Order  string `form:"order" binding:"omitempty,oneof=asc desc"`
}

// ToOptions 转换为存储层分页参数
func (q ListQuery) ToOptions() storage.ListOptions {
	return storage.ListOptions{Page: q.Page, Limit: q.Limit, SortBy: q.SortBy, Order: q.Order}
}

// VisitContext 解析短链时采集的访问信息
type VisitContext struct {
	EntryCode string
	Referer   string
	UserAgent string
	IPAddress string
	Country   string
}

// ResolveResult 解析结果
type ResolveResult struct {
	ShortCode   string `json:"shortCode"`
	OriginalURL string `json:"originalUrl"`
}

// ShortURLResponse 对外展示的短链信息，不包含访问码本身
type ShortURLResponse struct {
	ShortCode      string         `json:"shortCode"`
	ShortURL       string         `json:"shortUrl"`
	AliasURL       string         `json:"aliasUrl,omitempty"`
	OriginalURL    string         `json:"originalUrl"`
	CustomAlias    string         `json:"customAlias,omitempty"`
	QRCode         string         `json:"qrCode,omitempty"`
	HasEntryCode   bool           `json:"hasEntryCode"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ClickCount     int64          `json:"clickCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	LastAccessedAt *time.Time     `json:"lastAccessedAt,omitempty"`
	IsActive       bool           `json:"isActive"`
}

// LinkBuilder 拼接对外访问地址：baseURL + prefix + "/" + code
type LinkBuilder struct {
	BaseURL string
	Prefix  string
}

func (b LinkBuilder) Link(code string) string {
	return b.BaseURL + b.Prefix + "/" + code
}

// Format 将记录转换为响应结构
func (b LinkBuilder) Format(rec *model.ShortURL) ShortURLResponse {
	resp := ShortURLResponse{
		ShortCode:      rec.ShortCode,
		ShortURL:       b.Link(rec.ShortCode),
		OriginalURL:    rec.OriginalURL,
		CustomAlias:    rec.Alias(),
		QRCode:         rec.QRCode,
		HasEntryCode:   rec.HasEntryCode(),
		Metadata:       rec.Metadata,
		ClickCount:     rec.ClickCount,
		CreatedAt:      rec.CreatedAt.UTC(),
		ExpiresAt:      utcPtr(rec.ExpiresAt),
		LastAccessedAt: utcPtr(rec.LastAccessedAt),
		IsActive:       rec.IsActive,
	}
	if alias := rec.Alias(); alias != "" {
		resp.AliasURL = b.Link(alias)
	}
	return resp
}

// FormatList 批量转换
func (b LinkBuilder) FormatList(recs []model.ShortURL) []ShortURLResponse {
	out := make([]ShortURLResponse, 0, len(recs))
	for i := range recs {
		out = append(out, b.Format(&recs[i]))
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// StatsResponse 单条短链统计
type StatsResponse struct {
	ShortURLResponse
	TotalClicks    int64                 `json:"totalClicks"`
	UniqueVisitors int64                 `json:"uniqueVisitors"`
	ClicksByDay    []storage.DailyClicks `json:"clicksByDay"`
	TopReferers    []storage.ValueCount  `json:"topReferers"`
	TopCountries   []storage.ValueCount  `json:"topCountries"`
	LastClickAt    *time.Time            `json:"lastClickAt,omitempty"`
}

// OverallStatsResponse 全局统计
type OverallStatsResponse struct {
	TotalURLs   int64              `json:"totalUrls"`
	TotalClicks int64              `json:"totalClicks"`
	RecentURLs  []ShortURLResponse `json:"recentUrls"`
}

// CheckResponse 别名可用性
type CheckResponse struct {
	Alias      string               `json:"alias"`
	Available  bool                 `json:"available"`
	Valid      bool                 `json:"valid"`
	Violations validator.Violations `json:"violations,omitempty"`
}

// HealthResponse 健康检查结果
type HealthResponse struct {
	Status    string    `json:"status"`
	Storage   bool      `json:"storage"`
	CheckedAt time.Time `json:"checkedAt"`
}

// BatchQRRequest 批量生成二维码
type BatchQRRequest struct {
	URLs []string `json:"urls" binding:"required,min=1,max=50,dive,required"`
}
