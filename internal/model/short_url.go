package model

import "time"

// ShortURL 短链记录；IsActive=false 表示软删除
type ShortURL struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ShortCode      string         `gorm:"uniqueIndex;size:32;not null" json:"shortCode"`
	CustomAlias    *string        `gorm:"uniqueIndex;size:64" json:"customAlias,omitempty"`
	OriginalURL    string         `gorm:"size:2048;not null" json:"originalUrl"`
	QRCode         string         `gorm:"type:text" json:"qrCode,omitempty"`
	EntryCode      *string        `gorm:"size:16" json:"-"`
	Metadata       map[string]any `gorm:"type:json;serializer:json" json:"metadata,omitempty"`
	ClickCount     int64          `gorm:"not null;default:0" json:"clickCount"`
	CreatedAt      time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ExpiresAt      *time.Time     `gorm:"index" json:"expiresAt,omitempty"`
	LastAccessedAt *time.Time     `json:"lastAccessedAt,omitempty"`
	IsActive       bool           `gorm:"not null;default:true;index" json:"isActive"`

	Clicks []ClickEvent `gorm:"foreignKey:ShortCode;references:ShortCode;constraint:OnDelete:CASCADE" json:"-"`
}

func (ShortURL) TableName() string {
	return "short_urls"
}

// IsExpired expiresAt 已到达即视为过期
func (s *ShortURL) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// HasEntryCode 是否需要访问码
func (s *ShortURL) HasEntryCode() bool {
	return s.EntryCode != nil && *s.EntryCode != ""
}

// Alias 别名，未设置时返回空串
func (s *ShortURL) Alias() string {
	if s.CustomAlias == nil {
		return ""
	}
	return *s.CustomAlias
}
