package model

import "time"

// ClickEvent 单次成功解析产生的访问记录，只追加
type ClickEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ShortCode string    `gorm:"size:32;not null;index" json:"shortCode"`
	ClickedAt time.Time `gorm:"not null;index" json:"clickedAt"`
	Referer   string    `gorm:"size:2048" json:"referer,omitempty"`
	UserAgent string    `gorm:"size:512" json:"userAgent,omitempty"`
	IPAddress string    `gorm:"size:45" json:"ipAddress,omitempty"`
	Country   string    `gorm:"size:64" json:"country,omitempty"`
}

func (ClickEvent) TableName() string {
	return "click_events"
}
