package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shorturl-go/internal/model"
	"shorturl-go/internal/storage"
)

const (
	statsDays     = 30
	statsTopN     = 10
	recentURLsMax = 10
)

// RelationalAdapter 基于 gorm 的 storage.Adapter 实现，支持 mysql / postgres / sqlite
type RelationalAdapter struct {
	db          *gorm.DB
	logger      *zap.Logger
	now         func() time.Time
	autoMigrate bool
	connected   atomic.Bool
}

var _ storage.Adapter = (*RelationalAdapter)(nil)

type AdapterOption func(*RelationalAdapter)

// WithAutoMigrate Connect 时自动建表
func WithAutoMigrate(enabled bool) AdapterOption {
	return func(r *RelationalAdapter) {
		r.autoMigrate = enabled
	}
}

// WithClock 注入时钟，测试中使用
func WithClock(now func() time.Time) AdapterOption {
	return func(r *RelationalAdapter) {
		r.now = now
	}
}

// NewRelationalAdapter 连接池由调用方创建并注入，Connect 之前不可用
func NewRelationalAdapter(db *gorm.DB, logger *zap.Logger, opts ...AdapterOption) *RelationalAdapter {
	r := &RelationalAdapter{
		db:          db,
		logger:      logger,
		now:         time.Now,
		autoMigrate: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate 创建或更新表结构
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&model.ShortURL{}, &model.ClickEvent{})
}

func (r *RelationalAdapter) Connect(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if r.autoMigrate {
		if err := Migrate(ctx, r.db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}
	r.connected.Store(true)
	r.logger.Info("Storage connected", zap.String("dialect", r.db.Dialector.Name()))
	return nil
}

func (r *RelationalAdapter) Disconnect(ctx context.Context) error {
	if !r.connected.Swap(false) {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	r.logger.Info("Storage disconnected")
	return sqlDB.Close()
}

func (r *RelationalAdapter) utcNow() time.Time {
	return r.now().UTC()
}

func (r *RelationalAdapter) conn(ctx context.Context) (*gorm.DB, error) {
	if !r.connected.Load() {
		return nil, storage.ErrNotConnected
	}
	return r.db.WithContext(ctx), nil
}

// active 排除软删除与已过期记录
func (r *RelationalAdapter) active(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true).
		Where("(expires_at IS NULL OR expires_at > ?)", r.utcNow())
}

func (r *RelationalAdapter) Create(ctx context.Context, record *model.ShortURL) (*model.ShortURL, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	now := r.utcNow()
	record.ID = 0
	record.IsActive = true
	record.ClickCount = 0
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt != nil {
		utc := record.ExpiresAt.UTC()
		record.ExpiresAt = &utc
	}

	if err := db.Create(record).Error; err != nil {
		return nil, translateError(err)
	}
	return record, nil
}

func (r *RelationalAdapter) findOne(ctx context.Context, query string, args ...any) (*model.ShortURL, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rec model.ShortURL
	err = db.Scopes(r.active).Where(query, args...).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RelationalAdapter) FindByShortCode(ctx context.Context, code string) (*model.ShortURL, error) {
	return r.findOne(ctx, "short_code = ?", code)
}

func (r *RelationalAdapter) FindByAlias(ctx context.Context, alias string) (*model.ShortURL, error) {
	return r.findOne(ctx, "custom_alias = ?", alias)
}

func (r *RelationalAdapter) FindByOriginalURL(ctx context.Context, originalURL string) (*model.ShortURL, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rec model.ShortURL
	err = db.Scopes(r.active).
		Where("original_url = ?", originalURL).
		Where("custom_alias IS NULL AND entry_code IS NULL AND expires_at IS NULL").
		Order("created_at DESC").Order("id DESC").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// IsTaken 唯一索引覆盖软删除与已过期的记录，因此这里不过滤 is_active
func (r *RelationalAdapter) IsTaken(ctx context.Context, value string) (bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return false, err
	}
	var n int64
	err = db.Model(&model.ShortURL{}).
		Where("short_code = ? OR custom_alias = ?", value, value).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RelationalAdapter) IncrementClickCount(ctx context.Context, code string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&model.ShortURL{}).
		Scopes(r.active).
		Where("short_code = ?", code).
		UpdateColumns(map[string]any{
			"click_count":      gorm.Expr("click_count + ?", 1),
			"last_accessed_at": r.utcNow(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *RelationalAdapter) RecordClick(ctx context.Context, event *model.ClickEvent) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	event.ID = 0
	if event.ClickedAt.IsZero() {
		event.ClickedAt = r.utcNow()
	} else {
		event.ClickedAt = event.ClickedAt.UTC()
	}
	return db.Create(event).Error
}

// DeleteExpired 对已是 inactive 的行不再生效，重复执行返回 0
func (r *RelationalAdapter) DeleteExpired(ctx context.Context) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Model(&model.ShortURL{}).
		Where("is_active = ?", true).
		Where("expires_at IS NOT NULL AND expires_at <= ?", r.utcNow()).
		UpdateColumns(map[string]any{"is_active": false, "updated_at": r.utcNow()})
	return res.RowsAffected, res.Error
}

func (r *RelationalAdapter) Delete(ctx context.Context, code string) (bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return false, err
	}
	res := db.Model(&model.ShortURL{}).
		Where("short_code = ? AND is_active = ?", code, true).
		UpdateColumns(map[string]any{"is_active": false, "updated_at": r.utcNow()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *RelationalAdapter) Update(ctx context.Context, code string, patch storage.Patch) (*model.ShortURL, error) {
	rec, err := r.FindByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, storage.ErrNotFound
	}
	if patch.IsEmpty() {
		return rec, nil
	}

	var columns []string
	if patch.OriginalURL != nil {
		rec.OriginalURL = *patch.OriginalURL
		columns = append(columns, "original_url")
	}
	if patch.ClearAlias {
		rec.CustomAlias = nil
		columns = append(columns, "custom_alias")
	} else if patch.CustomAlias != nil {
		alias := *patch.CustomAlias
		rec.CustomAlias = &alias
		columns = append(columns, "custom_alias")
	}
	if patch.ClearExpiresAt {
		rec.ExpiresAt = nil
		columns = append(columns, "expires_at")
	} else if patch.ExpiresAt != nil {
		utc := patch.ExpiresAt.UTC()
		rec.ExpiresAt = &utc
		columns = append(columns, "expires_at")
	}
	if patch.ClearEntryCode {
		rec.EntryCode = nil
		columns = append(columns, "entry_code")
	} else if patch.EntryCode != nil {
		entryCode := *patch.EntryCode
		rec.EntryCode = &entryCode
		columns = append(columns, "entry_code")
	}
	if patch.ClearMetadata {
		rec.Metadata = nil
		columns = append(columns, "metadata")
	} else if patch.Metadata != nil {
		rec.Metadata = patch.Metadata
		columns = append(columns, "metadata")
	}
	if patch.QRCode != nil {
		rec.QRCode = *patch.QRCode
		columns = append(columns, "qr_code")
	}
	rec.UpdatedAt = r.utcNow()
	columns = append(columns, "updated_at")

	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Model(rec).Select(columns).Updates(rec).Error; err != nil {
		return nil, translateError(err)
	}
	return rec, nil
}

type groupCount struct {
	Val   string
	Total int64
}

func (r *RelationalAdapter) topValues(db *gorm.DB, code, column string) ([]storage.ValueCount, error) {
	var rows []groupCount
	err := db.Model(&model.ClickEvent{}).
		Select(column+" AS val, COUNT(*) AS total").
		Where("short_code = ?", code).
		Where(column + " <> ''").
		Group(column).
		Order("total DESC").Order(column).
		Limit(statsTopN).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]storage.ValueCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, storage.ValueCount{Value: row.Val, Count: row.Total})
	}
	return out, nil
}

// GetStats 任一查询失败即整体失败，不返回部分结果
func (r *RelationalAdapter) GetStats(ctx context.Context, code string) (*storage.Stats, error) {
	rec, err := r.FindByShortCode(ctx, code)
	if err != nil || rec == nil {
		return nil, err
	}
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	stats := &storage.Stats{Record: rec}
	events := db.Model(&model.ClickEvent{}).Where("short_code = ?", code)

	if err := events.Session(&gorm.Session{}).Count(&stats.TotalClicks).Error; err != nil {
		return nil, fmt.Errorf("count clicks: %w", err)
	}
	if err := events.Session(&gorm.Session{}).
		Where("ip_address <> ''").
		Distinct("ip_address").
		Count(&stats.UniqueVisitors).Error; err != nil {
		return nil, fmt.Errorf("count unique visitors: %w", err)
	}

	now := r.utcNow()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(statsDays - 1))
	var recent []model.ClickEvent
	if err := events.Session(&gorm.Session{}).
		Select("clicked_at").
		Where("clicked_at >= ?", since).
		Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("load recent clicks: %w", err)
	}
	stats.ClicksByDay = bucketByDay(recent, since, statsDays)

	if stats.TopReferers, err = r.topValues(db, code, "referer"); err != nil {
		return nil, fmt.Errorf("top referers: %w", err)
	}
	if stats.TopCountries, err = r.topValues(db, code, "country"); err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}

	var last model.ClickEvent
	err = events.Session(&gorm.Session{}).Order("clicked_at DESC").Take(&last).Error
	switch {
	case err == nil:
		t := last.ClickedAt.UTC()
		stats.LastClickAt = &t
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("last click: %w", err)
	}
	return stats, nil
}

// bucketByDay 按 UTC 日期聚合，包含没有点击的日期
func bucketByDay(events []model.ClickEvent, since time.Time, days int) []storage.DailyClicks {
	counts := make(map[string]int64, days)
	for _, e := range events {
		counts[e.ClickedAt.UTC().Format(time.DateOnly)]++
	}
	out := make([]storage.DailyClicks, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, storage.DailyClicks{Date: day, Clicks: counts[day]})
	}
	return out
}

func (r *RelationalAdapter) GetOverallStats(ctx context.Context) (*storage.OverallStats, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	out := &storage.OverallStats{}
	if err := db.Model(&model.ShortURL{}).Scopes(r.active).Count(&out.TotalURLs).Error; err != nil {
		return nil, fmt.Errorf("count urls: %w", err)
	}
	if err := db.Model(&model.ShortURL{}).Scopes(r.active).
		Select("COALESCE(SUM(click_count), 0)").
		Scan(&out.TotalClicks).Error; err != nil {
		return nil, fmt.Errorf("sum clicks: %w", err)
	}
	if err := db.Scopes(r.active).
		Order("created_at DESC").Order("id DESC").
		Limit(recentURLsMax).
		Find(&out.RecentURLs).Error; err != nil {
		return nil, fmt.Errorf("recent urls: %w", err)
	}
	return out, nil
}

func (r *RelationalAdapter) List(ctx context.Context, opts storage.ListOptions) (*storage.Page, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	opts = opts.Normalize()
	page := &storage.Page{Page: opts.Page, Limit: opts.Limit, Items: []model.ShortURL{}}

	query := db.Model(&model.ShortURL{}).Scopes(r.active)
	if err := query.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return nil, err
	}
	if page.Total == 0 {
		return page, nil
	}

	err = query.Session(&gorm.Session{}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: opts.SortBy}, Desc: opts.Order == "desc"}).
		Order("id DESC").
		Offset((opts.Page - 1) * opts.Limit).
		Limit(opts.Limit).
		Find(&page.Items).Error
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (r *RelationalAdapter) HealthCheck(ctx context.Context) bool {
	if !r.connected.Load() {
		return false
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return false
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		r.logger.Warn("Storage health check failed", zap.Error(err))
		return false
	}
	return true
}
