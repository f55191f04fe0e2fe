package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shorturl-go/internal/apperrors"
	"shorturl-go/internal/dto"
	"shorturl-go/internal/model"
	"shorturl-go/internal/storage"
	"shorturl-go/pkg/codegen"
	"shorturl-go/pkg/qr"
	"shorturl-go/pkg/validator"
	"shorturl-go/response"
)

// Config 业务开关
type Config struct {
	BaseURL         string
	Prefix          string
	EnableQR        bool
	EnableAnalytics bool
	ReuseExisting   bool
	MaxRetries      int
}

// ShortURLService 编排校验、短码生成、二维码与存储
type ShortURLService struct {
	store     storage.Adapter
	generator *codegen.Generator
	validator *validator.Validator
	qr        *qr.Service
	clicks    ClickRecorder
	links     dto.LinkBuilder
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*ShortURLService)

func WithValidator(v *validator.Validator) Option {
	return func(s *ShortURLService) { s.validator = v }
}

// WithQRService 未设置时不生成二维码
func WithQRService(q *qr.Service) Option {
	return func(s *ShortURLService) { s.qr = q }
}

// WithClickRecorder 默认同步写入
func WithClickRecorder(r ClickRecorder) Option {
	return func(s *ShortURLService) { s.clicks = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *ShortURLService) { s.now = now }
}

func NewShortURLService(store storage.Adapter, generator *codegen.Generator, cfg Config, logger *zap.Logger, opts ...Option) *ShortURLService {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 5
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/s"
	}
	s := &ShortURLService{
		store:     store,
		generator: generator,
		cfg:       cfg,
		links:     dto.LinkBuilder{BaseURL: cfg.BaseURL, Prefix: cfg.Prefix},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = validator.New(validator.WithClock(s.now))
	}
	if s.clicks == nil {
		s.clicks = NewSyncClickRecorder(store, logger)
	}
	return s
}

// Links 对外访问地址的拼接规则
func (s *ShortURLService) Links() dto.LinkBuilder {
	return s.links
}

// Close 等待异步访问记录写完
func (s *ShortURLService) Close(ctx context.Context) error {
	return s.clicks.Close(ctx)
}

func storageErr(op string, err error, logger *zap.Logger) error {
	logger.Error("Storage operation failed", zap.String("operation", op), zap.Error(err))
	return apperrors.Storage(err)
}

// lookup 先按短码查找，未命中再按别名查找；也用于判断某个值是否已被占用
func (s *ShortURLService) lookup(ctx context.Context, codeOrAlias string) (*model.ShortURL, error) {
	rec, err := s.store.FindByShortCode(ctx, codeOrAlias)
	if err != nil {
		return nil, storageErr("find_by_short_code", err, s.logger)
	}
	if rec != nil {
		return rec, nil
	}
	rec, err = s.store.FindByAlias(ctx, codeOrAlias)
	if err != nil {
		return nil, storageErr("find_by_alias", err, s.logger)
	}
	return rec, nil
}

// taken 与唯一索引一致：软删除或已过期记录的短码和别名同样视为占用
func (s *ShortURLService) taken(ctx context.Context, value string) (bool, error) {
	ok, err := s.store.IsTaken(ctx, value)
	if err != nil {
		return false, storageErr("is_taken", err, s.logger)
	}
	return ok, nil
}

func (s *ShortURLService) mustLookup(ctx context.Context, codeOrAlias string) (*model.ShortURL, error) {
	rec, err := s.lookup(ctx, codeOrAlias)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NotFound("Short URL not found")
	}
	return rec, nil
}

// Shorten 创建短链。短码先查重再写入；写入时撞上唯一约束同样计入重试次数。
func (s *ShortURLService) Shorten(ctx context.Context, req dto.ShortenRequest) (*dto.ShortURLResponse, error) {
	in, violations := s.validator.ValidateCreateOptions(validator.CreateOptions{
		URL:         req.URL,
		CustomAlias: req.CustomAlias,
		ExpiresAt:   req.ExpiresAt,
		EntryCode:   req.EntryCode,
		Metadata:    req.Metadata,
	})
	if len(violations) > 0 {
		return nil, apperrors.Validation(violations)
	}

	// 带别名、访问码或过期时间的请求总是新建
	if s.cfg.ReuseExisting && in.CustomAlias == "" && in.EntryCode == "" && in.ExpiresAt == nil {
		existing, err := s.store.FindByOriginalURL(ctx, in.URL)
		if err != nil {
			return nil, storageErr("find_by_original_url", err, s.logger)
		}
		if existing != nil {
			resp := s.links.Format(existing)
			return &resp, nil
		}
	}

	if in.CustomAlias != "" {
		taken, err := s.taken(ctx, in.CustomAlias)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.Conflict("Custom alias is already in use")
		}
	}

	wantQR := s.cfg.EnableQR && s.qr != nil && (req.GenerateQR == nil || *req.GenerateQR)

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		code, err := s.generator.Generate()
		if err != nil {
			return nil, apperrors.Internal(err)
		}

		if code == in.CustomAlias || s.validator.IsReserved(code) {
			continue
		}
		taken, err := s.lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken != nil {
			s.logger.Debug("Short code collision", zap.String("short_code", code), zap.Int("attempt", attempt))
			continue
		}

		rec := &model.ShortURL{
			ShortCode:   code,
			OriginalURL: in.URL,
			ExpiresAt:   in.ExpiresAt,
			Metadata:    in.Metadata,
			CreatedAt:   s.now().UTC(),
		}
		if in.CustomAlias != "" {
			alias := in.CustomAlias
			rec.CustomAlias = &alias
		}
		if in.EntryCode != "" {
			entryCode := in.EntryCode
			rec.EntryCode = &entryCode
		}
		if wantQR {
			artifact, err := s.qr.Render(s.links.Link(code))
			if err != nil {
				s.logger.Error("QR rendering failed", zap.String("short_code", code), zap.Error(err))
				return nil, apperrors.Internal(err)
			}
			rec.QRCode = artifact
		}

		created, err := s.store.Create(ctx, rec)
		if err == nil {
			s.logger.Info("Short URL created",
				zap.String("short_code", created.ShortCode),
				zap.String("alias", created.Alias()),
				zap.Int("attempt", attempt),
			)
			resp := s.links.Format(created)
			return &resp, nil
		}

		var dup *storage.DuplicateError
		if !errors.As(err, &dup) {
			return nil, storageErr("create", err, s.logger)
		}
		if dup.Field == storage.FieldCustomAlias {
			return nil, apperrors.Conflict("Custom alias is already in use")
		}
		s.logger.Warn("Short code taken at insert, retrying",
			zap.String("short_code", code),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	s.logger.Error("Short code generation exhausted", zap.Int("max_retries", s.cfg.MaxRetries))
	return nil, apperrors.GenerationExhausted(s.cfg.MaxRetries)
}

// Resolve 解析短码或别名。访问码校验在计数之前完成，只有成功的解析才会计入点击。
func (s *ShortURLService) Resolve(ctx context.Context, codeOrAlias string, visit dto.VisitContext) (*dto.ResolveResult, error) {
	rec, err := s.mustLookup(ctx, codeOrAlias)
	if err != nil {
		return nil, err
	}

	if rec.HasEntryCode() && subtle.ConstantTimeCompare([]byte(visit.EntryCode), []byte(*rec.EntryCode)) != 1 {
		return nil, apperrors.EntryCodeRequired()
	}

	if err := s.store.IncrementClickCount(ctx, rec.ShortCode); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("Short URL not found")
		}
		return nil, storageErr("increment_click_count", err, s.logger)
	}

	if s.cfg.EnableAnalytics {
		s.clicks.Record(ctx, &model.ClickEvent{
			ShortCode: rec.ShortCode,
			ClickedAt: s.now().UTC(),
			Referer:   truncate(visit.Referer, 2048),
			UserAgent: truncate(visit.UserAgent, 512),
			IPAddress: truncate(visit.IPAddress, 45),
			Country:   truncate(visit.Country, 64),
		})
	}

	return &dto.ResolveResult{ShortCode: rec.ShortCode, OriginalURL: rec.OriginalURL}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// GetStats 记录与点击聚合
func (s *ShortURLService) GetStats(ctx context.Context, codeOrAlias string) (*dto.StatsResponse, error) {
	rec, err := s.mustLookup(ctx, codeOrAlias)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.GetStats(ctx, rec.ShortCode)
	if err != nil {
		return nil, storageErr("get_stats", err, s.logger)
	}
	if stats == nil {
		return nil, apperrors.NotFound("Short URL not found")
	}
	return &dto.StatsResponse{
		ShortURLResponse: s.links.Format(stats.Record),
		TotalClicks:      stats.TotalClicks,
		UniqueVisitors:   stats.UniqueVisitors,
		ClicksByDay:      stats.ClicksByDay,
		TopReferers:      stats.TopReferers,
		TopCountries:     stats.TopCountries,
		LastClickAt:      stats.LastClickAt,
	}, nil
}

// Update 先完成全部字段校验再写入
func (s *ShortURLService) Update(ctx context.Context, codeOrAlias string, req dto.UpdateRequest) (*dto.ShortURLResponse, error) {
	rec, err := s.mustLookup(ctx, codeOrAlias)
	if err != nil {
		return nil, err
	}

	var (
		patch      storage.Patch
		violations validator.Violations
	)

	if req.URL != nil {
		normalized, err := s.validator.ValidateURL(*req.URL)
		if err != nil {
			violations = violations.Append(err)
		} else {
			patch.OriginalURL = &normalized
		}
	}

	if req.CustomAlias != nil {
		if alias := *req.CustomAlias; alias == "" {
			patch.ClearAlias = true
		} else if err := s.validator.ValidateAlias(alias); err != nil {
			violations = violations.Append(err)
		} else if alias != rec.Alias() {
			patch.CustomAlias = &alias
		}
	}

	if len(req.ExpiresAt) > 0 {
		if dto.IsNull(req.ExpiresAt) {
			patch.ClearExpiresAt = true
		} else if value, err := dto.DecodeRaw(req.ExpiresAt); err != nil {
			violations = append(violations, validator.NewViolation(validator.FieldExpiresAt, validator.MsgExpiresInvalid, validator.DefaultMessage(validator.MsgExpiresInvalid)))
		} else if expiresAt, err := s.validator.ValidateExpiration(value); err != nil {
			violations = violations.Append(err)
		} else if expiresAt == nil {
			patch.ClearExpiresAt = true
		} else {
			patch.ExpiresAt = expiresAt
		}
	}

	if req.EntryCode != nil {
		if code := *req.EntryCode; code == "" {
			patch.ClearEntryCode = true
		} else if err := s.validator.ValidateEntryCode(code); err != nil {
			violations = violations.Append(err)
		} else {
			patch.EntryCode = &code
		}
	}

	if len(req.Metadata) > 0 {
		if dto.IsNull(req.Metadata) {
			patch.ClearMetadata = true
		} else if value, err := dto.DecodeRaw(req.Metadata); err != nil {
			violations = append(violations, validator.NewViolation(validator.FieldMetadata, validator.MsgMetadataNotJSON, validator.DefaultMessage(validator.MsgMetadataNotJSON)))
		} else if metadata, err := s.validator.ValidateMetadata(value); err != nil {
			violations = violations.Append(err)
		} else {
			patch.Metadata = metadata
		}
	}

	if len(violations) > 0 {
		return nil, apperrors.Validation(violations)
	}

	if alias := patch.CustomAlias; alias != nil && *alias != rec.ShortCode && *alias != rec.Alias() {
		taken, err := s.taken(ctx, *alias)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.Conflict("Custom alias is already in use")
		}
	}

	updated, err := s.store.Update(ctx, rec.ShortCode, patch)
	if err != nil {
		var dup *storage.DuplicateError
		switch {
		case errors.As(err, &dup):
			return nil, apperrors.Conflict("Custom alias is already in use")
		case errors.Is(err, storage.ErrNotFound):
			return nil, apperrors.NotFound("Short URL not found")
		default:
			return nil, storageErr("update", err, s.logger)
		}
	}

	s.logger.Info("Short URL updated", zap.String("short_code", updated.ShortCode))
	resp := s.links.Format(updated)
	return &resp, nil
}

// Delete 软删除
func (s *ShortURLService) Delete(ctx context.Context, codeOrAlias string) error {
	rec, err := s.mustLookup(ctx, codeOrAlias)
	if err != nil {
		return err
	}
	deleted, err := s.store.Delete(ctx, rec.ShortCode)
	if err != nil {
		return storageErr("delete", err, s.logger)
	}
	if !deleted {
		return apperrors.NotFound("Short URL not found")
	}
	s.logger.Info("Short URL deleted", zap.String("short_code", rec.ShortCode))
	return nil
}

// List 分页列出有效记录
func (s *ShortURLService) List(ctx context.Context, q dto.ListQuery) (*response.PageResponse[dto.ShortURLResponse], error) {
	page, err := s.store.List(ctx, q.ToOptions())
	if err != nil {
		return nil, storageErr("list", err, s.logger)
	}
	return response.NewPage(s.links.FormatList(page.Items), page.Page, page.Limit, page.Total), nil
}

// CleanupExpired 软删除所有已过期记录，返回本次处理的数量
func (s *ShortURLService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, storageErr("delete_expired", err, s.logger)
	}
	if n > 0 {
		s.logger.Info("Expired short URLs cleaned up", zap.Int64("count", n))
	}
	return n, nil
}

func (s *ShortURLService) GetOverallStats(ctx context.Context) (*dto.OverallStatsResponse, error) {
	stats, err := s.store.GetOverallStats(ctx)
	if err != nil {
		return nil, storageErr("get_overall_stats", err, s.logger)
	}
	return &dto.OverallStatsResponse{
		TotalURLs:   stats.TotalURLs,
		TotalClicks: stats.TotalClicks,
		RecentURLs:  s.links.FormatList(stats.RecentURLs),
	}, nil
}

func (s *ShortURLService) HealthCheck(ctx context.Context) *dto.HealthResponse {
	ok := s.store.HealthCheck(ctx)
	status := "ok"
	if !ok {
		status = "unavailable"
	}
	return &dto.HealthResponse{Status: status, Storage: ok, CheckedAt: s.now().UTC()}
}

// CheckAvailability available 表示没有任何记录（含软删除与已过期）占用该值，valid 表示能否作为别名
func (s *ShortURLService) CheckAvailability(ctx context.Context, alias string) (*dto.CheckResponse, error) {
	if alias == "" {
		return nil, apperrors.InvalidRequest(validator.FieldAlias, validator.MsgAliasRequired, validator.DefaultMessage(validator.MsgAliasRequired))
	}
	resp := &dto.CheckResponse{Alias: alias, Valid: true}
	if err := s.validator.ValidateAlias(alias); err != nil {
		resp.Valid = false
		resp.Violations = validator.Violations{}.Append(err)
	}
	taken, err := s.taken(ctx, alias)
	if err != nil {
		return nil, err
	}
	resp.Available = !taken
	return resp, nil
}

// RenderQRBatch 为一组地址批量生成二维码
func (s *ShortURLService) RenderQRBatch(urls []string) ([]qr.BatchResult, error) {
	if s.qr == nil || !s.cfg.EnableQR {
		return nil, apperrors.WithCode(apperrors.KindNotFound, http.StatusNotFound, apperrors.MsgQRDisabled, "QR rendering is disabled")
	}
	return s.qr.RenderBatch(urls), nil
}
