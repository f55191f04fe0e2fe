package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"shorturl-go/internal/apperrors"
	"shorturl-go/internal/config"
	"shorturl-go/internal/dto"
	"shorturl-go/internal/model"
	"shorturl-go/internal/repository"
	"shorturl-go/internal/storage"
	"shorturl-go/pkg/codegen"
	"shorturl-go/pkg/qr"
	"shorturl-go/pkg/validator"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *ShortURLService
	store *repository.RelationalAdapter
	clock *fakeClock
}

func newFixture(t *testing.T, cfg Config, genOpts ...codegen.Option) *fixture {
	t.Helper()
	db, err := repository.OpenDB(config.DBConfig{Driver: repository.DriverSQLite, DSN: ":memory:"}, zap.NewNop(), zapcore.ErrorLevel)
	require.NoError(t, err)

	clock := &fakeClock{t: baseTime}
	store := repository.NewRelationalAdapter(db, zap.NewNop(), repository.WithClock(clock.Now))
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { _ = store.Disconnect(context.Background()) })

	gen, err := codegen.New(codegen.Config{Length: 6, Charset: codegen.CharsetAlphanumeric}, genOpts...)
	require.NoError(t, err)
	qrSvc, err := qr.New(qr.Options{Size: 128})
	require.NoError(t, err)

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sho.rt"
	}
	svc := NewShortURLService(store, gen, cfg, zap.NewNop(),
		WithQRService(qrSvc),
		WithClock(clock.Now),
	)
	return &fixture{svc: svc, store: store, clock: clock}
}

func defaultConfig() Config {
	return Config{EnableQR: true, EnableAnalytics: true, MaxRetries: 5}
}

func TestShortenAndResolveRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())

	resp, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "example.com/a"})
	require.NoError(t, err)

	assert.Len(t, resp.ShortCode, 6)
	for _, ch := range resp.ShortCode {
		assert.Contains(t, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789", string(ch))
	}
	assert.Equal(t, "https://sho.rt/s/"+resp.ShortCode, resp.ShortURL)
	assert.Equal(t, "https://example.com/a", resp.OriginalURL)
	assert.True(t, qr.IsValid(resp.QRCode))
	assert.Empty(t, resp.AliasURL)

	got, err := f.svc.Resolve(ctx, resp.ShortCode, dto.VisitContext{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got.OriginalURL)
}

func TestShortenWithoutQR(t *testing.T) {
	f := newFixture(t, defaultConfig())
	no := false

	resp, err := f.svc.Shorten(context.Background(), dto.ShortenRequest{URL: "https://example.com/a", GenerateQR: &no})
	require.NoError(t, err)
	assert.Empty(t, resp.QRCode)
}

func TestShortenValidationAggregatesViolations(t *testing.T) {
	f := newFixture(t, defaultConfig())

	_, err := f.svc.Shorten(context.Background(), dto.ShortenRequest{
		URL:         "http://localhost:8080/x",
		CustomAlias: "admin",
		EntryCode:   "!!",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Len(t, appErr.Violations, 3)
	fields := []string{appErr.Violations[0].Field, appErr.Violations[1].Field, appErr.Violations[2].Field}
	assert.ElementsMatch(t, []string{validator.FieldURL, validator.FieldAlias, validator.FieldEntryCode}, fields)

	page, err := f.svc.List(context.Background(), dto.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestShortenReuseExisting(t *testing.T) {
	ctx := context.Background()

	reuse := defaultConfig()
	reuse.ReuseExisting = true
	f := newFixture(t, reuse)
	first, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	second, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, first.ShortCode, second.ShortCode)

	g := newFixture(t, defaultConfig())
	first, err = g.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	second, err = g.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ShortCode, second.ShortCode)

	for _, code := range []string{first.ShortCode, second.ShortCode} {
		got, err := g.svc.Resolve(ctx, code, dto.VisitContext{})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", got.OriginalURL)
	}
}

func TestShortenReuseSkipsRestrictedRecords(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.ReuseExisting = true
	f := newFixture(t, cfg)

	gated, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", EntryCode: "secret1"})
	require.NoError(t, err)
	named, err := f.svc.Shorten(ctx, dto.ShortenRequest{
		URL:         "https://example.com/a",
		CustomAlias: "mine",
		ExpiresAt:   baseTime.Add(time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)

	plain, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.NotEqual(t, gated.ShortCode, plain.ShortCode)
	assert.NotEqual(t, named.ShortCode, plain.ShortCode)
	assert.False(t, plain.HasEntryCode)
	assert.Empty(t, plain.CustomAlias)
	assert.Nil(t, plain.ExpiresAt)

	got, err := f.svc.Resolve(ctx, plain.ShortCode, dto.VisitContext{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got.OriginalURL)

	again, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, plain.ShortCode, again.ShortCode)
}

func TestShortenAliasConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())

	resp, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", CustomAlias: "launch"})
	require.NoError(t, err)
	assert.Equal(t, "https://sho.rt/s/launch", resp.AliasURL)

	_, err = f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/b", CustomAlias: "launch"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// 别名不能与已有短码相同
	_, err = f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/b", CustomAlias: resp.ShortCode})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := f.svc.Resolve(ctx, "launch", dto.VisitContext{})
	require.NoError(t, err)
	assert.Equal(t, resp.ShortCode, got.ShortCode)
}

func TestShortenGenerationExhausted(t *testing.T) {
	ctx := context.Background()
	constant := codegen.Custom{Fn: func(*codegen.Generator) (string, error) { return "same01", nil }}
	f := newFixture(t, defaultConfig(), codegen.WithStrategy(constant))

	_, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)

	_, err = f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/b"})
	require.ErrorIs(t, err, apperrors.ErrGenerationExhausted)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 503, appErr.Code)
}

// racingAdapter 模拟并发写入：查重时短码空闲，写入时撞上唯一约束
type racingAdapter struct {
	storage.Adapter
	failures int
	creates  int
}

func (r *racingAdapter) Create(ctx context.Context, rec *model.ShortURL) (*model.ShortURL, error) {
	r.creates++
	if r.creates <= r.failures {
		return nil, &storage.DuplicateError{Field: storage.FieldShortCode, Err: errors.New("UNIQUE constraint failed: short_urls.short_code")}
	}
	return r.Adapter.Create(ctx, rec)
}

func TestShortenRetriesDuplicateAtInsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	gen, err := codegen.New(codegen.Config{Length: 6})
	require.NoError(t, err)

	racing := &racingAdapter{Adapter: f.store, failures: 2}
	svc := NewShortURLService(racing, gen, Config{BaseURL: "https://sho.rt", MaxRetries: 3}, zap.NewNop())
	resp, err := svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, 3, racing.creates)
	assert.Len(t, resp.ShortCode, 6)

	racing = &racingAdapter{Adapter: f.store, failures: 3}
	svc = NewShortURLService(racing, gen, Config{BaseURL: "https://sho.rt", MaxRetries: 3}, zap.NewNop())
	_, err = svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/b"})
	assert.ErrorIs(t, err, apperrors.ErrGenerationExhausted)
	assert.Equal(t, 3, racing.creates)
}

func TestResolveCountsClicks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	resp, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a"})
	require.NoError(t, err)

	visit := dto.VisitContext{Referer: "https://news.example", UserAgent: "curl/8", IPAddress: "10.0.0.1", Country: "DE"}
	for i := 0; i < 2; i++ {
		_, err := f.svc.Resolve(ctx, resp.ShortCode, visit)
		require.NoError(t, err)
	}

	stats, err := f.svc.GetStats(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ClickCount)
	assert.Equal(t, int64(2), stats.TotalClicks)
	assert.Equal(t, int64(1), stats.UniqueVisitors)
	require.NotEmpty(t, stats.TopCountries)
	assert.Equal(t, "DE", stats.TopCountries[0].Value)
	require.NotNil(t, stats.LastAccessedAt)
}

func TestResolveEntryCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	resp, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/secret", EntryCode: "open1234"})
	require.NoError(t, err)
	assert.True(t, resp.HasEntryCode)

	_, err = f.svc.Resolve(ctx, resp.ShortCode, dto.VisitContext{})
	assert.ErrorIs(t, err, apperrors.ErrEntryCodeRequired)
	_, err = f.svc.Resolve(ctx, resp.ShortCode, dto.VisitContext{EntryCode: "wrong123"})
	assert.ErrorIs(t, err, apperrors.ErrEntryCodeRequired)

	// 被拒绝的访问不计数
	rec, err := f.store.FindByShortCode(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Zero(t, rec.ClickCount)

	got, err := f.svc.Resolve(ctx, resp.ShortCode, dto.VisitContext{EntryCode: "open1234"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/secret", got.OriginalURL)
}

func TestResolveExpiredIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	resp, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", ExpiresAt: baseTime.Add(time.Hour).Format(time.RFC3339)})
	require.NoError(t, err)
	require.NotNil(t, resp.ExpiresAt)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Resolve(ctx, resp.ShortCode, dto.VisitContext{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.Resolve(ctx, "nothere", dto.VisitContext{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	resp, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", CustomAlias: "first"})
	require.NoError(t, err)
	_, err = f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/b", CustomAlias: "taken"})
	require.NoError(t, err)

	newURL := "example.com/new"
	alias := "second"
	updated, err := f.svc.Update(ctx, "first", dto.UpdateRequest{
		URL:         &newURL,
		CustomAlias: &alias,
		ExpiresAt:   json.RawMessage(`"` + baseTime.Add(24*time.Hour).Format(time.RFC3339) + `"`),
		Metadata:    json.RawMessage(`{"campaign":"spring"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", updated.OriginalURL)
	assert.Equal(t, "second", updated.CustomAlias)
	assert.Equal(t, "spring", updated.Metadata["campaign"])
	require.NotNil(t, updated.ExpiresAt)

	cleared, err := f.svc.Update(ctx, resp.ShortCode, dto.UpdateRequest{ExpiresAt: json.RawMessage(`null`)})
	require.NoError(t, err)
	assert.Nil(t, cleared.ExpiresAt)

	bad := "ftp://example.com/file"
	short := "ab"
	_, err = f.svc.Update(ctx, resp.ShortCode, dto.UpdateRequest{
		URL:         &bad,
		CustomAlias: &short,
		ExpiresAt:   json.RawMessage(`1`),
	})
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Len(t, appErr.Violations, 3)

	takenAlias := "taken"
	_, err = f.svc.Update(ctx, resp.ShortCode, dto.UpdateRequest{CustomAlias: &takenAlias})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.svc.Update(ctx, "missing", dto.UpdateRequest{URL: &newURL})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	resp, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", CustomAlias: "gone"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "gone"))
	_, err = f.svc.Resolve(ctx, resp.ShortCode, dto.VisitContext{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, resp.ShortCode), apperrors.ErrNotFound)
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	_, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", ExpiresAt: baseTime.Add(time.Minute).UnixMilli()})
	require.NoError(t, err)
	_, err = f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/b"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	n, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListAndOverallStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	for _, u := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		_, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: u})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	page, err := f.svc.List(ctx, dto.ListQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPage)
	require.Len(t, page.List, 2)
	assert.Equal(t, "https://example.com/3", page.List[0].OriginalURL)

	overall, err := f.svc.GetOverallStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), overall.TotalURLs)
	assert.Len(t, overall.RecentURLs, 3)
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	_, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", CustomAlias: "promo"})
	require.NoError(t, err)

	res, err := f.svc.CheckAvailability(ctx, "promo")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.True(t, res.Valid)

	res, err = f.svc.CheckAvailability(ctx, "fresh-one")
	require.NoError(t, err)
	assert.True(t, res.Available)

	res, err = f.svc.CheckAvailability(ctx, "api")
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.False(t, res.Valid)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, validator.MsgAliasReserved, res.Violations[0].MessageID)

	_, err = f.svc.CheckAvailability(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCheckAvailabilityMatchesShorten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())

	deleted, err := f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/a", CustomAlias: "retired"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, deleted.ShortCode))
	_, err = f.svc.Shorten(ctx, dto.ShortenRequest{
		URL:         "https://example.com/b",
		CustomAlias: "lapsed",
		ExpiresAt:   baseTime.Add(time.Minute).Format(time.RFC3339),
	})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	for _, alias := range []string{"retired", "lapsed"} {
		res, err := f.svc.CheckAvailability(ctx, alias)
		require.NoError(t, err)
		assert.False(t, res.Available, alias)

		_, err = f.svc.Shorten(ctx, dto.ShortenRequest{URL: "https://example.com/c", CustomAlias: alias})
		assert.ErrorIs(t, err, apperrors.ErrConflict, alias)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, defaultConfig())
	assert.True(t, f.svc.HealthCheck(context.Background()).Storage)

	require.NoError(t, f.store.Disconnect(context.Background()))
	health := f.svc.HealthCheck(context.Background())
	assert.False(t, health.Storage)
	assert.Equal(t, "unavailable", health.Status)
}
