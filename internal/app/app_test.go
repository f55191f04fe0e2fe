package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shorturl-go/internal/config"
	"shorturl-go/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	body := `
server:
  base_url: "https://sho.rt"
  mode: test
db:
  driver: sqlite
  dsn: ":memory:"
auth:
  api_keys: ["ops-key"]
` + extra
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestAppServesRequests(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, loadConfig(t, ""), zap.NewNop(), zap.NewAtomicLevelAt(zap.ErrorLevel))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	_, isRelational := a.Store.(*repository.RelationalAdapter)
	assert.True(t, isRelational)

	router, err := a.Router()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/s/shorten", strings.NewReader(`{"url":"https://example.com/app"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"shortUrl":"https://sho.rt/s/`)

	req = httptest.NewRequest(http.MethodGet, "/s/list", nil)
	req.Header.Set("X-API-Key", "ops-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAppWithRedisCacheAndAsyncAnalytics(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cfg := loadConfig(t, `
redis:
  enabled: true
  addr: "`+mr.Addr()+`"
shorturl:
  async_analytics: true
  analytics_buffer: 8
  analytics_workers: 1
`)
	a, err := New(ctx, cfg, zap.NewNop(), zap.NewAtomicLevelAt(zap.ErrorLevel))
	require.NoError(t, err)

	_, isCached := a.Store.(*repository.CachedAdapter)
	assert.True(t, isCached)
	require.NoError(t, a.Close(ctx))
}

func TestNewFailsOnBadCodegenConfig(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.Codegen.Charset = "klingon"
	_, err := New(context.Background(), cfg, zap.NewNop(), zap.NewAtomicLevelAt(zap.ErrorLevel))
	assert.Error(t, err)
}

func TestAppEnforcesAllowedDomains(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, loadConfig(t, `
shorturl:
  allowed_domains: ["example.com"]
`), zap.NewNop(), zap.NewAtomicLevelAt(zap.ErrorLevel))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	router, err := a.Router()
	require.NoError(t, err)

	for url, want := range map[string]int{
		"https://www.example.com/ok": http.StatusCreated,
		"https://elsewhere.net/no":   http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodPost, "/s/shorten", strings.NewReader(`{"url":"`+url+`"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, url)
	}
}
