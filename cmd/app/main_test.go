package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorturl-go/internal/dto"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `
server:
  base_url: "https://sho.rt"
db:
  driver: sqlite
  dsn: "` + filepath.ToSlash(filepath.Join(dir, "shorturl.db")) + `"
log:
  level: error
  console_only: true
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCreateStatsListCleanup(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "migrate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated sqlite database")

	out, err = run(t, "create", "--config", cfg, "--url", "https://example.com/cli", "--alias", "cli-link", "--no-qr")
	require.NoError(t, err)
	var created dto.ShortURLResponse
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "https://sho.rt/s/cli-link", created.AliasURL)
	assert.Empty(t, created.QRCode)

	out, err = run(t, "stats", "cli-link", "--config", cfg)
	require.NoError(t, err)
	var stats dto.StatsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, created.ShortCode, stats.ShortCode)
	assert.Zero(t, stats.TotalClicks)

	out, err = run(t, "list", "--config", cfg, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 1`)

	out, err = run(t, "cleanup", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Deactivated 0 expired short URLs")
}

func TestCreateRequiresURL(t *testing.T) {
	_, err := run(t, "create", "--config", writeTestConfig(t))
	assert.Error(t, err)
}

func TestStatsUnknownCode(t *testing.T) {
	_, err := run(t, "stats", "missing", "--config", writeTestConfig(t))
	assert.Error(t, err)
}
