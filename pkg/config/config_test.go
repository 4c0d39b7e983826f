package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 3, cfg.Search.MinChars)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.True(t, cfg.Search.SearchProducts)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
store:
  driver: postgres
search:
  searchProducts: false
  maxResults: 25
kafka:
  brokers: ["k1:9092"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.False(t, cfg.Search.SearchProducts)
	assert.True(t, cfg.Search.SearchArticles)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("US_SERVER_PORT", "9100")
	t.Setenv("US_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("US_SEARCH_MIN_CHARS", "4")
	t.Setenv("US_SEARCH_IN_SKU", "false")
	t.Setenv("US_REDIS_CACHE_TTL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Search.MinChars)
	assert.False(t, cfg.Search.SearchInSKU)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown store driver", "store:\n  driver: sqlite\n"},
		{"max results out of range", "search:\n  maxResults: 0\n"},
		{"bad log level", "logging:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPostgresConfig_DSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Contains(t, dsn, "dbname=unifiedsearch")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestLoad_ServerAndAnalyticsExtras(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Server.RateLimit)
	assert.Equal(t, time.Minute, cfg.Server.RateWindow)
	assert.Equal(t, "unified-search-analytics", cfg.Analytics.ConsumerGroup)
	assert.Equal(t, 10, cfg.Analytics.TopN)

	t.Setenv("US_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("US_SERVER_RATE_LIMIT", "30")
	t.Setenv("US_ANALYTICS_TOP_N", "25")
	t.Setenv("US_CMS_PRODUCT_PLACEHOLDER", "/img/none.png")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30, cfg.Server.RateLimit)
	assert.Equal(t, 25, cfg.Analytics.TopN)
	assert.Equal(t, "/img/none.png", cfg.CMS.ProductPlaceholder)

	t.Setenv("US_SERVER_RATE_LIMIT", "-1")
	_, err = Load("")
	assert.Error(t, err)
}
