package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DeafMist/topstories/backend/internal/config"
	"github.com/stretchr/testify/require"
)

// isolate points ENV_FILE at a missing file so a developer .env never leaks in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadAPIDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("NYTIMES_TOP_STORIES_API_KEY", "secret")
	t.Setenv("NYTIMES_API_BASE_URL", "")
	t.Setenv("NYTIMES_PAGES_URL", "")
	t.Setenv("NYTIMES_TIMEOUT", "")
	t.Setenv("NYTIMES_CACHE_TTL", "")
	t.Setenv("API_BIND_ADDR", "")
	t.Setenv("API_VARIANT", "")
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ANALYTICS_LOG_FILE", "")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, "secret", cfg.APIKey)
	require.Equal(t, "http://api.nytimes.com/svc/topstories/v1", cfg.BaseURL)
	require.Equal(t, "http://www.nytimes.com/pages", cfg.PagesURL)
	require.Equal(t, time.Duration(0), cfg.Timeout)
	require.Equal(t, time.Duration(0), cfg.CacheTTL)
	require.Equal(t, "0.0.0.0:5000", cfg.BindAddr)
	require.Equal(t, config.VariantProxy, cfg.Variant)
	require.Empty(t, cfg.ElasticsearchAddr)
	require.Empty(t, cfg.KafkaBrokers)
	require.Empty(t, cfg.AnalyticsLogFile)
	require.Equal(t, "analytics", cfg.AnalyticsTopic)
}

func TestLoadAPIOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("NYTIMES_TOP_STORIES_API_KEY", "  k  ")
	t.Setenv("NYTIMES_API_BASE_URL", "http://upstream.test/v2/")
	t.Setenv("NYTIMES_PAGES_URL", "https://pages.test/")
	t.Setenv("NYTIMES_TIMEOUT", "3s")
	t.Setenv("NYTIMES_CACHE_TTL", "10m")
	t.Setenv("NYTIMES_CACHE_CAPACITY", "8")
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_PAGE_SIZE", "15")
	t.Setenv("API_MAX_PAGE_SIZE", "200")
	t.Setenv("ELASTICSEARCH_ADDR", "http://api-es:9200")
	t.Setenv("ELASTICSEARCH_INDEX", "api-index")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("ANALYTICS_KAFKA_TOPIC", "hits")
	t.Setenv("ANALYTICS_LOG_FILE", "/tmp/analytics.log")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, "k", cfg.APIKey)
	require.Equal(t, "http://upstream.test/v2", cfg.BaseURL)
	require.Equal(t, "https://pages.test", cfg.PagesURL)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.Equal(t, 10*time.Minute, cfg.CacheTTL)
	require.Equal(t, 8, cfg.CacheCapacity)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 15, cfg.DefaultPage)
	require.Equal(t, 200, cfg.MaxPage)
	require.Equal(t, "http://api-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "api-index", cfg.ElasticsearchIndex)
	require.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	require.Equal(t, "hits", cfg.AnalyticsTopic)
	require.Equal(t, "/tmp/analytics.log", cfg.AnalyticsLogFile)
}

func TestLoadAPIRequiresKeyForProxy(t *testing.T) {
	isolate(t)
	t.Setenv("API_VARIANT", "proxy")
	t.Setenv("NYTIMES_TOP_STORIES_API_KEY", "")

	_, err := config.LoadAPI()
	require.Error(t, err)
	require.Contains(t, err.Error(), "NYTIMES_TOP_STORIES_API_KEY")
}

func TestLoadAPIGreetingNeedsNoKey(t *testing.T) {
	isolate(t)
	t.Setenv("API_VARIANT", "Greeting")
	t.Setenv("NYTIMES_TOP_STORIES_API_KEY", "")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, config.VariantGreeting, cfg.Variant)
}

func TestLoadAPIRejectsUnknownVariant(t *testing.T) {
	isolate(t)
	t.Setenv("API_VARIANT", "mirror")
	t.Setenv("NYTIMES_TOP_STORIES_API_KEY", "k")

	_, err := config.LoadAPI()
	require.Error(t, err)
}

func TestLoadAPIReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NYTIMES_TOP_STORIES_API_KEY=from-file\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("API_VARIANT", "")

	// t.Setenv restores the original value once godotenv has written it.
	t.Setenv("NYTIMES_TOP_STORIES_API_KEY", "")
	require.NoError(t, os.Unsetenv("NYTIMES_TOP_STORIES_API_KEY"))

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.APIKey)
}

func TestLoadWorkerDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("ELASTICSEARCH_INDEX", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ANALYTICS_KAFKA_TOPIC", "")
	t.Setenv("KAFKA_CONSUMER_GROUP", "")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "analytics", cfg.ElasticsearchIndex)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "analytics", cfg.KafkaTopic)
	require.Equal(t, "analytics-worker", cfg.KafkaConsumer)
}

func TestLoadWorkerOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")
	t.Setenv("ANALYTICS_KAFKA_TOPIC", "custom_topic")
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_DEDUPE_CAPACITY", "5")
	t.Setenv("WORKER_DEDUPE_TTL", "48h")
	t.Setenv("WORKER_BATCH_SIZE", "3")
	t.Setenv("WORKER_COMMIT_INTERVAL", "5s")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Len(t, cfg.KafkaBrokers, 2)
	require.Equal(t, "broker-a:29092", cfg.KafkaBrokers[0])
	require.Equal(t, "custom_topic", cfg.KafkaTopic)
	require.Equal(t, "custom-group", cfg.KafkaConsumer)
	require.Equal(t, 5, cfg.DedupeCapacity)
	require.Equal(t, 48*time.Hour, cfg.DedupeTTL)
	require.Equal(t, 3, cfg.BatchSize)
	require.Equal(t, 5*time.Second, cfg.CommitInterval)
}

func TestLoadRetention(t *testing.T) {
	isolate(t)
	t.Setenv("ELASTICSEARCH_ADDR", "http://ret-es:9200")
	t.Setenv("ELASTICSEARCH_INDEX", "ret-index")
	t.Setenv("RETENTION_CRON", "12h")
	t.Setenv("RETENTION_MAX_AGE", "36h")
	t.Setenv("RETENTION_BATCH_SIZE", "123")

	cfg, err := config.LoadRetention()
	require.NoError(t, err)

	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 36*time.Hour, cfg.MaxAge)
	require.Equal(t, 123, cfg.BatchSize)
	require.Equal(t, "http://ret-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "ret-index", cfg.ElasticsearchIndex)
}
