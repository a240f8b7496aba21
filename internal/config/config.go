package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// API variants.
const (
	VariantProxy    = "proxy"
	VariantGreeting = "greeting"
)

const (
	defaultElasticsearchAddr  = "http://elasticsearch:9200"
	defaultElasticsearchIndex = "analytics"
	defaultAnalyticsTopic     = "analytics"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// TopStories configures the upstream top-stories accessor.
type TopStories struct {
	APIKey        string
	BaseURL       string
	PagesURL      string
	Timeout       time.Duration
	CacheTTL      time.Duration
	CacheCapacity int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	TopStories
	BindAddr         string
	Variant          string
	DefaultPage      int
	MaxPage          int
	AnalyticsLogFile string
	KafkaBrokers     []string
	AnalyticsTopic   string
}

// Worker holds configuration for the Kafka -> Elasticsearch analytics worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
	CommitInterval time.Duration
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &API{
		Common: Common{
			// Analytics search is only exposed when an address is set explicitly.
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", defaultElasticsearchIndex),
		},
		TopStories: TopStories{
			APIKey:        strings.TrimSpace(os.Getenv("NYTIMES_TOP_STORIES_API_KEY")),
			BaseURL:       strings.TrimRight(getEnv("NYTIMES_API_BASE_URL", "http://api.nytimes.com/svc/topstories/v1"), "/"),
			PagesURL:      strings.TrimRight(getEnv("NYTIMES_PAGES_URL", "http://www.nytimes.com/pages"), "/"),
			Timeout:       getDuration("NYTIMES_TIMEOUT", "0s"),
			CacheTTL:      getDuration("NYTIMES_CACHE_TTL", "0s"),
			CacheCapacity: getInt("NYTIMES_CACHE_CAPACITY", 64),
		},
		BindAddr:         getEnv("API_BIND_ADDR", "0.0.0.0:5000"),
		Variant:          strings.ToLower(getEnv("API_VARIANT", VariantProxy)),
		DefaultPage:      getInt("API_PAGE_SIZE", 20),
		MaxPage:          getInt("API_MAX_PAGE_SIZE", 100),
		AnalyticsLogFile: getEnv("ANALYTICS_LOG_FILE", ""),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		AnalyticsTopic:   getEnv("ANALYTICS_KAFKA_TOPIC", defaultAnalyticsTopic),
	}

	switch c.Variant {
	case VariantProxy:
		if c.APIKey == "" {
			return nil, fmt.Errorf("NYTIMES_TOP_STORIES_API_KEY must be set")
		}
	case VariantGreeting:
	default:
		return nil, fmt.Errorf("API_VARIANT must be %q or %q, got %q", VariantProxy, VariantGreeting, c.Variant)
	}

	if c.Timeout < 0 {
		return nil, fmt.Errorf("NYTIMES_TIMEOUT cannot be negative")
	}
	if c.CacheTTL < 0 {
		return nil, fmt.Errorf("NYTIMES_CACHE_TTL cannot be negative")
	}
	if c.CacheCapacity <= 0 {
		return nil, fmt.Errorf("NYTIMES_CACHE_CAPACITY must be positive")
	}
	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Worker{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", defaultElasticsearchAddr),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", defaultElasticsearchIndex),
		},
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("ANALYTICS_KAFKA_TOPIC", defaultAnalyticsTopic),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "analytics-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
		CommitInterval: getDuration("WORKER_COMMIT_INTERVAL", "2s"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Retention{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", defaultElasticsearchAddr),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", defaultElasticsearchIndex),
		},
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// loadDotEnv populates the environment from ENV_FILE (default .env) when the
// file exists. Variables that are already set win.
func loadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
