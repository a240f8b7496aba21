package topstories

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/DeafMist/topstories/backend/internal/cache"
)

// DefaultBaseURL is the top-stories endpoint prefix; the section and ".json"
// are appended to it.
const DefaultBaseURL = "http://api.nytimes.com/svc/topstories/v1"

const (
	maxSnippetBytes = 512
	redactedKey     = "REDACTED"

	// invalidSectionLabel replaces rejected sections in observer calls so
	// client input never becomes a metric label.
	invalidSectionLabel = "invalid"
)

// Config carries everything the accessor needs. APIKey is required.
type Config struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	CacheTTL      time.Duration
	CacheCapacity int
}

// Observer receives one call per Fetch. outcome is one of "ok", "cache_hit",
// "invalid_section" or "error". section is always an allow-listed name or
// "invalid".
type Observer interface {
	ObserveFetch(section, outcome string, elapsed time.Duration)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Section    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("top stories %s returned status %d: %s", e.Section, e.StatusCode, e.Body)
}

// Accessor performs the single outbound fetch against the top-stories API.
// It is safe for concurrent use.
type Accessor struct {
	key      string
	baseURL  string
	client   *resty.Client
	results  *cache.Cache[json.RawMessage]
	log      *slog.Logger
	observer Observer
}

// Option customises an Accessor.
type Option func(*Accessor)

// WithLogger sets the logger used for upstream diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(a *Accessor) {
		if log != nil {
			a.log = log
		}
	}
}

// WithObserver registers a fetch observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(a *Accessor) { a.observer = o }
}

// New builds an Accessor. The API key is captured once and never changes.
func New(cfg Config, opts ...Option) (*Accessor, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("top stories api key is empty")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := resty.New().SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	a := &Accessor{
		key:     key,
		baseURL: base,
		client:  client,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.client.SetLogger(restyLogger{log: a.log, key: key})

	if cfg.CacheTTL > 0 {
		a.results = cache.New[json.RawMessage](cfg.CacheCapacity, cfg.CacheTTL)
	}

	return a, nil
}

// URL returns the upstream URL for section, without the api-key parameter.
func (a *Accessor) URL(section string) string {
	return fmt.Sprintf("%s/%s.json", a.baseURL, url.PathEscape(section))
}

// Fetch returns the upstream "results" value for section. An empty section
// means DefaultSection. Unknown sections fail with an *InvalidSectionError
// before any network traffic. A response without "results" yields nil.
func (a *Accessor) Fetch(ctx context.Context, section string) (json.RawMessage, error) {
	start := time.Now()
	if section == "" {
		section = DefaultSection
	}
	if !IsValidSection(section) {
		a.observe(invalidSectionLabel, "invalid_section", start)
		return nil, &InvalidSectionError{Section: section}
	}

	if a.results != nil {
		if cached, ok := a.results.Get(section); ok {
			a.observe(section, "cache_hit", start)
			return cached, nil
		}
	}

	results, err := a.fetch(ctx, section)
	if err != nil {
		a.observe(section, "error", start)
		return nil, err
	}
	a.observe(section, "ok", start)

	if a.results != nil && results != nil {
		a.results.Set(section, results)
	}
	return results, nil
}

// ClearCache drops the cached results for section, or everything when
// section is empty.
func (a *Accessor) ClearCache(section string) {
	if a.results == nil {
		return
	}
	if section == "" {
		a.results.Clear()
		return
	}
	a.results.Delete(section)
}

func (a *Accessor) fetch(ctx context.Context, section string) (json.RawMessage, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("api-key", a.key).
		Get(a.URL(section))
	if err != nil {
		// *url.Error carries the full URL, api-key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("fetch top stories %s: %s %q: %w", section, urlErr.Op, a.URL(section), urlErr.Err)
		}
		return nil, fmt.Errorf("fetch top stories %s: %s", section, redact(err.Error(), a.key))
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		return nil, &StatusError{Section: section, StatusCode: resp.StatusCode(), Body: redact(snippet(body), a.key)}
	}

	var payload struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode top stories %s: %w", section, err)
	}

	results := bytes.TrimSpace(payload.Results)
	if len(results) == 0 || bytes.Equal(results, []byte("null")) {
		a.log.Debug("upstream response has no results", slog.String("section", section))
		return nil, nil
	}
	return json.RawMessage(results), nil
}

func (a *Accessor) observe(section, outcome string, start time.Time) {
	if a.observer != nil {
		a.observer.ObserveFetch(section, outcome, time.Since(start))
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippetBytes {
		cut := maxSnippetBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

func redact(msg, key string) string {
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, key, redactedKey)
}

// restyLogger routes resty's internal messages into slog with the api key
// masked.
type restyLogger struct {
	log *slog.Logger
	key string
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error(l.format(format, v...), slog.String("component", "resty"))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(l.format(format, v...), slog.String("component", "resty"))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(l.format(format, v...), slog.String("component", "resty"))
}

func (l restyLogger) format(format string, v ...any) string {
	return redact(strings.TrimSpace(fmt.Sprintf(format, v...)), l.key)
}
