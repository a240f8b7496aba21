package analytics

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/topstories/backend/internal/models"
)

type memorySink struct {
	mu      sync.Mutex
	records []models.Record
	err     error
	closed  bool
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Write(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

type sinkCounter struct {
	ok, failed int
}

func (c *sinkCounter) ObserveSink(_ string, err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
		}
		_, _ = w.Write([]byte("body"))
	})
}

func TestMiddlewareRecordsOnlyOK(t *testing.T) {
	sink := &memorySink{}
	rc := NewRecorder(discardLogger(), nil, sink)

	for _, status := range []int{http.StatusOK, http.StatusFound, http.StatusBadRequest, http.StatusInternalServerError} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/world", nil)
		rc.Middleware(statusHandler(status)).ServeHTTP(rec, req)
		require.Equal(t, status, rec.Code)
	}

	require.Len(t, sink.records, 1)
	require.Equal(t, http.StatusOK, sink.records[0].Status)
}

func TestMiddlewareFillsRecord(t *testing.T) {
	sink := &memorySink{}
	rc := NewRecorder(discardLogger(), nil, sink)

	start := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	ticks := []time.Time{start, start.Add(1500 * time.Microsecond)}
	rc.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	req := httptest.NewRequest(http.MethodGet, "/sports?x=1", nil)
	req.Header.Set("User-Agent", "curl/8.4.0")
	req.Header.Set("Referer", "http://example.test/")
	req.RemoteAddr = "192.0.2.10:51234"

	rc.Middleware(statusHandler(http.StatusOK)).ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sink.records, 1)
	got := sink.records[0]
	require.NotEmpty(t, got.ID)
	require.Equal(t, start, got.Date)
	require.Equal(t, "1.1", got.HTTPVersion)
	require.Equal(t, http.MethodGet, got.Method)
	require.Equal(t, "http://example.test/", got.Referrer)
	require.Equal(t, "192.0.2.10", got.IP)
	require.Equal(t, 1.5, got.ResponseTime)
	require.Equal(t, "/sports?x=1", got.URL)
	require.Equal(t, "sports", got.Section)
	require.True(t, got.Curl)
}

func TestMiddlewareRootIsHome(t *testing.T) {
	sink := &memorySink{}
	rc := NewRecorder(discardLogger(), nil, sink)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rc.Middleware(statusHandler(http.StatusOK)).ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sink.records, 1)
	require.Equal(t, "home", sink.records[0].Section)
	require.False(t, sink.records[0].Curl)
}

func TestSinkFailureDoesNotAffectResponse(t *testing.T) {
	broken := &memorySink{err: errors.New("disk full")}
	healthy := &memorySink{}
	counter := &sinkCounter{}
	rc := NewRecorder(discardLogger(), counter, broken, healthy)

	rec := httptest.NewRecorder()
	rc.Middleware(statusHandler(http.StatusOK)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/arts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "body", rec.Body.String())
	require.Len(t, healthy.records, 1)
	require.Equal(t, 1, counter.ok)
	require.Equal(t, 1, counter.failed)
}

func TestRecorderWithoutSinksIsPassThrough(t *testing.T) {
	rc := NewRecorder(nil, nil)
	require.False(t, rc.Enabled())

	next := statusHandler(http.StatusOK)
	rec := httptest.NewRecorder()
	rc.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, rc.Close())
}

func TestFileSinkAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"existing":true}`+"\n"), 0o644))

	sink, err := OpenFileSink(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sink.Write(context.Background(), models.Record{ID: "r", Section: "world", Status: 200}))
		}()
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		lines++
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, 21, lines)
}

func TestOpenFileSinkFailure(t *testing.T) {
	_, err := OpenFileSink(filepath.Join(t.TempDir(), "missing", "analytics.log"))
	require.Error(t, err)
}

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkPublishesKeyedBySection(t *testing.T) {
	w := &stubWriter{}
	sink := newKafkaSinkWithWriter(w, "analytics")

	rec := models.Record{ID: "id-1", Section: "politics", Status: 200, ResponseTime: 3.2}
	require.NoError(t, sink.Write(context.Background(), rec))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "politics", string(msg.Key))
	require.Equal(t, "record_id", msg.Headers[0].Key)
	require.Equal(t, "id-1", string(msg.Headers[0].Value))

	var decoded models.Record
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, rec, decoded)

	require.NoError(t, sink.Close())
	require.True(t, w.closed)
}

func TestKafkaSinkWrapsErrors(t *testing.T) {
	sink := newKafkaSinkWithWriter(&stubWriter{err: errors.New("no brokers")}, "analytics")
	err := sink.Write(context.Background(), models.Record{ID: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "analytics")
}
