package analytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/DeafMist/topstories/backend/internal/models"
	"github.com/DeafMist/topstories/backend/internal/processing"
)

// Observer is notified of every sink write.
type Observer interface {
	ObserveSink(sink string, err error)
}

// Recorder captures one record per successful request and fans it out to
// its sinks. A Recorder without sinks records nothing.
type Recorder struct {
	sinks    []Sink
	log      *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewRecorder builds a Recorder. observer may be nil.
func NewRecorder(log *slog.Logger, observer Observer, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{sinks: sinks, log: log, observer: observer, now: time.Now}
}

// Enabled reports whether any sink is configured.
func (rc *Recorder) Enabled() bool { return len(rc.sinks) > 0 }

// Middleware times the request and emits a record when it ends with 200.
func (rc *Recorder) Middleware(next http.Handler) http.Handler {
	if !rc.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := rc.now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status != http.StatusOK {
			return
		}

		elapsed := rc.now().Sub(start)
		rec := BuildRecord(r, status, start, elapsed)
		rc.Emit(context.WithoutCancel(r.Context()), rec)
	})
}

// Emit writes rec to every sink. Failures are logged and never returned.
func (rc *Recorder) Emit(ctx context.Context, rec models.Record) {
	for _, sink := range rc.sinks {
		err := sink.Write(ctx, rec)
		if rc.observer != nil {
			rc.observer.ObserveSink(sink.Name(), err)
		}
		if err != nil {
			rc.log.Warn("analytics sink write failed",
				slog.String("sink", sink.Name()),
				slog.String("id", rec.ID),
				slog.Any("err", err),
			)
		}
	}
}

// Close closes every sink.
func (rc *Recorder) Close() error {
	var errs []error
	for _, sink := range rc.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// BuildRecord describes a served request.
func BuildRecord(r *http.Request, status int, start time.Time, elapsed time.Duration) models.Record {
	ua := r.UserAgent()
	return models.Record{
		ID:           uuid.NewString(),
		Date:         start.UTC(),
		HTTPVersion:  fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor),
		Method:       r.Method,
		Referrer:     r.Referer(),
		IP:           clientIP(r.RemoteAddr),
		ResponseTime: float64(elapsed.Microseconds()) / 1000,
		Status:       status,
		URL:          r.URL.RequestURI(),
		UserAgent:    ua,
		Section:      processing.SectionFromPath(r.URL.Path),
		Curl:         processing.IsCurl(ua),
	}
}

// clientIP strips the port; chi's RealIP middleware has already applied
// forwarding headers to RemoteAddr.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
