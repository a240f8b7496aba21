package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/topstories/backend/internal/cache"
	"github.com/DeafMist/topstories/backend/internal/config"
	"github.com/DeafMist/topstories/backend/internal/elasticsearch"
	"github.com/DeafMist/topstories/backend/internal/logger"
	"github.com/DeafMist/topstories/backend/internal/models"
	"github.com/DeafMist/topstories/backend/internal/processing"
)

const dlqAttempts = 5

// dlqBackoff is the first retry delay; it doubles on every attempt.
var dlqBackoff = time.Second

// rawRecord accepts both records produced by the api and lines replayed from
// older analytics logs, where responseTime may still be a string.
type rawRecord struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"`
	HTTPVersion  string          `json:"httpVersion"`
	Method       string          `json:"method"`
	Referrer     string          `json:"referrer"`
	IP           string          `json:"ip"`
	ResponseTime json.RawMessage `json:"responseTime"`
	Status       int             `json:"status"`
	URL          string          `json:"url"`
	UserAgent    string          `json:"userAgent"`
	Section      string          `json:"section"`
	Curl         *bool           `json:"curl"`
}

type recordIndexer interface {
	IndexRecord(ctx context.Context, rec models.Record) error
}

type dlqWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	seen := cache.New[struct{}](cfg.DedupeCapacity, cfg.DedupeTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: cfg.CommitInterval,
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlq := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlq.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, seen, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			delivered, dlqErr := sendToDLQ(ctx, log, dlq, msg, err)
			if errors.Is(dlqErr, context.Canceled) {
				log.Info("context canceled during DLQ retry")
				return
			}

			// A failed DLQ write leaves the offset uncommitted so the message is replayed.
			if delivered {
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error("commit failed message to dlq", slog.Any("err", err))
				}
			} else {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
			}
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// sendToDLQ forwards msg with failure headers, retrying with exponential
// backoff. It reports whether the write succeeded; a non-nil error means the
// context ended first.
func sendToDLQ(ctx context.Context, log *slog.Logger, w dlqWriter, msg kafka.Message, cause error) (bool, error) {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dlqMsg := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true, nil
		}

		if attempt == dlqAttempts-1 {
			log.Warn("DLQ write failed", slog.Any("err", dlqErr), slog.Int("attempt", attempt+1))
			break
		}

		backoff := dlqBackoff * time.Duration(1<<uint(attempt))
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}

func processMessage(ctx context.Context, log *slog.Logger, idx recordIndexer, seen *cache.Cache[struct{}], msg kafka.Message) error {
	rec, err := decodeRecord(msg)
	if err != nil {
		return err
	}

	if seen.Contains(rec.ID) {
		log.Debug("duplicate record", slog.String("id", rec.ID))
		return nil
	}

	if err := idx.IndexRecord(ctx, rec); err != nil {
		return err
	}

	seen.Set(rec.ID, struct{}{})
	log.Info("indexed record",
		slog.String("id", rec.ID),
		slog.String("section", rec.Section),
		slog.Float64("response_time_ms", rec.ResponseTime),
	)
	return nil
}

func decodeRecord(msg kafka.Message) (models.Record, error) {
	var payload rawRecord
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return models.Record{}, fmt.Errorf("decode record: %w", err)
	}

	method := strings.ToUpper(strings.TrimSpace(payload.Method))
	url := strings.TrimSpace(payload.URL)
	if method == "" && url == "" {
		return models.Record{}, errors.New("empty payload")
	}

	ts := processing.ParseDate(payload.Date)
	if ts.IsZero() {
		ts = msg.Time.UTC()
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	ua := payload.UserAgent
	curl := processing.IsCurl(ua)
	if payload.Curl != nil {
		curl = *payload.Curl
	}

	section := strings.TrimSpace(payload.Section)
	if section == "" && url != "" {
		section = processing.SectionFromPath(strings.SplitN(url, "?", 2)[0])
	}

	rec := models.Record{
		ID:           strings.TrimSpace(payload.ID),
		Date:         ts,
		HTTPVersion:  payload.HTTPVersion,
		Method:       method,
		Referrer:     payload.Referrer,
		IP:           payload.IP,
		ResponseTime: processing.CoerceResponseTime(payload.ResponseTime),
		Status:       payload.Status,
		URL:          url,
		UserAgent:    ua,
		Section:      section,
		Curl:         curl,
	}

	if rec.ID == "" {
		rec.ID = processing.BuildRecordID(rec)
	}
	return rec, nil
}
