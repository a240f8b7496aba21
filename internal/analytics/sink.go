package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/topstories/backend/internal/models"
)

// Sink receives analytics records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec models.Record) error
	Close() error
}

// FileSink appends one JSON object per line to a log file.
type FileSink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder
}

// OpenFileSink opens path for appending, creating it when missing.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open analytics log %s: %w", path, err)
	}
	return NewFileSink(f), nil
}

// NewFileSink wraps an already open writer.
func NewFileSink(w io.WriteCloser) *FileSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &FileSink{w: w, enc: enc}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("append analytics record: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// messageWriter is the subset of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records to a Kafka topic keyed by section.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink builds an asynchronous writer. Delivery failures surface in
// the log through the writer's completion callback.
func NewKafkaSink(brokers []string, topic string, log *slog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("analytics delivery failed",
					slog.String("topic", topic),
					slog.Int("messages", len(messages)),
					slog.Any("err", err),
				)
			}
		},
	}
	return &KafkaSink{writer: w, topic: topic}
}

func newKafkaSinkWithWriter(w messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, rec models.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal analytics record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.Section),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "record_id", Value: []byte(rec.ID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish analytics record to %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
