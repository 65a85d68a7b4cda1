package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
)

const defaultBatchTimeout = 100 * time.Millisecond

// messageWriter is the part of *kafka.Writer the reporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter publishes JSON summaries to a Kafka topic, keyed by
// resource so one file's transfers land on one partition.
type KafkaReporter struct {
	writer messageWriter
	topic  string

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// NewKafkaReporter creates a synchronous Kafka writer from cfg.
func NewKafkaReporter(cfg config.KafkaReportConfig) (*KafkaReporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		Compression:  codec,
		Async:        false,
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":     cfg.Brokers,
		"topic":       cfg.Topic,
		"compression": cfg.Compression,
	}).Debug("kafka reporter created")

	return &KafkaReporter{writer: w, topic: cfg.Topic}, nil
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	default:
		return 0, fmt.Errorf("invalid compression type: %s", name)
	}
}

func (r *KafkaReporter) Name() string { return "kafka" }

// Report writes one summary and waits for the broker to accept it.
func (r *KafkaReporter) Report(ctx context.Context, s Summary) error {
	value, err := json.Marshal(s)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize summary failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(s.Resource),
		Value: value,
		Time:  s.Started,
		Headers: []kafka.Header{
			{Key: "role", Value: []byte(s.Role)},
			{Key: "outcome", Value: []byte(s.Outcome)},
		},
	}

	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

// Close flushes pending messages and closes the writer.
func (r *KafkaReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("error closing kafka writer: %w", err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"total_reported": r.reportedCount.Load(),
		"total_errors":   r.errorCount.Load(),
	}).Debug("kafka reporter closed")
	return nil
}
