package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one record to publish. Value is JSON encoded unless it is
// already a string or []byte.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

// Producer publishes batches through a kafka-go writer and records
// per-topic metrics.
type Producer struct {
	writer MessageWriter
	comp   string
	now    func() time.Time
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(w MessageWriter, compression string) *Producer {
	producerMetricsOnce.Do(registerProducerMetrics)
	return &Producer{writer: w, comp: compression, now: time.Now}
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}, cfg.Compression), nil
}

// PublishBatch writes messages to topic in one call. Nothing is written
// when any value fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := p.now()
	msgs := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Headers: headers(m.Headers), Time: start}
		size += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	producerMetrics.observe(topic, p.comp, size, len(msgs), time.Since(start), err)
	return err
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

func headers(m map[string]string) []kafka.Header {
	if len(m) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

// parseCompression maps a config name to a codec; unknown names use gzip.
func parseCompression(s string) kafka.Compression {
	switch s {
	case "none":
		return 0
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

type metricSet struct {
	messages *prometheus.CounterVec
	errors   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerMetrics     *metricSet
	producerMetricsOnce sync.Once
)

func registerProducerMetrics() {
	producerMetrics = &metricSet{
		messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "priceband_kafka_producer_messages_total",
			Help: "Messages published to Kafka by outcome.",
		}, []string{"topic", "compression", "result"}),
		errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "priceband_kafka_producer_errors_total",
			Help: "Failed Kafka batch writes.",
		}, []string{"topic"}),
		bytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "priceband_kafka_producer_bytes_total",
			Help: "Payload bytes handed to the writer.",
		}, []string{"topic", "compression"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "priceband_kafka_producer_publish_seconds",
			Help:    "Batch write latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *metricSet) observe(topic, comp string, size int64, count int, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.errors.WithLabelValues(topic).Inc()
	}
	m.messages.WithLabelValues(topic, comp, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, comp).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
