package kafka

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishBatchEncodesValues(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w, "snappy")
	at := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	require.NoError(t, p.PublishBatch(context.Background(), "bands", []Message{
		{Key: []byte("AAPL"), Value: map[string]float64{"floor": 1.5}, Headers: map[string]string{"event": "band.update"}},
		{Key: []byte("B"), Value: "raw"},
		{Key: []byte("C"), Value: []byte("bytes")},
	}))
	require.Len(t, w.msgs, 3)
	assert.Equal(t, "bands", w.msgs[0].Topic)
	assert.Equal(t, []byte("AAPL"), w.msgs[0].Key)
	assert.JSONEq(t, `{"floor":1.5}`, string(w.msgs[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "event", Value: []byte("band.update")}}, w.msgs[0].Headers)
	assert.Equal(t, at, w.msgs[0].Time)
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "bytes", string(w.msgs[2].Value))
	assert.Nil(t, w.msgs[1].Headers)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishBatchEmptyIsNoop(t *testing.T) {
	w := &captureWriter{err: errors.New("unreachable")}
	require.NoError(t, NewProducerWithWriter(w, "none").PublishBatch(context.Background(), "bands", nil))
}

func TestPublishBatchEncodeFailureWritesNothing(t *testing.T) {
	w := &captureWriter{}
	err := NewProducerWithWriter(w, "none").PublishBatch(context.Background(), "bands", []Message{
		{Value: "ok"},
		{Value: math.NaN()},
	})
	assert.ErrorContains(t, err, "message 1")
	assert.Empty(t, w.msgs)
}

func TestPublishBatchPropagatesWriterError(t *testing.T) {
	p := NewProducerWithWriter(&captureWriter{err: errors.New("down")}, "gzip")
	assert.EqualError(t, p.PublishBatch(context.Background(), "bands", []Message{{Value: "x"}}), "down")
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestProducerOptionsKeepDefaultsForZero(t *testing.T) {
	cfg := defaultProducerConfig()
	WithBatch(0, 2048, 0)(cfg)
	WithTimeouts(0, time.Second)(cfg)
	WithMaxAttempts(0)(cfg)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 2048, cfg.BatchBytes)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}
