package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshPayload struct {
	Mode    string   `json:"mode"`
	Symbols []string `json:"symbols"`
}

type stubJob struct {
	err  error
	seen []*refreshPayload
}

func (j *stubJob) Name() string { return "stub" }
func (j *stubJob) Type() string { return "forecast.refresh" }
func (j *stubJob) Handle(_ context.Context, payload interface{}) error {
	p, err := ParsePayload[refreshPayload](payload)
	if err != nil {
		return err
	}
	j.seen = append(j.seen, p)
	return j.err
}

var fixedNow = time.Unix(1_700_000_000, 0).UTC()

func newTestQueue(t *testing.T, cfg *QueueConfig, mode QueueMode, job Job) (*RedisQueue, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, cfg, db, mode, WithKeyPrefix("test:queue"))
	q.now = func() time.Time { return fixedNow }
	if job != nil {
		q.RegisterJob(job)
	}
	return q, mock
}

func TestParsePayloadShapes(t *testing.T) {
	want := refreshPayload{Mode: "build", Symbols: []string{"AAPL"}}

	got, err := ParsePayload[refreshPayload](map[string]interface{}{"mode": "build", "symbols": []interface{}{"AAPL"}})
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	got, err = ParsePayload[refreshPayload](json.RawMessage(`{"mode":"build","symbols":["AAPL"]}`))
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	got, err = ParsePayload[refreshPayload](want)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	_, err = ParsePayload[refreshPayload](42)
	assert.Error(t, err)
}

func TestHandleRunsJobWithRawPayload(t *testing.T) {
	job := &stubJob{}
	q, mock := newTestQueue(t, &QueueConfig{JobTimeout: time.Second}, ModeProducerConsumer, job)

	q.handle(context.Background(), Message{ID: "1", Type: "forecast.refresh", Payload: json.RawMessage(`{"mode":"update"}`)})
	require.Len(t, job.seen, 1)
	assert.Equal(t, "update", job.seen[0].Mode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedMessageIsScheduledForRetry(t *testing.T) {
	job := &stubJob{err: errors.New("boom")}
	q, mock := newTestQueue(t, &QueueConfig{RetryLimit: 2, RetryDelay: time.Minute}, ModeProducerConsumer, job)

	msg := Message{ID: "7", Type: "forecast.refresh", Payload: json.RawMessage(`{"mode":"build"}`), Timestamp: fixedNow}
	retried := msg
	retried.Attempts, retried.LastError = 1, "boom"
	data, err := json.Marshal(retried)
	require.NoError(t, err)
	mock.ExpectZAdd("test:queue:retry", redis.Z{Score: float64(fixedNow.Add(time.Minute).Unix()), Member: data}).SetVal(1)

	q.handle(context.Background(), msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExhaustedMessageGoesToDeadLetter(t *testing.T) {
	job := &stubJob{err: errors.New("boom")}
	q, mock := newTestQueue(t, &QueueConfig{RetryLimit: 1}, ModeProducerConsumer, job)

	msg := Message{ID: "7", Type: "forecast.refresh", Payload: json.RawMessage(`{"mode":"build"}`), Attempts: 1, Timestamp: fixedNow}
	dead := msg
	dead.Attempts, dead.LastError = 2, "boom"
	data, err := json.Marshal(dead)
	require.NoError(t, err)
	mock.ExpectLPush("test:queue:dlq", data).SetVal(1)

	q.handle(context.Background(), msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	q, _ := newTestQueue(t, nil, ModeProducerOnly, nil)
	err := q.PublishMessage(context.Background(), "forecast.refresh", refreshPayload{Mode: "update"})
	assert.EqualError(t, err, "queue not running")
}

func TestPublisherEnqueuesEnvelope(t *testing.T) {
	q, mock := newTestQueue(t, nil, ModeProducerOnly, nil)
	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, q.Start())

	data, err := json.Marshal(Message{
		ID:        "1700000000000000000",
		Type:      "logs",
		Payload:   json.RawMessage(`{"mode":"update","symbols":null}`),
		Timestamp: fixedNow,
	})
	require.NoError(t, err)
	mock.ExpectLPush("test:queue:messages", data).SetVal(1)

	require.NoError(t, q.PublishMessage(context.Background(), "logs", refreshPayload{Mode: "update"}))
	require.NoError(t, q.Stop(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueRejectsUnhandledType(t *testing.T) {
	q, _ := newTestQueue(t, nil, ModeProducerConsumer, &stubJob{})
	q.running = true
	err := q.Enqueue(context.Background(), "other", nil)
	assert.EqualError(t, err, "no job registered for type: other")
}

func TestPromoteDueSkipsClaimedRetries(t *testing.T) {
	q, mock := newTestQueue(t, nil, ModeProducerConsumer, nil)
	mock.ExpectZRangeByScore("test:queue:retry", &redis.ZRangeBy{Min: "-inf", Max: "1700000000"}).SetVal([]string{"a", "b"})
	mock.ExpectZRem("test:queue:retry", "a").SetVal(1)
	mock.ExpectLPush("test:queue:messages", "a").SetVal(1)
	mock.ExpectZRem("test:queue:retry", "b").SetVal(0)

	q.promoteDue(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, nil, db, ModeProducerOnly)

	mock.ExpectLLen(DefaultKeyPrefix + ":messages").SetVal(3)
	mock.ExpectZCard(DefaultKeyPrefix + ":retry").SetVal(1)
	mock.ExpectLLen(DefaultKeyPrefix + ":dlq").SetVal(2)

	st, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 3, Retrying: 1, Dead: 2}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}
