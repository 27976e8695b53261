package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"PriceBand/pkg/logger"
)

const (
	DefaultKeyPrefix = "priceband:queue"

	defaultRetryDelay = 10 * time.Second
	defaultRetryPoll  = 5 * time.Second
	popTimeout        = time.Second
	pingTimeout       = 5 * time.Second
	// opTimeout bounds bookkeeping writes (retry, dead letter).
	opTimeout = 5 * time.Second
)

// QueueMode selects whether a queue also runs workers.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
)

func (m QueueMode) String() string {
	if m == ModeProducerOnly {
		return "producer-only"
	}
	return "producer-consumer"
}

// RedisQueue is a work queue on a Redis list. Failed messages wait in a
// sorted set until their retry time and end up on a dead-letter list once
// the retry limit is spent.
type RedisQueue struct {
	logger    *logger.Logger
	config    QueueConfig
	client    *redis.Client
	mode      QueueMode
	keyPrefix string
	now       func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	var cfg QueueConfig
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.RetryPoll <= 0 {
		cfg.RetryPoll = defaultRetryPoll
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	r := &RedisQueue{
		logger:    lgr,
		config:    cfg,
		client:    client,
		mode:      mode,
		keyPrefix: DefaultKeyPrefix,
		now:       time.Now,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisPublisher returns a started producer-only queue. A failed start is
// logged; publishing then fails until Redis comes back and Start is retried.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, nil, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		q.logger.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// RegisterJob routes messages of job.Type() to job. Producer-only queues
// ignore registrations.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start checks the connection and, unless producer-only, launches the
// workers and the retry loop.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	pctx, pcancel := context.WithTimeout(context.Background(), pingTimeout)
	defer pcancel()
	if err := r.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	if r.mode == ModeProducerConsumer {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(ctx, i)
		}
		r.wg.Add(1)
		go r.retryLoop(ctx)
	}
	r.logger.Info("redis queue started",
		logger.String("mode", r.mode.String()),
		logger.Int("workers", r.config.Workers),
		logger.String("key", r.queueKey()))
	return nil
}

// Stop cancels the workers and waits for them or for ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop queue: %w", ctx.Err())
	}
}

// Enqueue pushes one message. Consumer queues refuse types no job handles.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return errors.New("queue not running")
	}
	if r.mode == ModeProducerConsumer && !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	now := r.now()
	data, err := json.Marshal(Message{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		Type:      msgType,
		Payload:   raw,
		Timestamp: now,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage lets the queue serve as the log collector's publisher.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Stats reports the backlog of the pending, retry and dead-letter lists.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Pending, err = r.client.LLen(ctx, r.queueKey()).Result(); err != nil {
		return st, fmt.Errorf("llen queue: %w", err)
	}
	if st.Retrying, err = r.client.ZCard(ctx, r.retryKey()).Result(); err != nil {
		return st, fmt.Errorf("zcard retry: %w", err)
	}
	if st.Dead, err = r.client.LLen(ctx, r.deadLetterKey()).Result(); err != nil {
		return st, fmt.Errorf("llen dlq: %w", err)
	}
	return st, nil
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))
	for ctx.Err() == nil {
		r.popOne(ctx)
	}
}

func (r *RedisQueue) popOne(ctx context.Context) {
	res, err := r.client.BRPop(ctx, popTimeout, r.queueKey()).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil), ctx.Err() != nil:
		return
	default:
		r.logger.Error("brpop", logger.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(popTimeout):
		}
		return
	}
	if len(res) < 2 {
		return
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.logger.Error("drop malformed message", logger.Error(err))
		return
	}
	r.handle(ctx, msg)
}

func (r *RedisQueue) handle(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}
	started := r.now()
	err := job.Handle(ctx, msg.Payload)
	r.logger.Debug("message handled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int64("elapsed_ms", r.now().Sub(started).Milliseconds()),
		logger.Bool("ok", err == nil))
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Warn("message cancelled", logger.String("id", msg.ID), logger.String("job", job.Name()))
		return
	}
	r.fail(msg, job, err)
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	msg.Attempts++
	msg.LastError = err.Error()
	r.logger.Error("message failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err))

	data, merr := json.Marshal(msg)
	if merr != nil {
		r.logger.Error("marshal failed message", logger.Error(merr))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if msg.Attempts <= r.config.RetryLimit {
		at := r.now().Add(r.config.RetryDelay)
		if err := r.client.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
			r.logger.Error("schedule retry", logger.Error(err))
		}
		return
	}
	r.logger.Warn("retries exhausted, dead-lettering", logger.String("id", msg.ID))
	if err := r.client.LPush(ctx, r.deadLetterKey(), data).Err(); err != nil {
		r.logger.Error("dead-letter", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.RetryPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.promoteDue(ctx)
		}
	}
}

// promoteDue moves retries whose time has come back onto the queue. Only the
// caller whose ZREM removed a member pushes it, so concurrent pollers never
// duplicate a message.
func (r *RedisQueue) promoteDue(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("read due retries", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		n, err := r.client.ZRem(ctx, r.retryKey(), member).Result()
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error("claim retry", logger.Error(err))
			}
			return
		}
		if n == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.queueKey(), member).Err(); err != nil {
			r.logger.Error("requeue retry", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }
