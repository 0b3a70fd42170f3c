package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"PivotScan/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Redis-backed job queue: a pending list consumed with
// BRPOP, a sorted set holding delayed retries keyed by due time, and a
// dead-letter list for messages that exhausted their retries.
type RedisQueue struct {
	l    *logger.Logger
	cfg  *QueueConfig
	rdb  *redis.Client
	mode QueueMode

	keyPending string
	keyRetry   string
	keyDead    string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	retryOnce sync.Once
}

// RedisQueueOption adjusts queue construction.
type RedisQueueOption func(*RedisQueue)

// WithQueuePrefix overrides the Redis key prefix.
func WithQueuePrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPending = prefix + ":messages"
		r.keyRetry = prefix + ":retry"
		r.keyDead = prefix + ":dlq"
	}
}

// NewRedisQueue creates a queue on an existing Redis client. The
// client is shared; Stop does not close it.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	cfg := config
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		l:      lgr,
		cfg:    cfg,
		rdb:    client,
		mode:   mode,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	WithQueuePrefix("pivotscan:queue")(rq)
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob binds a job to its message type. Must be called before
// Start; duplicates and producer-only registrations are ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.l.Warn("queue job ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.jobs[job.Type()]; dup {
		r.l.Warn("queue job bound twice", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.l.Info("queue job bound",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start verifies the Redis connection and launches the worker pool.
// The retry processor is separate; call StartRetryProcessor if delayed
// retries should be re-delivered by this instance.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.rdb.Ping(pingCtx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("queue redis ping: %w", err)
	}

	if r.mode == ModeProducerOnly {
		r.l.Info("queue up, publish only", logger.String("addr", r.rdb.Options().Addr))
		return nil
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.l.Info("queue up",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.rdb.Options().Addr),
		logger.String("mode", r.mode.String()))
	return nil
}

// StartRetryProcessor launches the goroutine that moves due retries
// back onto the pending list. Safe to call once per instance; repeated
// calls are no-ops.
func (r *RedisQueue) StartRetryProcessor() {
	if r.mode == ModeProducerOnly {
		return
	}
	r.retryOnce.Do(func() {
		r.wg.Add(1)
		go r.retryLoop()
	})
}

// Stop cancels workers and waits for them up to the context deadline.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.l.Info("queue draining")
	r.cancel()

	idle := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(idle)
	}()

	select {
	case <-ctx.Done():
		r.l.Warn("queue workers still busy at deadline", logger.Error(ctx.Err()))
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-idle:
		r.l.Info("queue stopped")
		return nil
	}
}

// Enqueue pushes one message onto the pending list.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly {
		if _, bound := r.jobs[msgType]; !bound {
			return fmt.Errorf("no job bound for type %q", msgType)
		}
	}

	raw, err := json.Marshal(Message{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode queue message: %w", err)
	}
	if err := r.rdb.LPush(ctx, r.keyPending, raw).Err(); err != nil {
		return fmt.Errorf("push queue message: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.l.Info("queue worker up", logger.Int("worker", id))

	for {
		select {
		case <-r.ctx.Done():
			r.l.Info("queue worker down", logger.Int("worker", id))
			return
		default:
		}

		raw, ok := r.pop()
		if !ok {
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.l.Error("queue message undecodable", logger.Error(err))
			continue
		}
		r.dispatch(msg)
	}
}

// pop blocks up to one second on the pending list so workers notice
// cancellation promptly.
func (r *RedisQueue) pop() ([]byte, bool) {
	vals, err := r.rdb.BRPop(r.ctx, time.Second, r.keyPending).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, false
	default:
		r.l.Error("queue pop failed", logger.Error(err))
		time.Sleep(time.Second)
		return nil, false
	}
	if len(vals) < 2 {
		return nil, false
	}
	return []byte(vals[1]), true
}

func (r *RedisQueue) dispatch(msg Message) {
	r.mu.RLock()
	job, bound := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !bound {
		r.l.Error("queue message has no job",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		return
	}

	// After the Redis round trip the payload is a generic map; hand
	// jobs raw JSON so ParsePayload can decode into their own type.
	if m, ok := msg.Payload.(map[string]interface{}); ok {
		if raw, err := json.Marshal(m); err == nil {
			msg.Payload = json.RawMessage(raw)
		}
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.l.Warn("queue message cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return
	}
	r.fail(msg, job, err)
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	r.l.Error("queue message failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.l.Error("queue message out of retries",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		r.deadLetter(msg)
		return
	}

	msg.Attempts++
	due := time.Now().Add(r.cfg.RetryDelay)
	raw, merr := json.Marshal(msg)
	if merr != nil {
		r.l.Error("encode queue retry", logger.Error(merr))
		return
	}
	zerr := r.rdb.ZAdd(context.Background(), r.keyRetry, redis.Z{
		Score:  float64(due.Unix()),
		Member: raw,
	}).Err()
	if zerr != nil {
		r.l.Error("park queue retry", logger.Error(zerr))
		return
	}
	r.l.Info("queue retry parked",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("due", due.Format(time.RFC3339)))
}

func (r *RedisQueue) deadLetter(msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("encode queue dead letter", logger.Error(err))
		return
	}
	if err := r.rdb.LPush(context.Background(), r.keyDead, raw).Err(); err != nil {
		r.l.Error("push queue dead letter", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	r.l.Info("queue retry processor up")

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.l.Info("queue retry processor down")
			return
		case <-ticker.C:
			r.redeliverDue()
		}
	}
}

// redeliverDue moves due retry entries back onto the pending list.
// ZRem acts as the claim: an entry already removed by a concurrent
// instance scores zero and is skipped, so a retry is delivered once.
func (r *RedisQueue) redeliverDue() {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := r.rdb.ZRangeByScore(r.ctx, r.keyRetry, &redis.ZRangeBy{
		Min: "0",
		Max: now,
	}).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.l.Error("list due queue retries", logger.Error(err))
		return
	}

	for _, member := range due {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		removed, err := r.rdb.ZRem(r.ctx, r.keyRetry, member).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.l.Error("claim queue retry", logger.Error(err))
			continue
		}
		if removed == 0 {
			continue
		}
		if err := r.rdb.LPush(r.ctx, r.keyPending, member).Err(); err != nil {
			r.l.Error("redeliver queue retry", logger.Error(err))
		}
	}
}
