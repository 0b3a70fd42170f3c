package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics through a shared worker pool.
// Per (topic, partition) handling is serialized so offset commits
// never leapfrog an in-flight message from the same partition.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	inbox    chan *inbound
	dlq      *kafka.Writer
	hook     ConsumerHook

	lockMu sync.Mutex
	locks  map[string]map[int]*sync.Mutex

	quit     chan struct{}
	readerWg sync.WaitGroup
	workerWg sync.WaitGroup
	stopOnce sync.Once
}

type inbound struct {
	topic string
	data  []byte
	msg   kafka.Message
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	conf := &ConsumerConfig{
		GroupID:     "pivotscan",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(conf)
	}

	if len(conf.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}

	c := &Consumer{
		cfg:      conf,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		inbox:    make(chan *inbound, conf.BufferSize),
		hook:     NoopHook{},
		locks:    make(map[string]map[int]*sync.Mutex),
		quit:     make(chan struct{}),
	}
	if conf.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(conf.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	initKafkaMetrics()
	return c, nil
}

// RegisterHandler binds a handler to its topic. Must be called before
// Start; a duplicate registration is ignored with a warning.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		log.Printf("kafka consumer: duplicate handler for topic %s, keeping the first", topic)
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook replaces the lifecycle hook. Must be called before
// Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches one reader per registered topic and the worker pool.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		log.Printf("kafka consumer: registered topic=%s", topic)
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workerWg.Add(1)
		go c.worker()
	}

	for topic, reader := range c.readers {
		c.readerWg.Add(1)
		go c.readLoop(topic, reader)
	}

	log.Printf("kafka consumer: started workers=%d topics=%d", c.cfg.WorkerCount, len(c.readers))
	return nil
}

// Stop drains the consumer. It waits for in-flight handlers up to the
// context deadline, then closes readers and the DLQ writer.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		log.Println("kafka consumer: draining")

		// Readers must stop producing before the inbox closes, or a
		// reader could send on a closed channel.
		close(c.quit)
		c.readerWg.Wait()
		close(c.inbox)

		stopErr = c.waitWithDeadline(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				log.Printf("kafka consumer: close reader %s: %v", topic, err)
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				log.Printf("kafka consumer: close dlq writer: %v", err)
			}
		}

		if stopErr == nil {
			log.Println("kafka consumer: stopped")
		}
	})

	return stopErr
}

func (c *Consumer) waitWithDeadline(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("kafka consumer: handlers still busy at deadline: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.readerWg.Done()

	for {
		select {
		case <-c.quit:
			return
		default:
		}

		// FetchMessage leaves the offset uncommitted; process commits
		// it once the handler or the DLQ has the message.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("kafka consumer: fetch %s: %v", topic, err)
			}
			continue
		}

		if !c.enqueue(&inbound{topic: topic, data: msg.Value, msg: msg}) {
			return
		}
	}
}

// enqueue hands a message to the worker pool, spinning with adaptive
// backpressure instead of dropping when the inbox is full. Returns
// false when the consumer is stopping.
func (c *Consumer) enqueue(m *inbound) bool {
	for {
		select {
		case c.inbox <- m:
			observeQueueDepth(m.topic, len(c.inbox), cap(c.inbox))
			return true
		case <-c.quit:
			return false
		default:
			full := float64(len(c.inbox)) / float64(cap(c.inbox))
			observeQueueFullness(m.topic, full)
			if full > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) worker() {
	defer c.workerWg.Done()

	for m := range c.inbox {
		c.process(m)
	}
}

func (c *Consumer) process(m *inbound) {
	handler, ok := c.handlers[m.topic]
	if !ok {
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: handler panic on %s: %v", m.topic, r)
		}
	}()

	// max one in-flight message per (topic, partition)
	lock := c.partitionLock(m.topic, m.msg.Partition)
	lock.Lock()
	defer lock.Unlock()

	attempts, err := c.handleWithRetry(handler, m)
	if err != nil {
		c.hook.OnError(context.Background(), m.topic, m.msg, m.data, err)
		log.Printf("kafka consumer: %s message failed after %d attempts: %v", m.topic, attempts, err)
		c.deadLetter(m)
	}

	// Commit on success, or after dead-lettering so a poison message
	// cannot loop forever.
	if err == nil || c.dlq != nil {
		if reader := c.readers[m.topic]; reader != nil {
			_ = c.commitWithRetry(reader, m.msg, 3)
		}
	}
	observeHandleLatency(m.topic, time.Since(start))
}

// handleWithRetry runs the hook/handler cycle with jittered backoff.
// A BeforeHandle error aborts without retrying.
func (c *Consumer) handleWithRetry(handler MessageHandler, m *inbound) (int, error) {
	attempts := 0
	for {
		attempts++

		hctx, hmsg, hdata, err := c.hook.BeforeHandle(context.Background(), m.topic, m.msg, m.data)
		if err != nil {
			return attempts, err
		}

		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, m.topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax {
			return attempts, err
		}

		c.hook.OnError(hctx, m.topic, hmsg, hdata, err)
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.quit:
			return attempts, err
		}
	}
}

func (c *Consumer) deadLetter(m *inbound) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   m.data,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(m.topic)}},
	})
	if err != nil {
		log.Printf("kafka consumer: dlq write %s: %v", c.cfg.DLQTopic, err)
	}
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, msg kafka.Message, tries int) error {
	if tries <= 0 {
		tries = 1
	}
	var err error
	for attempt := 1; attempt <= tries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	log.Printf("kafka consumer: commit failed after %d attempts: %v", tries, err)
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()

	byPart, ok := c.locks[topic]
	if !ok {
		byPart = make(map[int]*sync.Mutex)
		c.locks[topic] = byPart
	}
	lock, ok := byPart[partition]
	if !ok {
		lock = &sync.Mutex{}
		byPart[partition] = lock
	}
	return lock
}

func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	exp := lo * time.Duration(1<<uint(attempt-1))
	if exp > hi {
		exp = hi
	}
	// up to 50% jitter
	jitter := time.Duration(rand.Int63n(int64(exp) / 2))
	return exp - jitter
}
