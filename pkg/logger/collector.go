package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// Publisher ships flushed summaries to a topic. The kafka producer
// satisfies this directly.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectorConfig struct {
	FlushInterval time.Duration // periodic flush cadence, default 30s
	MaxUnique     int           // distinct records that force an early flush, default 100
	Topic         string
	Publisher     Publisher
}

// Summary is one aggregated warn/error record. Fields hold the most
// recent occurrence; Count covers all of them since the last flush.
type Summary struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Collector folds repeated records into per-callsite summaries and
// flushes them through the publisher. Records are keyed by level,
// message, and caller, not by field values, so a reconnect storm
// collapses into a single counted entry.
type Collector struct {
	cfg     *CollectorConfig
	mu      sync.Mutex
	entries map[uint64]*Summary
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCollector(cfg *CollectorConfig) *Collector {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MaxUnique <= 0 {
		cfg.MaxUnique = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		cfg:     cfg,
		entries: make(map[uint64]*Summary),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *Collector) Record(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := fingerprint(level, message, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.Fields = fields
		e.LastSeen = now
	} else {
		c.entries[key] = &Summary{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.cfg.MaxUnique {
		c.flushLocked()
	}
}

func fingerprint(level, message, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", level, message, caller)
	return h.Sum64()
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-ctx.Done():
			// final flush on shutdown
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *Collector) flushLocked() {
	if len(c.entries) == 0 || c.cfg.Publisher == nil {
		return
	}

	batch := make([]Summary, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*Summary)

	// Publish outside the lock path; a slow broker must not stall logging.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, nil, batch); err != nil {
			log.Printf("log summary publish failed: %v", err)
		}
	}()
}

// Close flushes pending summaries and stops the collector.
func (c *Collector) Close() {
	c.cancel()
	<-c.done
}
