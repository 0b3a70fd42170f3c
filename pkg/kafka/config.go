package kafka

import "time"

// ProducerOption adjusts producer construction.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer settings. Zero values fall back to the
// defaults in NewProducer.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

// WithBrokers sets the broker list.
func WithBrokers(addrs []string) ProducerOption {
	return func(pc *ProducerConfig) { pc.Brokers = addrs }
}

// WithCompression picks the codec: gzip, snappy, lz4, or zstd.
func WithCompression(codec string) ProducerOption {
	return func(pc *ProducerConfig) {
		if codec != "" {
			pc.Compression = codec
		}
	}
}

// WithRequiredAcks sets the acknowledgement level: -1 all, 1 leader,
// 0 none.
func WithRequiredAcks(acks int) ProducerOption {
	return func(pc *ProducerConfig) { pc.RequiredAcks = acks }
}

// WithMaxAttempts bounds writer retries.
func WithMaxAttempts(n int) ProducerOption {
	return func(pc *ProducerConfig) {
		if n > 0 {
			pc.MaxAttempts = n
		}
	}
}

// WithBatchSize sets messages per batch.
func WithBatchSize(n int) ProducerOption {
	return func(pc *ProducerConfig) {
		if n > 0 {
			pc.BatchSize = n
		}
	}
}

// WithBatchTimeout sets how long a partial batch may linger.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(pc *ProducerConfig) {
		if d > 0 {
			pc.BatchTimeout = d
		}
	}
}

// WithBatchBytes caps aggregate batch size in bytes.
func WithBatchBytes(n int) ProducerOption {
	return func(pc *ProducerConfig) {
		if n > 0 {
			pc.BatchBytes = n
		}
	}
}

// WithTimeouts sets writer write and read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(pc *ProducerConfig) {
		if write > 0 {
			pc.WriteTimeout = write
		}
		if read > 0 {
			pc.ReadTimeout = read
		}
	}
}

// WithAsync toggles fire-and-forget writes.
func WithAsync(async bool) ProducerOption {
	return func(pc *ProducerConfig) { pc.Async = async }
}

// WithHashByKey routes messages by key hash so one instrument always
// lands on one partition and stays ordered.
func WithHashByKey(hash bool) ProducerOption {
	return func(pc *ProducerConfig) { pc.HashByKey = hash }
}

// ConsumerOption adjusts consumer construction.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer settings. Zero values fall back to the
// defaults in NewConsumer.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
}

// WithConsumerBrokers sets the broker list.
func WithConsumerBrokers(addrs []string) ConsumerOption {
	return func(cc *ConsumerConfig) { cc.Brokers = addrs }
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(group string) ConsumerOption {
	return func(cc *ConsumerConfig) {
		if group != "" {
			cc.GroupID = group
		}
	}
}

// WithConsumerWorkers sets the handler pool size.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(cc *ConsumerConfig) {
		if n > 0 {
			cc.WorkerCount = n
		}
	}
}

// WithConsumerBufferSize sets the inbox channel capacity.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(cc *ConsumerConfig) {
		if n > 0 {
			cc.BufferSize = n
		}
	}
}

// WithConsumerRetry configures handler retries and the backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(cc *ConsumerConfig) {
		if max > 0 {
			cc.RetryMax = max
		}
		if backoffMin > 0 {
			cc.BackoffMin = backoffMin
		}
		if backoffMax > 0 {
			cc.BackoffMax = backoffMax
		}
	}
}

// WithConsumerDLQ sets the dead-letter topic. Empty disables the DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(cc *ConsumerConfig) { cc.DLQTopic = topic }
}

// WithConsumerFetch sets fetch min and max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(cc *ConsumerConfig) {
		if minBytes > 0 {
			cc.MinBytes = minBytes
		}
		if maxBytes > 0 {
			cc.MaxBytes = maxBytes
		}
	}
}
