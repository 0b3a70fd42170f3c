package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer wraps a kafka-go writer. With HashByKey set (the default),
// all messages sharing a key stay on one partition, which keeps
// per-instrument tick streams ordered.
type Producer struct {
	w    *kafka.Writer
	comp string
}

// Message is one keyed payload for PublishBatch.
type Message struct {
	Key   []byte
	Value interface{}
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	conf := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 250 * time.Millisecond,
		HashByKey:    true,
	}
	for _, opt := range opts {
		opt(conf)
	}
	if len(conf.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: no brokers configured")
	}

	initKafkaMetrics()
	return &Producer{w: newWriter(conf), comp: conf.Compression}, nil
}

func newWriter(conf *ProducerConfig) *kafka.Writer {
	var bal kafka.Balancer = &kafka.LeastBytes{}
	if conf.HashByKey {
		bal = &kafka.Hash{}
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(conf.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(conf.RequiredAcks),
		Compression:  codecFor(conf.Compression),
		MaxAttempts:  conf.MaxAttempts,
		WriteTimeout: conf.WriteTimeout,
		ReadTimeout:  conf.ReadTimeout,
		BatchSize:    conf.BatchSize,
		BatchBytes:   int64(conf.BatchBytes),
		BatchTimeout: conf.BatchTimeout,
		Async:        conf.Async,
	}
}

// Publish sends one message to the topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	v, err := encodeValue(value)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: v,
		Time:  time.Now(),
	})
	observeProduce(topic, p.comp, int64(len(v)), 1, time.Since(start), err)
	return err
}

// PublishBatch sends the messages in one writer call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	batch := make([]kafka.Message, 0, len(messages))
	var size int64
	for _, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		batch = append(batch, kafka.Message{
			Topic: topic,
			Key:   m.Key,
			Value: v,
			Time:  time.Now(),
		})
		size += int64(len(v))
	}

	start := time.Now()
	err := p.w.WriteMessages(ctx, batch...)
	observeProduce(topic, p.comp, size, len(messages), time.Since(start), err)
	return err
}

func (p *Producer) Close() error {
	if p.w != nil {
		return p.w.Close()
	}
	return nil
}

// encodeValue passes bytes and strings through and marshals the rest
// as JSON.
func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func codecFor(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}
