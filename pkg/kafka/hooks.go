package kafka

import (
    "context"
    "time"

    "github.com/segmentio/kafka-go"
)

// ConsumerHook observes each message around handler execution and may
// rewrite the context, the message, or the payload. A BeforeHandle
// error skips the handler and sends the message straight through error
// handling: OnError, the DLQ, then the offset commit.
type ConsumerHook interface {
    BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
    AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
    OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error)
}

// NoopHook is the default hook and does nothing.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
    return ctx, msg, data, nil
}

func (NoopHook) AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {}

func (NoopHook) OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {}

// ConsumerLagHook records how old each message is when a worker picks
// it up. Broker timestamps come from the producing side, so the lag
// includes both broker queueing and inbox wait.
type ConsumerLagHook struct{}

func NewConsumerLagHook() ConsumerLagHook {
    return ConsumerLagHook{}
}

func (ConsumerLagHook) BeforeHandle(ctx context.Context, topic string, msg kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
    if !msg.Time.IsZero() {
        observeConsumerLag(topic, time.Since(msg.Time))
    }
    return ctx, msg, data, nil
}

func (ConsumerLagHook) AfterHandle(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {
}

func (ConsumerLagHook) OnError(ctx context.Context, topic string, msg kafka.Message, data []byte, err error) {
}
