package repository

import (
	"context"

	"PivotScan/internal/domain/models"
	"PivotScan/internal/domain/repository"
	pkgkafka "PivotScan/pkg/kafka"
)

// KafkaSignalSink implements SignalSink for Kafka.
type KafkaSignalSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSignalSink creates a Kafka signal sink.
func NewKafkaSignalSink(producer *pkgkafka.Producer, topic string) repository.SignalSink {
	return &KafkaSignalSink{producer: producer, topic: topic}
}

func (p *KafkaSignalSink) Publish(ctx context.Context, sig *models.FusedSignal) error {
	return p.producer.Publish(ctx, p.topic, []byte(sig.Instrument), map[string]interface{}{
		"instrument":      sig.Instrument,
		"t":               sig.Timestamp.UnixMilli(),
		"peak":            sig.Peak.Signal,
		"peak_strength":   sig.Peak.Strength,
		"valley":          sig.Valley.Signal,
		"valley_strength": sig.Valley.Strength,
		"confidence":      string(sig.Confidence),
		"fused":           sig.Fused,
		"price":           sig.Coarse.CurrentPrice,
		"price_position":  string(sig.Coarse.PricePosition),
		"quality":         string(sig.Fine.Quality),
	})
}

func (p *KafkaSignalSink) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
