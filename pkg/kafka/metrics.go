package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Producer and consumer share one set of collectors, registered on
// first use so importing the package alone adds nothing to the
// default registry.
var (
	metricsOnce sync.Once

	producerMessages *prometheus.CounterVec
	producerErrors   *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec

	consumerQueueDepth    *prometheus.GaugeVec
	consumerQueueFullness *prometheus.GaugeVec
	consumerHandleSeconds *prometheus.HistogramVec
	consumerLagSeconds    *prometheus.HistogramVec
)

func initKafkaMetrics() {
	metricsOnce.Do(func() {
		producerMessages = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotscan_kafka_producer_messages_total",
				Help: "Messages published per topic and result",
			},
			[]string{"topic", "compression", "result"},
		)
		producerErrors = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotscan_kafka_producer_errors_total",
				Help: "Publish calls that returned an error",
			},
			[]string{"topic"},
		)
		producerBytes = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pivotscan_kafka_producer_bytes_total",
				Help: "Payload bytes handed to the writer, before compression",
			},
			[]string{"topic", "compression"},
		)
		producerLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pivotscan_kafka_producer_publish_seconds",
				Help:    "Time spent in WriteMessages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)

		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pivotscan_kafka_consumer_queue_depth",
				Help: "Messages waiting in the worker inbox",
			},
			[]string{"topic"},
		)
		consumerQueueFullness = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pivotscan_kafka_consumer_queue_fullness",
				Help: "Worker inbox fill ratio observed under backpressure",
			},
			[]string{"topic"},
		)
		consumerHandleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pivotscan_kafka_consumer_handle_seconds",
				Help:    "Handler time per message, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
		consumerLagSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pivotscan_kafka_consumer_lag_seconds",
				Help:    "Age of a message when handling starts",
				Buckets: []float64{.005, .025, .1, .5, 1, 5, 30, 120, 600},
			},
			[]string{"topic"},
		)
	})
}

func observeProduce(topic, compression string, bytes int64, count int, dur time.Duration, err error) {
	if producerMessages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		producerErrors.WithLabelValues(topic).Inc()
	}
	producerMessages.WithLabelValues(topic, compression, result).Add(float64(count))
	producerBytes.WithLabelValues(topic, compression).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeQueueDepth(topic string, depth, capacity int) {
	if consumerQueueDepth == nil || capacity <= 0 {
		return
	}
	consumerQueueDepth.WithLabelValues(topic).Set(float64(depth))
}

func observeQueueFullness(topic string, fullness float64) {
	if consumerQueueFullness == nil {
		return
	}
	consumerQueueFullness.WithLabelValues(topic).Set(fullness)
}

func observeHandleLatency(topic string, dur time.Duration) {
	if consumerHandleSeconds == nil {
		return
	}
	consumerHandleSeconds.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeConsumerLag(topic string, lag time.Duration) {
	if consumerLagSeconds == nil {
		return
	}
	consumerLagSeconds.WithLabelValues(topic).Observe(lag.Seconds())
}
