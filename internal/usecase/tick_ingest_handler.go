package usecase

import (
	"context"
	"encoding/json"
	"time"

	"PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
	"PivotScan/internal/services/tickdata"
	pkgkafka "PivotScan/pkg/kafka"
)

// TickIngestHandler drains the tick topic: each message is persisted
// to storage and fed to the in-memory aggregator that backs the fine
// detection path.
type TickIngestHandler struct {
	topic   string
	storage domrepo.TickStorage
	agg     *tickdata.Aggregator
	metrics domrepo.Metrics
}

func NewTickIngestHandler(topic string, storage domrepo.TickStorage, agg *tickdata.Aggregator, metrics domrepo.Metrics) *TickIngestHandler {
	return &TickIngestHandler{topic: topic, storage: storage, agg: agg, metrics: metrics}
}

func (h *TickIngestHandler) Topic() string { return h.topic }

// Handle decodes one {s, p, v, t} message. t is in milliseconds, but
// legacy producers send seconds, so small values are read as seconds.
func (h *TickIngestHandler) Handle(ctx context.Context, b []byte) error {
	var msg struct {
		S string  `json:"s"`
		P float64 `json:"p"`
		V float64 `json:"v"`
		T int64   `json:"t"`
	}
	if err := json.Unmarshal(b, &msg); err != nil {
		h.metrics.RecordError("tick_decode")
		return err
	}
	ts := time.UnixMilli(msg.T)
	if msg.T < 1e11 { // seconds
		ts = time.Unix(msg.T, 0)
	}
	// rough event-time to arrival latency
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	tick := models.Tick{
		Instrument: msg.S,
		Timestamp:  ts,
		Price:      msg.P,
		Volume:     msg.V,
	}

	began := time.Now()
	err := h.storage.Store(ctx, &tick)
	h.metrics.RecordLatency("tick_store_seconds", time.Since(began).Seconds())
	if err != nil {
		h.metrics.RecordError("tick_store")
		return err
	}

	if h.agg != nil {
		h.agg.Ingest([]models.Tick{tick})
	}
	h.metrics.RecordTickIngested("kafka", msg.S)
	return nil
}

var _ pkgkafka.MessageHandler = (*TickIngestHandler)(nil)
