package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
	icache "PivotScan/internal/service/cache"
	"PivotScan/internal/services/fusion"
	"PivotScan/internal/services/tickdata"
	"PivotScan/internal/usecase"

	"github.com/labstack/echo/v4"
)

type stubMarket struct {
	bars []float64
}

func (s *stubMarket) FetchTicks(ctx context.Context, instrument string, start, end time.Time) ([]models.Tick, error) {
	return nil, nil
}

func (s *stubMarket) FetchBars(ctx context.Context, instrument string, count int, tf domrepo.Timeframe, field domrepo.BarField) ([]float64, error) {
	return s.bars, nil
}

type firingDetector struct{}

func (firingDetector) Detect(in models.DetectionInput) models.TimeframeResult {
	return models.TimeframeResult{
		Peak:         models.Detection{Signal: true, Strength: 0.9},
		CurrentPrice: in.CurrentPrice,
	}
}

type stubStorage struct {
	healthErr  error
	ticks      []*models.Tick
	queryFrom  time.Time
	queryTo    time.Time
	queryLimit int
}

func (s *stubStorage) Init(ctx context.Context) error                          { return nil }
func (s *stubStorage) Store(ctx context.Context, t *models.Tick) error         { return nil }
func (s *stubStorage) StoreBatch(ctx context.Context, ts []*models.Tick) error { return nil }
func (s *stubStorage) Query(ctx context.Context, instrument string, from, to time.Time, limit int) ([]*models.Tick, error) {
	s.queryFrom, s.queryTo, s.queryLimit = from, to, limit
	return s.ticks, nil
}
func (s *stubStorage) Health(ctx context.Context) error { return s.healthErr }
func (s *stubStorage) Close() error                     { return nil }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestHandler(t *testing.T) (*SignalsHandler, *usecase.Evaluator, *tickdata.Aggregator) {
	t.Helper()
	bars := make([]float64, 50)
	for i := range bars {
		bars[i] = 100 + float64(i)
	}
	fuser, err := fusion.New(fusion.DefaultConfig())
	if err != nil {
		t.Fatalf("fuser: %v", err)
	}
	agg, err := tickdata.NewAggregator(3*time.Second, 500, 10000)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	eval := usecase.NewEvaluator(
		&stubMarket{bars: bars}, agg, nil,
		firingDetector{}, nil, fuser, nil, nil,
		[]string{"AAPL"},
	)
	return NewSignalsHandler(nil, eval, usecase.NewBucketQueries(agg)), eval, agg
}

func get(t *testing.T, h *SignalsHandler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestLatestReturnsSignal(t *testing.T) {
	h, eval, _ := newTestHandler(t)
	eval.EvaluateAll(context.Background())

	rec, env := get(t, h, "/api/v1/signals/latest?instrument=AAPL")
	if rec.Code != http.StatusOK {
		t.Fatalf("http status = %d, want 200", rec.Code)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("envelope status = %d, want 200", env.Status)
	}

	var sig models.FusedSignal
	if err := json.Unmarshal(env.Data, &sig); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if sig.Instrument != "AAPL" || !sig.Peak.Signal {
		t.Errorf("signal = %+v, want fired AAPL peak", sig)
	}
}

func TestLatestUnknownInstrument(t *testing.T) {
	h, eval, _ := newTestHandler(t)
	eval.EvaluateAll(context.Background())

	_, env := get(t, h, "/api/v1/signals/latest?instrument=TSLA")
	if env.Status != http.StatusNotFound {
		t.Errorf("envelope status = %d, want 404 for an unevaluated instrument", env.Status)
	}
}

func TestLatestAllWithoutFilter(t *testing.T) {
	h, eval, _ := newTestHandler(t)
	eval.EvaluateAll(context.Background())

	_, env := get(t, h, "/api/v1/signals/latest")
	if env.Status != http.StatusOK {
		t.Fatalf("envelope status = %d, want 200", env.Status)
	}
	var sigs []models.FusedSignal
	if err := json.Unmarshal(env.Data, &sigs); err != nil {
		t.Fatalf("decode signals: %v", err)
	}
	if len(sigs) != 1 {
		t.Errorf("got %d signals, want 1", len(sigs))
	}
}

func TestLatestServedFromCache(t *testing.T) {
	h, eval, _ := newTestHandler(t)
	h.UseResponseCache(icache.NewTTLCache())
	eval.EvaluateAll(context.Background())

	_, first := get(t, h, "/api/v1/signals/latest?instrument=AAPL")

	// A new cycle changes the timestamp, but the cached body must win
	// inside the TTL.
	time.Sleep(5 * time.Millisecond)
	eval.EvaluateAll(context.Background())
	_, second := get(t, h, "/api/v1/signals/latest?instrument=AAPL")

	if string(first.Data) != string(second.Data) {
		t.Error("second read within the TTL must be served from cache")
	}
}

func TestBucketsDefaultsAndWindow(t *testing.T) {
	h, _, agg := newTestHandler(t)

	now := time.Now()
	ticks := make([]models.Tick, 0, 10)
	for i := 0; i < 10; i++ {
		ticks = append(ticks, models.Tick{
			Instrument: "AAPL",
			Timestamp:  now.Add(time.Duration(i-10) * 3 * time.Second),
			Price:      100 + float64(i),
			Volume:     5,
		})
	}
	agg.Ingest(ticks)

	_, env := get(t, h, "/api/v1/buckets?instrument=AAPL")
	if env.Status != http.StatusOK {
		t.Fatalf("envelope status = %d, want 200", env.Status)
	}
	var w models.BucketWindow
	if err := json.Unmarshal(env.Data, &w); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if len(w.Close) != 10 {
		t.Errorf("window has %d buckets, want 10", len(w.Close))
	}
}

func TestBucketsRequiresInstrument(t *testing.T) {
	h, _, _ := newTestHandler(t)

	_, env := get(t, h, "/api/v1/buckets")
	if env.Status != http.StatusBadRequest {
		t.Errorf("envelope status = %d, want 400 without instrument", env.Status)
	}
}

func TestMicrostructureLookbackValidation(t *testing.T) {
	h, _, _ := newTestHandler(t)

	_, env := get(t, h, "/api/v1/microstructure?instrument=AAPL&lookback_sec=5")
	if env.Status != http.StatusBadRequest {
		t.Errorf("envelope status = %d, want 400 for lookback below the floor", env.Status)
	}
}

func TestTicksQueriesStorageRange(t *testing.T) {
	h, _, _ := newTestHandler(t)
	store := &stubStorage{ticks: []*models.Tick{
		{Instrument: "AAPL", Timestamp: time.Unix(1755943100, 0), Price: 101.5, Volume: 3},
	}}
	h.SetStorage(store)

	from := time.Unix(1755942600, 0).UTC()
	to := time.Unix(1755943200, 0).UTC()
	target := fmt.Sprintf("/api/v1/ticks?instrument=AAPL&from=%s&to=%d", from.Format(time.RFC3339), to.Unix())

	_, env := get(t, h, target)
	if env.Status != http.StatusOK {
		t.Fatalf("envelope status = %d, want 200", env.Status)
	}
	var ticks []models.Tick
	if err := json.Unmarshal(env.Data, &ticks); err != nil {
		t.Fatalf("decode ticks: %v", err)
	}
	if len(ticks) != 1 || ticks[0].Price != 101.5 {
		t.Errorf("ticks = %+v, want the stored tick back", ticks)
	}
	if store.queryLimit != 500 {
		t.Errorf("limit = %d, want default 500", store.queryLimit)
	}
	if !store.queryFrom.Equal(from) || !store.queryTo.Equal(to) {
		t.Errorf("range = [%v, %v], want [%v, %v]", store.queryFrom, store.queryTo, from, to)
	}
}

func TestTicksRejectsInvertedRange(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.SetStorage(&stubStorage{})

	_, env := get(t, h, "/api/v1/ticks?instrument=AAPL&from=1700000300&to=1700000100")
	if env.Status != http.StatusBadRequest {
		t.Errorf("envelope status = %d, want 400 for an inverted range", env.Status)
	}
}

func TestTicksWithoutStorage(t *testing.T) {
	h, _, _ := newTestHandler(t)

	_, env := get(t, h, "/api/v1/ticks?instrument=AAPL")
	if env.Status != http.StatusServiceUnavailable {
		t.Errorf("envelope status = %d, want 503 without storage wired", env.Status)
	}
}

func TestHealthDegradesOnStorageError(t *testing.T) {
	h, _, _ := newTestHandler(t)

	_, env := get(t, h, "/health")
	var report map[string]interface{}
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report["status"] != "ok" {
		t.Errorf("status = %v, want ok without storage wired", report["status"])
	}

	h.SetStorage(&stubStorage{healthErr: fmt.Errorf("connection refused")})
	_, env = get(t, h, "/health")
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report["status"] != "degraded" {
		t.Errorf("status = %v, want degraded when storage is down", report["status"])
	}
}
