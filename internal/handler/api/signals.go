package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	models "PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
	icache "PivotScan/internal/service/cache"
	"PivotScan/internal/service/metrics"
	"PivotScan/internal/service/ratelimit"
	"PivotScan/internal/usecase"
	xhttp "PivotScan/pkg/http"
	applogger "PivotScan/pkg/logger"
	"PivotScan/pkg/util"

	"github.com/labstack/echo/v4"
)

// Response cache TTLs per endpoint.
const (
	latestCacheTTL  = 5 * time.Second
	bucketsCacheTTL = 3 * time.Second
)

// SignalsHandler serves the engine's read-side API: latest signals,
// fusion history, bucket windows, microstructure and health.
type SignalsHandler struct {
	l       *applogger.Logger
	eval    *usecase.Evaluator
	buckets *usecase.BucketQueries
	cache   icache.ResponseCache
	rl      *ratelimit.Limiter
	storage domrepo.TickStorage
	started time.Time
}

func NewSignalsHandler(l *applogger.Logger, eval *usecase.Evaluator, buckets *usecase.BucketQueries) *SignalsHandler {
	metrics.Register()
	return &SignalsHandler{
		l:       l,
		eval:    eval,
		buckets: buckets,
		rl:      ratelimit.New(),
		started: time.Now(),
	}
}

// UseResponseCache enables response caching.
func (h *SignalsHandler) UseResponseCache(c icache.ResponseCache) { h.cache = c }

// SetStorage wires the tick store into the health endpoint.
func (h *SignalsHandler) SetStorage(s domrepo.TickStorage) { h.storage = s }

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/signals/latest", h.Latest)
	g.GET("/signals/history", h.History)
	g.GET("/buckets", h.Buckets)
	g.GET("/microstructure", h.Microstructure)
	g.GET("/ticks", h.Ticks)
	e.GET("/health", h.Health)
}

func (h *SignalsHandler) Latest(c echo.Context) error {
	start := time.Now()
	endpoint := "signals_latest"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.LatestSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":latest", 10, 5) {
		h.warn("signals.latest rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}

	cacheKey := "signals:latest:" + req.Instrument
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	if req.Instrument == "" {
		return h.respond(c, endpoint, cacheKey, latestCacheTTL, h.eval.LatestAll())
	}
	sig := h.eval.Latest(req.Instrument)
	if sig == nil {
		return xhttp.NotFoundResponse(c, "no signal for instrument yet")
	}
	return h.respond(c, endpoint, cacheKey, latestCacheTTL, sig)
}

func (h *SignalsHandler) History(c echo.Context) error {
	start := time.Now()
	endpoint := "signals_history"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SignalHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":history", 10, 5) {
		h.warn("signals.history rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}

	return xhttp.SuccessResponse(c, h.eval.History(req.Instrument))
}

func (h *SignalsHandler) Buckets(c echo.Context) error {
	start := time.Now()
	endpoint := "buckets"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.BucketsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":buckets", 5, 2) {
		h.warn("signals.buckets rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}

	cacheKey := "buckets:" + req.Instrument + ":" + strconv.Itoa(req.N)
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(http.StatusOK, b)
	}
	return h.respond(c, endpoint, cacheKey, bucketsCacheTTL, h.buckets.Window(req.Instrument, req.N))
}

func (h *SignalsHandler) Microstructure(c echo.Context) error {
	start := time.Now()
	endpoint := "microstructure"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.MicrostructureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":micro", 5, 2) {
		h.warn("signals.microstructure rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}

	snap, err := h.buckets.Microstructure(req.Instrument, time.Duration(req.LookbackSec)*time.Second, time.Now())
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.err("signals.microstructure error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, snap)
}

// Ticks serves raw persisted ticks for a time range, newest first.
func (h *SignalsHandler) Ticks(c echo.Context) error {
	start := time.Now()
	endpoint := "ticks"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.TicksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":ticks", 5, 2) {
		h.warn("signals.ticks rate_limited", applogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c, "rate limited")
	}
	if h.storage == nil {
		return xhttp.UnavailableResponse(c, "tick storage not configured")
	}

	to := util.ParseTimeDefault(req.To, time.Now())
	from := util.ParseTimeDefault(req.From, to.Add(-15*time.Minute))
	from, to = util.AlignFromTo(from, to, "1s")
	if !from.Before(to) {
		return xhttp.BadRequestResponse(c, "from must precede to")
	}

	ticks, err := h.storage.Query(c.Request().Context(), req.Instrument, from, to, req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.err("signals.ticks query error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, ticks)
}

// Health reports storage reachability and evaluator coverage. Storage
// being down degrades the report, it does not 500.
func (h *SignalsHandler) Health(c echo.Context) error {
	report := map[string]interface{}{
		"status":      "ok",
		"uptime_sec":  int(time.Since(h.started).Seconds()),
		"instruments": h.eval.Instruments(),
	}
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Health(ctx); err != nil {
			report["status"] = "degraded"
			report["storage_error"] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, report)
}

// respond marshals once, caches the envelope, and writes it.
func (h *SignalsHandler) respond(c echo.Context, endpoint, cacheKey string, ttl time.Duration, data interface{}) error {
	body := xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	}
	b, err := json.Marshal(body)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.err("response marshal error", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if h.cache != nil {
		if err := h.cache.Store(cacheKey, b, ttl); err != nil {
			h.warn("response cache_set_error", applogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *SignalsHandler) cached(key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.Load(key)
	if err != nil {
		h.warn("response cache_get_error", applogger.Error(err))
		return nil, false
	}
	return b, ok
}

func (h *SignalsHandler) warn(msg string, fields ...applogger.Field) {
	if h.l != nil {
		h.l.Warn(msg, fields...)
	}
}

func (h *SignalsHandler) err(msg string, fields ...applogger.Field) {
	if h.l != nil {
		h.l.Error(msg, fields...)
	}
}
