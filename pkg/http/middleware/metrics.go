package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "PivotScan/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pivotscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served, by route template",
		},
		[]string{"route", "method", "status"},
	)

	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pivotscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Wall time spent serving a request",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route", "method", "status", "class"},
	)

	reqInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pivotscan",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served",
		},
		[]string{"route", "method"},
	)

	respSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pivotscan",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Bytes written per response",
			Buckets:   []float64{200, 500, 1_000, 2_000, 5_000, 10_000, 50_000, 100_000, 500_000, 1_000_000},
		},
		[]string{"route", "method", "status", "class"},
	)

	regOnce sync.Once
)

// Metrics records request metrics with low cardinality labels. The echo
// route template is used as the route label so raw URLs never become labels.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	regOnce.Do(func() {
		prometheus.MustRegister(reqCount, reqDuration, reqInFlight, respSize)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeLabel(c)
			method := c.Request().Method

			reqInFlight.WithLabelValues(route, method).Inc()
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			code := strconv.Itoa(status)
			class := statusClass(status)
			dur := time.Since(start)
			written := int(c.Response().Size)

			reqCount.WithLabelValues(route, method, code).Inc()
			reqDuration.WithLabelValues(route, method, code, class).Observe(dur.Seconds())
			respSize.WithLabelValues(route, method, code, class).Observe(float64(written))
			reqInFlight.WithLabelValues(route, method).Dec()

			// Structured logging: errors and slow requests
			if l != nil {
				if status >= 500 {
					l.Error("http request failed",
						applogger.String("route", route),
						applogger.String("method", method),
						applogger.String("status", code),
						applogger.Duration("duration_ms", dur),
						applogger.Int("bytes", written),
					)
					return err
				}
				if slowThreshold > 0 && dur >= slowThreshold {
					l.Warn("http request slow",
						applogger.String("route", route),
						applogger.String("method", method),
						applogger.String("status", code),
						applogger.Duration("duration_ms", dur),
						applogger.Int("bytes", written),
					)
				}
			}
			return err
		}
	}
}

// routeLabel prefers the matched route template over the raw URL path.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
