// Package metrics exposes Prometheus metrics for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector holds every metric the service exports. A nil *Collector
// records nothing.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	predictionsTotal *prometheus.CounterVec
	framesExtracted  prometheus.Histogram
	mediaUploads     *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector registers the metrics with reg. A nil reg uses a fresh
// registry.
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	c := &Collector{
		gatherer: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.predictionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions returned, by input source and label",
		},
		[]string{"source", "label"},
	)

	c.framesExtracted = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frames_extracted",
			Help:      "Frames sampled per analyzed video",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	c.mediaUploads = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_uploads_total",
			Help:      "Uploads to the media host by result",
		},
		[]string{"result"},
	)

	c.rateLimited = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"policy"},
	)

	c.logger.Debug("metrics registered", zap.String("namespace", namespace))
	return c
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) RecordPrediction(source, label string) {
	if c == nil {
		return
	}
	c.predictionsTotal.WithLabelValues(source, label).Inc()
}

func (c *Collector) RecordFrames(n int) {
	if c == nil {
		return
	}
	c.framesExtracted.Observe(float64(n))
}

func (c *Collector) RecordMediaUpload(result string) {
	if c == nil {
		return
	}
	c.mediaUploads.WithLabelValues(result).Inc()
}

func (c *Collector) RecordRateLimited(policy string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(policy).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() httprouter.Handle {
	h := promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Instrument records requests to next under the route pattern path, which
// keeps path parameters out of the label values.
func (c *Collector) Instrument(path string, next httprouter.Handle) httprouter.Handle {
	if c == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r, ps)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		c.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	}
}

// Route returns Instrument bound to path, for use with middleware.Chain.
func (c *Collector) Route(path string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return c.Instrument(path, next)
	}
}
