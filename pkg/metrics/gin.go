package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url"},
}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url"},
}

var defaultMetricPath = "/metrics"

// HTTP instruments a gin engine with request counters and latency histograms
// and exposes the scrape endpoint.
type HTTP struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec

	MetricsPath string

	// URLLabelFn controls the cardinality of the "url" label. By default the
	// matched route template is used so path params do not explode the series.
	URLLabelFn func(c *gin.Context) string
}

func NewHTTP(subsystem string) *HTTP {
	h := &HTTP{
		MetricsPath: defaultMetricPath,
		URLLabelFn: func(c *gin.Context) string {
			if p := c.FullPath(); p != "" {
				return p
			}
			return c.Request.URL.Path
		},
	}
	for _, def := range []*Metric{reqCnt, reqDur} {
		metric := NewMetric(def, subsystem)
		if err := prometheus.Register(metric); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				metric = are.ExistingCollector
			}
		}
		switch def {
		case reqCnt:
			h.reqCnt = metric.(*prometheus.CounterVec)
		case reqDur:
			h.reqDur = metric.(*prometheus.HistogramVec)
		}
		def.MetricCollector = metric
	}
	return h
}

// Use adds the middleware and the scrape endpoint to a gin engine.
func (h *HTTP) Use(e *gin.Engine) {
	e.Use(h.HandlerFunc())
	e.GET(h.MetricsPath, gin.WrapH(promhttp.Handler()))
}

// HandlerFunc defines handler function for middleware
func (h *HTTP) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == h.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := h.URLLabelFn(c)

		h.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(MillisecondsSince(start))
		h.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
	}
}
