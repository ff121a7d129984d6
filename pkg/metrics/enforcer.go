package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var enforceDur = &Metric{
	ID:          "enforceDur",
	Name:        "enforce_dur_ms",
	Description: "Full enforcement pass latency in milliseconds, partitioned by connection type and outcome.",
	Type:        "histogram_vec",
	Args:        []string{"connection_type", "outcome"},
}

var routerCmdDur = &Metric{
	ID:          "routerCmdDur",
	Name:        "router_cmd_dur_ms",
	Description: "RouterOS command round-trip latency in milliseconds, partitioned by command path.",
	Type:        "histogram_vec",
	Args:        []string{"path"},
}

var schedulerRuns = &Metric{
	ID:          "schedulerRuns",
	Name:        "scheduler_runs_total",
	Description: "Scheduler cycles, partitioned by outcome (ok, skipped, error).",
	Type:        "counter_vec",
	Args:        []string{"outcome"},
}

var expiredProcessed = &Metric{
	ID:          "expiredProcessed",
	Name:        "expired_processed_total",
	Description: "Expired subscriptions handled by the scheduler, partitioned by outcome.",
	Type:        "counter_vec",
	Args:        []string{"outcome"},
}

var deviceErrors = &Metric{
	ID:          "deviceErrors",
	Name:        "device_errors_total",
	Description: "Router device failures, partitioned by operation.",
	Type:        "counter_vec",
	Args:        []string{"op"},
}

// Enforcer is the registry of domain metrics for the enforcement core.
type Enforcer struct {
	EnforceDur       *prometheus.HistogramVec
	RouterCmdDur     *prometheus.HistogramVec
	SchedulerRuns    *prometheus.CounterVec
	ExpiredProcessed *prometheus.CounterVec
	DeviceErrors     *prometheus.CounterVec
}

// NewEnforcer registers the domain metrics under subsystem and returns the
// typed handles. Registration conflicts are ignored so tests may construct
// more than one instance.
func NewEnforcer(subsystem string) *Enforcer {
	e := &Enforcer{}
	for _, def := range []*Metric{enforceDur, routerCmdDur, schedulerRuns, expiredProcessed, deviceErrors} {
		metric := NewMetric(def, subsystem)
		if err := prometheus.Register(metric); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				metric = are.ExistingCollector
			}
		}
		switch def {
		case enforceDur:
			e.EnforceDur = metric.(*prometheus.HistogramVec)
		case routerCmdDur:
			e.RouterCmdDur = metric.(*prometheus.HistogramVec)
		case schedulerRuns:
			e.SchedulerRuns = metric.(*prometheus.CounterVec)
		case expiredProcessed:
			e.ExpiredProcessed = metric.(*prometheus.CounterVec)
		case deviceErrors:
			e.DeviceErrors = metric.(*prometheus.CounterVec)
		}
		def.MetricCollector = metric
	}
	return e
}
