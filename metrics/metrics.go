// Package metrics exposes the Prometheus collectors shared by the bus, the
// kernel and the cognitive loop. All methods are safe to call on a nil
// *Metrics so instrumentation stays optional.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rare"

// Metrics bundles the collectors used across the kernel.
type Metrics struct {
	decisions          *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	stageFailures      *prometheus.CounterVec
	lifecycleActions   *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	busEvents          *prometheus.CounterVec
	busHandlerFailures *prometheus.CounterVec
}

var (
	defaultOnce   sync.Once
	sharedMetrics *Metrics
)

// Default returns the package-level instance registered with the global
// Prometheus registry. Collectors are created once so repeated construction
// of kernels in one process does not panic on duplicate registration.
func Default() *Metrics {
	defaultOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered are reused; any other registration
// error panics, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		decisions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cognitive",
			Name:      "decisions_total",
			Help:      "Decisions produced by the cognitive loop.",
		}, []string{"agent", "priority"})),
		stageDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cognitive",
			Name:      "stage_duration_seconds",
			Help:      "Duration spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"})),
		stageFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cognitive",
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that fell back to their default value.",
		}, []string{"stage", "kind"})),
		lifecycleActions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kernel",
			Name:      "lifecycle_actions_total",
			Help:      "Engine lifecycle actions executed by the kernel.",
		}, []string{"engine", "action", "result"})),
		notifications: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kernel",
			Name:      "notifications_total",
			Help:      "Notifications requested through agent lifecycles.",
		}, []string{"priority"})),
		busEvents: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Events emitted on the bus.",
		}, []string{"event_type"})),
		busHandlerFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_failures_total",
			Help:      "Handlers that returned an error or panicked.",
		}, []string{"event_type"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// IncDecision counts a decision routed to agent at priority.
func (m *Metrics) IncDecision(agent, priority string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(agent, priority).Inc()
}

// ObserveStage records the time spent in a stage with the provided status label.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncStageFailure increments the failure counter for the given stage and error kind.
func (m *Metrics) IncStageFailure(stage, kind string) {
	if m == nil || m.stageFailures == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, kind).Inc()
}

// IncLifecycleAction counts a lifecycle action with result "ok" or "error".
func (m *Metrics) IncLifecycleAction(engine, action, result string) {
	if m == nil || m.lifecycleActions == nil {
		return
	}
	m.lifecycleActions.WithLabelValues(engine, action, result).Inc()
}

// IncNotification counts an emitted agent notification.
func (m *Metrics) IncNotification(priority string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(priority).Inc()
}

// IncBusEvent counts an emitted event.
func (m *Metrics) IncBusEvent(eventType string) {
	if m == nil || m.busEvents == nil {
		return
	}
	m.busEvents.WithLabelValues(eventType).Inc()
}

// IncHandlerFailure counts a failed handler invocation.
func (m *Metrics) IncHandlerFailure(eventType string) {
	if m == nil || m.busHandlerFailures == nil {
		return
	}
	m.busHandlerFailures.WithLabelValues(eventType).Inc()
}
