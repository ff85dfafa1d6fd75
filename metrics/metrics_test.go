package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.IncDecision("builder", "high")
	second.IncDecision("builder", "high")

	assert.Equal(t, 2.0, testutil.ToFloat64(first.decisions.WithLabelValues("builder", "high")))
}

func TestMetrics_Counters(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.IncLifecycleAction("vault", "start", "ok")
	m.IncNotification("critical")
	m.IncBusEvent("user:input")
	m.IncHandlerFailure("user:input")
	m.IncStageFailure("understand", "invalid_input")
	m.ObserveStage("decide", "ok", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lifecycleActions.WithLabelValues("vault", "start", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busEvents.WithLabelValues("user:input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busHandlerFailures.WithLabelValues("user:input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("understand", "invalid_input")))
	require.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncDecision("ai", "low")
	m.ObserveStage("learn", "ok", time.Second)
	m.IncStageFailure("learn", "stage_failure")
	m.IncLifecycleAction("ai", "stop", "error")
	m.IncNotification("high")
	m.IncBusEvent("x")
	m.IncHandlerFailure("x")
}
