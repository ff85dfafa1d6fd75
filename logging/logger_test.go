package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*KernelLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func TestKernelLogger_AttributesAndLevels(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.WithComponent("kernel").WithEngine("ai").Info("engine registered", "count", 2)
	l.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "engine registered", entry["msg"])
	assert.Equal(t, "kernel", entry["component"])
	assert.Equal(t, "ai", entry["engine_id"])
	assert.EqualValues(t, 2, entry["count"])
}

func TestKernelLogger_WithIsCopyOnWrite(t *testing.T) {
	base, buf := newBufferLogger(LogLevelDebug)
	_ = base.WithContext("k", "v")
	base.Info("plain")
	assert.NotContains(t, buf.String(), `"k":"v"`)
}

func TestKernelLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.LogLifecycleAction("vault", "start", time.Millisecond, nil)
	l.LogLifecycleAction("vault", "pause", time.Millisecond, errors.New("unsupported"))
	l.LogStage("reason", time.Millisecond, errors.New("boom"))
	l.LogDecision("builder", "build_app", "high", false)

	out := buf.String()
	assert.Contains(t, out, "Lifecycle action completed")
	assert.Contains(t, out, "Lifecycle action failed")
	assert.Contains(t, out, "Stage degraded")
	assert.Contains(t, out, `"agent":"builder"`)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("nothing", "k", "v")
}

func TestForEngineAndSession(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	ForSession(ForEngine(l, "vault"), "s-1").Info("scoped")
	l.Info("unscoped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"engine_id":"vault"`)
	assert.Contains(t, lines[0], `"session_id":"s-1"`)
	assert.NotContains(t, lines[1], "engine_id")

	sbuf := &bytes.Buffer{}
	ForEngine(NewSlogAdapter(slog.New(slog.NewTextHandler(sbuf, nil))), "ai").Info("adapted")
	assert.Contains(t, sbuf.String(), "engine_id=ai")

	assert.Equal(t, Logger(NoOpLogger{}), ForEngine(NoOpLogger{}, "ai"))
	assert.Same(t, l, ForSession(l, ""))
}

func TestLogErrorWithStack(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	LogErrorWithStack(l, errors.New("boom"), "handler panicked", "event_type", "x")
	out := buf.String()
	assert.Contains(t, out, `"stack_trace":"goroutine`)
	assert.Contains(t, out, `"error":"boom"`)

	sbuf := &bytes.Buffer{}
	LogErrorWithStack(NewSlogAdapter(slog.New(slog.NewJSONHandler(sbuf, nil))), errors.New("boom"), "handler panicked")
	assert.Contains(t, sbuf.String(), `"error":"boom"`)
	assert.NotContains(t, sbuf.String(), "stack_trace")
}

func TestStartTimer(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	done := l.StartTimer("shutdown")
	done()
	assert.Contains(t, buf.String(), `"operation":"shutdown"`)
	assert.Contains(t, buf.String(), `"duration"`)
}
