package kernel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/rare/core"
)

func TestSchedule_RunsOnlyWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	k := New()
	var runs atomic.Int32
	task, err := k.Schedule("analysis", 5*time.Millisecond, func(context.Context) { runs.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis"}, k.Tasks())

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, runs.Load(), "not armed before Start")

	require.NoError(t, k.Start(ctx))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, k.Pause(ctx))
	paused := runs.Load()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, paused, runs.Load(), "suspended while paused")

	require.NoError(t, k.Resume(ctx))
	require.Eventually(t, func() bool { return runs.Load() > paused }, time.Second, 5*time.Millisecond)

	require.NoError(t, k.Stop(ctx))
	assert.True(t, task.Cancelled())
	assert.Empty(t, k.Tasks())
	assert.GreaterOrEqual(t, task.Runs(), 3)
}

func TestSchedule_Cancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	k := New()
	require.NoError(t, k.Start(ctx))
	defer func() { _ = k.Stop(ctx) }()

	var runs atomic.Int32
	task, err := k.Schedule("ambient", 5*time.Millisecond, func(context.Context) { runs.Add(1) })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 5*time.Millisecond)

	task.Cancel()
	task.Cancel()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
	assert.Empty(t, k.Tasks())
}

func TestSchedule_PanicDoesNotKillTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	k := New()
	var runs atomic.Int32
	_, err := k.Schedule("flaky", 5*time.Millisecond, func(context.Context) {
		if runs.Add(1) == 1 {
			panic("first run fails")
		}
	})
	require.NoError(t, err)
	require.NoError(t, k.Start(ctx))
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, k.Stop(ctx))
}

// captureLog records warnings and errors as "msg args..." lines.
type captureLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLog) Debug(string, ...any) {}
func (l *captureLog) Info(string, ...any)  {}
func (l *captureLog) Warn(msg string, args ...any) {
	l.record(msg, args)
}
func (l *captureLog) Error(msg string, args ...any) {
	l.record(msg, args)
}

func (l *captureLog) record(msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, strings.TrimSpace(msg+" "+fmt.Sprint(args...)))
}

func (l *captureLog) has(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestSchedule_PanicIsLogged(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	log := &captureLog{}
	k := New(func(o *Options) { o.Logger = log })
	task, err := k.Schedule("broken", 5*time.Millisecond, func(context.Context) { panic("boom") })
	require.NoError(t, err)
	require.NoError(t, k.Start(ctx))
	require.Eventually(t, func() bool { return task.Runs() >= 1 && log.has("panic") }, time.Second, 5*time.Millisecond)
	require.NoError(t, k.Stop(ctx))
}

func TestSchedule_PauseCancelsRunningBody(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	k := New()
	entered := make(chan struct{}, 1)
	var finished atomic.Bool
	_, err := k.Schedule("long", 5*time.Millisecond, func(ctx context.Context) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		finished.Store(true)
	})
	require.NoError(t, err)
	require.NoError(t, k.Start(ctx))

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	require.NoError(t, k.Pause(ctx))
	assert.True(t, finished.Load(), "pause waits for the body to observe cancellation")
	require.NoError(t, k.Stop(ctx))
}

func TestSchedule_SubSecondInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	k := New()
	var runs atomic.Int32
	_, err := k.Schedule("fast", 10*time.Millisecond, func(context.Context) { runs.Add(1) })
	require.NoError(t, err)
	require.NoError(t, k.Start(ctx))
	require.Eventually(t, func() bool { return runs.Load() >= 5 }, 500*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, k.Stop(ctx))
}

func TestSchedule_Validation(t *testing.T) {
	k := New()
	_, err := k.Schedule("nil", time.Second, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = k.Schedule("zero", 0, func(context.Context) {})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	require.NoError(t, k.Stop(context.Background()))
	_, err = k.Schedule("late", time.Second, func(context.Context) {})
	assert.ErrorIs(t, err, core.ErrKernelStopped)
}
