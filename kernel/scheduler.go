package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/rare/core"
)

// TaskFunc is the body of a scheduled task. ctx is cancelled when the task is
// suspended, cancelled or the kernel stops.
type TaskFunc func(ctx context.Context)

// Task is a cancellable periodic job owned by the kernel.
type Task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	sched    *scheduler
	entry    cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	cancelled bool
	runs      int
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Interval returns the period between runs.
func (t *Task) Interval() time.Duration { return t.interval }

// Runs returns how many times the task body has completed.
func (t *Task) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

// Cancelled reports whether the task was cancelled.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Cancel stops the task for good and waits for a running body to return.
// It is safe to call more than once.
func (t *Task) Cancel() {
	t.sched.remove(t)
	t.markCancelled()
	t.wg.Wait()
}

func (t *Task) markCancelled() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
}

func (t *Task) run() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(t.sched.runContext(), cancel)
	defer stop()

	defer func() {
		t.mu.Lock()
		t.runs++
		t.mu.Unlock()
	}()
	t.fn(ctx)
}

// every fires at a fixed delay after each activation. cron's "@every"
// rounds to whole seconds, which is too coarse for kernel tasks.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

// cronLogger routes cron's own diagnostics, including recovered panics, to
// the kernel logger.
type cronLogger struct {
	log core.LoggerAdapter
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.LogDebug("scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.LogError("scheduler: "+msg, append([]any{"error", err}, keysAndValues...)...)
}

type scheduler struct {
	log  core.LoggerAdapter
	cron *cron.Cron

	mu        sync.Mutex
	tasks     []*Task
	runCtx    context.Context
	runCancel context.CancelFunc
}

func newScheduler(log core.LoggerAdapter) *scheduler {
	logger := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return &scheduler{
		log: log,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// runContext is cancelled whenever the scheduler is suspended.
func (s *scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}

func (s *scheduler) add(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.entry = s.cron.Schedule(every(t.interval), cron.FuncJob(t.run))
	s.tasks = append(s.tasks, t)
}

func (s *scheduler) remove(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Remove(t.entry)
	for i, existing := range s.tasks {
		if existing == t {
			s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
			return
		}
	}
}

func (s *scheduler) snapshot() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *scheduler) start() {
	s.mu.Lock()
	if s.runCtx.Err() != nil {
		s.runCtx, s.runCancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()
	s.cron.Start()
}

// suspend stops firing and waits for running bodies to return. Entries are
// kept, so a later start resumes them.
func (s *scheduler) suspend() {
	s.mu.Lock()
	s.runCancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

func (s *scheduler) stop() {
	s.suspend()
	for _, t := range s.snapshot() {
		s.cron.Remove(t.entry)
		t.markCancelled()
	}
	s.mu.Lock()
	s.tasks = nil
	s.mu.Unlock()
}

// Schedule registers fn to run every interval while the kernel is running.
// Tasks registered before Start fire once the kernel starts. Task bodies must
// not call Stop or Pause on the kernel.
func (k *Kernel) Schedule(name string, interval time.Duration, fn TaskFunc) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("schedule %s: %w", name, errors.Join(core.ErrInvalidInput, errors.New("nil task")))
	}
	if interval <= 0 {
		return nil, fmt.Errorf("schedule %s: interval must be positive: %w", name, core.ErrInvalidInput)
	}
	if k.State() == core.KernelStopped {
		return nil, core.ErrKernelStopped
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{name: name, interval: interval, fn: fn, sched: k.scheduler, ctx: ctx, cancel: cancel}
	k.scheduler.add(t)
	k.log.LogDebug("task scheduled", "task", name, "interval", interval)
	return t, nil
}

// Tasks returns the names of the live scheduled tasks.
func (k *Kernel) Tasks() []string {
	tasks := k.scheduler.snapshot()
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.name
	}
	return out
}
