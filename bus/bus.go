package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
	"github.com/hupe1980/rare/metrics"
)

// Options configures a Bus.
type Options struct {
	// Logger receives handler failures. Defaults to NoOpLogger.
	Logger logging.Logger

	// Metrics counts emitted events and failed handlers. Optional.
	Metrics *metrics.Metrics

	// OnHandlerError is invoked after a handler returned an error or panicked.
	// It runs on the emitting goroutine and must not block.
	OnHandlerError func(ev core.Event, err error)
}

// Subscriber is anything that accepts pattern subscriptions. Both *Bus and
// the kernel satisfy it.
type Subscriber interface {
	On(pattern string, h core.Handler) core.Unsubscribe
}

type subscription struct {
	id      uint64
	pattern string
	handler core.Handler
}

// Bus is an in-process event bus. It is safe for concurrent use.
type Bus struct {
	log            core.LoggerAdapter
	metrics        *metrics.Metrics
	onHandlerError func(core.Event, error)

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	closed bool
}

// New creates a Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{
		log:            core.NewLoggerAdapter(opts.Logger),
		metrics:        opts.Metrics,
		onHandlerError: opts.OnHandlerError,
	}
}

// On registers h for events matching pattern and returns a function that
// removes the subscription. Subscribing to a closed bus is a no-op.
func (b *Bus) On(pattern string, h core.Handler) core.Unsubscribe {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit dispatches ev to all matching handlers and returns once every handler
// has run. Missing IDs and timestamps are filled in. Handler failures are
// isolated; the only error returned is core.ErrBusClosed.
func (b *Bus) Emit(ctx context.Context, ev core.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return core.ErrBusClosed
	}
	handlers := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if core.MatchPattern(s.pattern, ev.Type) {
			handlers = append(handlers, s)
		}
	}
	b.mu.RUnlock()

	if ev.ID == "" {
		ev.ID = core.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.metrics.IncBusEvent(ev.Type)

	for _, s := range handlers {
		if err := b.invoke(ctx, s.handler, ev); err != nil {
			b.handleFailure(s.pattern, ev, err)
		}
	}
	return nil
}

func (b *Bus) invoke(ctx context.Context, h core.Handler, ev core.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.PanicError(r)
			logging.LogErrorWithStack(b.log.Logger(), err, "event handler panicked", "event_type", ev.Type)
		}
	}()
	return h(ctx, ev)
}

func (b *Bus) handleFailure(pattern string, ev core.Event, err error) {
	b.log.LogError("event handler failed", "event_type", ev.Type, "event_id", ev.ID, "pattern", pattern, "error", err)
	b.metrics.IncHandlerFailure(ev.Type)
	if b.onHandlerError != nil {
		b.onHandlerError(ev, fmt.Errorf("handler %q: %w", pattern, err))
	}
}

// HandlerCount returns how many handlers would receive an event of eventType.
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if core.MatchPattern(s.pattern, eventType) {
			n++
		}
	}
	return n
}

// Close drops all subscriptions. Later emissions fail with core.ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// OnPayload subscribes a handler that only receives events whose payload is
// of type T. Events with other payloads on a matching channel are skipped.
func OnPayload[T core.Payload](s Subscriber, pattern string, fn func(ctx context.Context, ev core.Event, data T) error) core.Unsubscribe {
	return s.On(pattern, func(ctx context.Context, ev core.Event) error {
		data, ok := ev.Data.(T)
		if !ok {
			return nil
		}
		return fn(ctx, ev, data)
	})
}
