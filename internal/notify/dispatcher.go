package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultQueueSize       = 256
	defaultListenerTimeout = 5 * time.Second
)

// Notifier accepts events for delivery. Implementations must not block.
type Notifier interface {
	Notify(e Event)
}

// Listener receives every dispatched event.
type Listener interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(Event) {}

// Dispatcher queues events on a buffered channel and delivers them to the
// listeners from a single goroutine. A full queue drops the event.
type Dispatcher struct {
	listeners []Listener
	logger    *zap.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewDispatcher(queueSize int, log *zap.Logger, listeners ...Listener) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		listeners: listeners,
		logger:    log,
		timeout:   defaultListenerTimeout,
		queue:     make(chan Event, queueSize),
		done:      make(chan struct{}),
	}
	go d.loop()
	return d
}

// Notify enqueues the event and returns immediately.
func (d *Dispatcher) Notify(e Event) {
	if e == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", zap.String("kind", e.Kind()))
		return
	}

	select {
	case d.queue <- e:
	default:
		d.logger.Warn("notification queue is full, dropping event",
			zap.String("kind", e.Kind()),
			zap.Int("capacity", cap(d.queue)),
		)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining notifications: %w", ctx.Err())
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for e := range d.queue {
		for _, l := range d.listeners {
			d.deliver(l, e)
		}
	}
}

func (d *Dispatcher) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification listener panicked",
				zap.String("listener", l.Name()),
				zap.String("kind", e.Kind()),
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := l.Handle(ctx, e); err != nil {
		d.logger.Warn("notification listener failed",
			zap.String("listener", l.Name()),
			zap.String("kind", e.Kind()),
			zap.Error(err),
		)
	}
}
