package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Dispatcher queues events and delivers them to every sink from a single
// background goroutine at a bounded rate. Notify never blocks: when the queue
// is full the event is dropped and counted.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithRate limits deliveries to r events per second with the given burst.
func WithRate(r float64, burst int) Option {
	return func(d *Dispatcher) {
		d.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithSendTimeout bounds each sink call.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher returns a dispatcher over sinks. Call Start before Notify.
func NewDispatcher(sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, 256),
		limiter: rate.NewLimiter(rate.Limit(50), 50),
		timeout: 5 * time.Second,
		logger:  slog.Default().With("component", "notify"),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the delivery loop until Close is called. Events still queued
// when ctx ends are dropped.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for ev := range d.queue {
		if ctx.Err() != nil {
			d.dropped.Add(1)
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			d.dropped.Add(1)
			continue
		}
		d.deliver(ctx, ev)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, s := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Send(sendCtx, ev)
		cancel()
		if err != nil {
			d.failed.Add(1)
			d.logger.WarnContext(ctx, "notification failed", "type", ev.Type, "key", ev.Key, "error", err)
			continue
		}
		d.sent.Add(1)
	}
}

// Notify queues ev for delivery and reports whether it was accepted.
func (d *Dispatcher) Notify(ev Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification queue full, dropping event", "type", ev.Type, "key", ev.Key)
		return false
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
		if !d.started {
			close(d.done)
		}
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports delivery counters.
type Stats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Dropped: d.dropped.Load()}
}
