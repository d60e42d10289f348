package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultEmitTimeout bounds a blocking Emit and each sink delivery when
// Config.EmitTimeout is zero.
const DefaultEmitTimeout = 250 * time.Millisecond

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops an event at once when the buffer is full. Otherwise
	// Emit waits up to EmitTimeout for space.
	DropIfFull  bool
	EmitTimeout time.Duration
	// Now stamps events that carry no Timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher stamps events with their request attribution and forwards them
// to a sink from a single goroutine, so a slow sink never holds up a request
// for longer than EmitTimeout.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	queue   chan Event
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	closing atomic.Bool
	dropped atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled; a nil Dispatcher accepts and drops every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	cfg.BufferSize = max(cfg.BufferSize, 1)
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = DefaultEmitTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.stopped.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EmitTimeout)
	defer cancel()
	d.sink.Emit(ctx, event)
}

// Emit fills in the timestamp and the Request attached to ctx, then queues
// event. Cancellation of ctx does not abandon the event: the request that
// produced it may already be gone by the time it is audited. A full buffer
// drops the event at once with DropIfFull, or after EmitTimeout otherwise;
// either way the drop is counted.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.cfg.Now().UTC()
	}
	attach(ctx, &event)

	select {
	case d.queue <- event:
		return
	case <-d.stop:
		return
	default:
	}
	if d.cfg.DropIfFull {
		d.dropped.Add(1)
		return
	}

	timer := time.NewTimer(d.cfg.EmitTimeout)
	defer timer.Stop()
	select {
	case d.queue <- event:
	case <-d.stop:
	case <-timer.C:
		d.dropped.Add(1)
	}
}

// Close stops accepting events, drains the buffer into the sink and waits
// for delivery to finish. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

// Dropped returns the number of events discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
