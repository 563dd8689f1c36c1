package audit

import (
	"context"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options tunes a Dispatcher.
type Options struct {
	// Buffer is the queue length. Values below 1 mean 1.
	Buffer int
	// DropIfFull drops routine events when the queue is full instead of
	// waiting. Critical events still wait up to CriticalWait.
	DropIfFull   bool
	CriticalWait time.Duration
	Now          func() time.Time
	Log          *zap.Logger
}

// Dispatcher stamps events with the request context and relays them to a
// sink on one goroutine.
type Dispatcher struct {
	sink   Sink
	opts   Options
	queue  chan Event
	exited chan struct{}

	// mu guards closed against sends on a closed queue.
	mu     sync.RWMutex
	closed bool

	dropMu  sync.Mutex
	dropped map[string]uint64
	total   uint64
}

// NewDispatcher starts the relay goroutine. Close must be called to flush
// queued events.
func NewDispatcher(sink Sink, opts Options) *Dispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	if opts.Buffer < 1 {
		opts.Buffer = 1
	}
	if opts.CriticalWait <= 0 {
		opts.CriticalWait = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	d := &Dispatcher{
		sink:    sink,
		opts:    opts,
		queue:   make(chan Event, opts.Buffer),
		exited:  make(chan struct{}),
		dropped: make(map[string]uint64),
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.exited)
	for ev := range d.queue {
		d.sink.Emit(context.Background(), ev)
	}
}

// Record queues ev. A zero Timestamp is set from the dispatcher clock, and
// an empty IP or RequestID is taken from ctx. A nil Dispatcher discards.
func (d *Dispatcher) Record(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.opts.Now().UTC()
	}
	if ev.IP == "" {
		ev.IP = ClientIP(ctx)
	}
	if ev.RequestID == "" {
		ev.RequestID = RequestID(ctx)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- ev:
		return
	default:
	}

	var deadline <-chan time.Time
	if d.opts.DropIfFull {
		if !ev.Critical() {
			d.drop(ev)
			return
		}
		t := time.NewTimer(d.opts.CriticalWait)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case d.queue <- ev:
	case <-deadline:
		d.drop(ev)
	case <-ctx.Done():
		d.drop(ev)
	}
}

func (d *Dispatcher) drop(ev Event) {
	d.dropMu.Lock()
	d.dropped[ev.EventType]++
	d.total++
	first, total := d.dropped[ev.EventType] == 1, d.total
	d.dropMu.Unlock()

	if first || total%100 == 0 || ev.Critical() {
		d.opts.Log.Warn("audit event dropped",
			zap.String("event_type", ev.EventType),
			zap.Bool("success", ev.Success),
			zap.String("user_id", ev.UserID),
			zap.Uint64("dropped_total", total),
		)
	}
}

// Close flushes queued events to the sink and stops the relay. Later
// Record calls are ignored.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.exited
}

// Dropped returns how many events were dropped in total.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	return d.total
}

// DroppedByType returns drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	return maps.Clone(d.dropped)
}
