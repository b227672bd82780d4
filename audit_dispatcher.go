package identity

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples the engine's hot paths from sink latency. Events
// flow through a bounded queue to a single delivery goroutine; when the queue
// is full the configured policy either drops the event (counted per event
// type) or blocks the caller until space frees up.
type auditDispatcher struct {
	cfg  AuditConfig
	sink AuditSink

	queue chan AuditEvent
	quit  chan struct{}
	wg    sync.WaitGroup

	dropped atomic.Uint64

	mu            sync.Mutex
	droppedByType map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:           cfg,
		sink:          sink,
		queue:         make(chan AuditEvent, cfg.BufferSize),
		quit:          make(chan struct{}),
		droppedByType: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.deliver()

	return d
}

func (d *auditDispatcher) deliver() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain flushes events that were already accepted before Close.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) recordDrop(eventType string) {
	d.dropped.Add(1)
	d.mu.Lock()
	d.droppedByType[eventType]++
	d.mu.Unlock()
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.recordDrop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		d.wg.Wait()
	})
}

// Dropped describes the dropped operation and its observable behavior.
//
// Dropped may return an error when input validation, dependency calls, or security checks fail.
// Dropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the per-event-type drop counts, so an
// operator can tell which flows were losing events under backpressure.
func (d *auditDispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]uint64, len(d.droppedByType))
	for eventType, count := range d.droppedByType {
		out[eventType] = count
	}
	return out
}
