package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize      = 64
	defaultDeliverTimeout = 10 * time.Second
)

// Dispatcher decouples event producers from the delivery [Notifier]. Enqueue
// never blocks: a full queue drops the event with a warning. A single worker
// goroutine drains the queue until [Dispatcher.Close] is called.
type Dispatcher struct {
	notifier Notifier
	cfg      FilterConfig
	observe  func(kind, status string)
	queue    chan Event

	closeOnce sync.Once
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

// Option customises a [Dispatcher].
type Option func(*Dispatcher)

// WithObserver installs a callback invoked after each delivery attempt with
// the event kind and "ok", "error", or "dropped". Used for metrics.
func WithObserver(fn func(kind, status string)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// FilterConfig selects which event kinds are delivered at all.
type FilterConfig struct {
	Enabled          bool
	NotifyOnNewStory bool
	NotifyOnDistress bool
	DailySummary     bool
	WeeklyDigest     bool
}

// NewDispatcher creates a Dispatcher delivering through notifier and starts
// its worker. A nil notifier is valid: events are filtered and logged but
// not delivered anywhere.
func NewDispatcher(notifier Notifier, cfg FilterConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		cfg:      cfg,
		observe:  func(kind, status string) {},
		queue:    make(chan Event, defaultQueueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Enqueue submits an event for asynchronous delivery and returns
// immediately. Events filtered out by configuration are silently ignored;
// events that do not fit in the queue, or that arrive after [Dispatcher.Close],
// are dropped with a warning. A session that outlives the shutdown grace
// period can still emit events, so a closed dispatcher must swallow them
// rather than panic on the closed queue.
func (d *Dispatcher) Enqueue(ev Event) {
	if !d.wants(ev.Kind) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		slog.Warn("notification after dispatcher close, dropping event",
			"kind", ev.Kind, "resident_id", ev.ResidentID)
		d.observe(string(ev.Kind), "dropped")
		return
	}
	select {
	case d.queue <- ev:
	default:
		slog.Warn("notification queue full, dropping event",
			"kind", ev.Kind, "resident_id", ev.ResidentID)
		d.observe(string(ev.Kind), "dropped")
	}
}

// Close stops the worker after draining already-queued events. The closed
// flag is set under the same mutex Enqueue sends under, so no send can race
// the channel close.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.queue)
		<-d.done
	})
}

// wants applies the configured kind filter.
func (d *Dispatcher) wants(k Kind) bool {
	if !d.cfg.Enabled {
		return false
	}
	switch k {
	case KindNewStory:
		return d.cfg.NotifyOnNewStory
	case KindDistressKeyword:
		return d.cfg.NotifyOnDistress
	case KindDailySummary:
		return d.cfg.DailySummary
	case KindWeeklyDigest:
		return d.cfg.WeeklyDigest
	}
	return false
}

// run drains the queue until it is closed. Delivery failures are logged and
// otherwise ignored; the notifier owns any retrying.
func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		if d.notifier == nil {
			slog.Info("family notification (no delivery configured)",
				"kind", ev.Kind, "resident_id", ev.ResidentID)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultDeliverTimeout)
		if err := d.notifier.Notify(ctx, ev); err != nil {
			slog.Warn("family notification delivery failed",
				"kind", ev.Kind, "resident_id", ev.ResidentID, "err", err)
			d.observe(string(ev.Kind), "error")
		} else {
			d.observe(string(ev.Kind), "ok")
		}
		cancel()
	}
}
