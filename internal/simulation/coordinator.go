// Package simulation debounces input changes, issues sequence-numbered
// projection requests, and applies only the latest result.
package simulation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrSuperseded is returned when a newer request was issued before this
	// one completed. Its result is discarded.
	ErrSuperseded = errors.New("simulation superseded by a newer request")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("simulation coordinator closed")
)

// Builder produces the snapshot for a sequence number and input snapshot.
type Builder interface {
	Build(ctx context.Context, seq uint64, in domain.SimulationInputs) domain.Snapshot
}

// Listener is notified after each applied snapshot.
type Listener interface {
	OnSnapshot(ctx context.Context, snap domain.Snapshot)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, snap domain.Snapshot)

func (f ListenerFunc) OnSnapshot(ctx context.Context, snap domain.Snapshot) { f(ctx, snap) }

// Coordinator owns the applied snapshot. Input changes are debounced; each
// fired request takes the next sequence number and a copy of the inputs.
// Requests are never cancelled or retried; stale results are dropped.
type Coordinator struct {
	builder Builder
	delay   time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	listeners []Listener

	seq atomic.Uint64
	wg  sync.WaitGroup

	mu         sync.Mutex
	pending    domain.SimulationInputs
	timer      clockwork.Timer
	current    domain.Snapshot
	hasCurrent bool
	closed     bool

	// applyMu serializes apply and listener notification.
	applyMu sync.Mutex
}

// New creates a Coordinator. A nil clock uses the real clock.
func New(b Builder, delay time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Coordinator{
		builder: b,
		delay:   delay,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		pending: domain.DefaultInputs(),
	}
}

// Subscribe registers a listener. Listeners run synchronously after each
// apply, in registration order. Subscribe before submitting inputs.
func (c *Coordinator) Subscribe(l Listener) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Submit records new inputs and restarts the debounce timer. The request fires
// once no further Submit arrives within the debounce delay.
func (c *Coordinator) Submit(in domain.SimulationInputs) error {
	if err := in.Validate(); err != nil {
		return err
	}
	in = in.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.schedule(in)
	return nil
}

// Update applies patch to a copy of the pending inputs and submits the result.
// The read, patch, and submit happen under one lock, so concurrent partial
// updates never lose each other's fields. A patch error leaves the pending
// inputs untouched.
func (c *Coordinator) Update(patch func(*domain.SimulationInputs) error) (domain.SimulationInputs, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.pending, ErrClosed
	}

	in := c.pending
	if err := patch(&in); err != nil {
		return c.pending, err
	}
	if err := in.Validate(); err != nil {
		return c.pending, err
	}
	c.schedule(in.Normalize())
	return c.pending, nil
}

// schedule replaces the pending inputs and restarts the debounce timer.
// Callers hold c.mu.
func (c *Coordinator) schedule(in domain.SimulationInputs) {
	c.pending = in
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(c.delay, c.fire)
}

// Pending returns the most recently submitted inputs.
func (c *Coordinator) Pending() domain.SimulationInputs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// RunNow issues a request immediately, bypassing and cancelling any pending
// debounce. It returns ErrSuperseded if a newer request was issued while this
// one was in flight.
func (c *Coordinator) RunNow(ctx context.Context, in domain.SimulationInputs) (domain.Snapshot, error) {
	if err := in.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	in = in.Normalize()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Snapshot{}, ErrClosed
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = in
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	return c.run(ctx, in)
}

// Current returns the applied snapshot, if any.
func (c *Coordinator) Current() (domain.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.hasCurrent
}

// CheckReadiness returns nil once a snapshot has been applied.
func (c *Coordinator) CheckReadiness(_ context.Context) error {
	if _, ok := c.Current(); !ok {
		return errors.New("no simulation has been applied yet")
	}
	return nil
}

// Close stops the pending debounce timer and waits for in-flight requests.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) fire() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	in := c.pending
	c.timer = nil
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if _, err := c.run(context.Background(), in); err != nil && !errors.Is(err, ErrSuperseded) {
		c.logger.Error("debounced simulation failed", "error", err)
	}
}

func (c *Coordinator) run(ctx context.Context, in domain.SimulationInputs) (domain.Snapshot, error) {
	seq := c.seq.Add(1)
	c.metrics.SimulationsRequested.Inc()
	c.logger.Debug("simulation requested", "seq", seq, "location", in.Location, "year", in.Year)

	snap := c.builder.Build(ctx, seq, in)
	return c.apply(ctx, snap)
}

func (c *Coordinator) apply(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if latest := c.seq.Load(); snap.Seq != latest {
		c.metrics.SimulationsDiscarded.Inc()
		c.logger.Debug("discarding stale simulation", "seq", snap.Seq, "latest", latest)
		return snap, ErrSuperseded
	}

	snap.AppliedAt = c.clock.Now()

	c.mu.Lock()
	c.current = snap
	c.hasCurrent = true
	c.mu.Unlock()

	c.metrics.SimulationsApplied.WithLabelValues(string(snap.Source)).Inc()
	c.metrics.LastRiseMeters.Set(snap.Rise)
	c.logger.Info("simulation applied",
		"seq", snap.Seq, "location", snap.Inputs.Location, "rise", snap.Rise,
		"source", snap.Source, "overridden", snap.Overridden)

	for _, l := range c.listeners {
		l.OnSnapshot(ctx, snap)
	}
	return snap, nil
}
