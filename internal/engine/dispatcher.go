package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/entropy"
	"github.com/talgya/mini-economy/internal/metrics"
)

// State is the dispatcher's position within one tick.
type State uint8

const (
	StateIdle State = iota
	StateResolving
	StateShuffling
	StateDispatching
	StateFlushingExternal
	StateApplyingRemovals
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateShuffling:
		return "shuffling"
	case StateDispatching:
		return "dispatching"
	case StateFlushingExternal:
		return "flushing_external"
	case StateApplyingRemovals:
		return "applying_removals"
	default:
		return "unknown"
	}
}

// DispatchError is a handler failure: a returned error or a recovered panic.
type DispatchError struct {
	Name     string
	Instant  clock.Instant
	Err      error
	Panicked bool
}

func (e *DispatchError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("event %q at %s panicked: %v", e.Name, e.Instant, e.Err)
	}
	return fmt.Sprintf("event %q at %s: %v", e.Name, e.Instant, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// TickReport summarizes one dispatch pass.
type TickReport struct {
	Instant  clock.Instant    `json:"instant"`
	Due      int              `json:"due"`
	Fired    int              `json:"fired"`
	Skipped  int              `json:"skipped"`
	External int              `json:"external"`
	Removed  int              `json:"removed"`
	Failures []*DispatchError `json:"-"`
}

// Failed returns the number of handler failures in the pass.
func (r TickReport) Failed() int { return len(r.Failures) }

// Dispatcher fires the subscriptions due at each instant.
type Dispatcher struct {
	calendar *Calendar
	external *ExternalQueue
	rng      *entropy.Source
	logger   *slog.Logger
	metrics  *metrics.Metrics
	state    State
}

// NewDispatcher creates a dispatcher over calendar and external. m may be nil.
func NewDispatcher(calendar *Calendar, external *ExternalQueue, rng *entropy.Source, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		calendar: calendar,
		external: external,
		rng:      rng,
		logger:   logger.With("component", "dispatcher"),
		metrics:  m,
	}
}

// State returns where the dispatcher is within the current tick.
func (d *Dispatcher) State() State { return d.state }

// Tick runs one full pass for now: resolve due subscriptions, shuffle them,
// invoke each with failures isolated, run queued external events when now is
// the first hour of a day, then apply deferred removals.
func (d *Dispatcher) Tick(now clock.Instant) TickReport {
	report := TickReport{Instant: now}

	d.state = StateResolving
	due := d.calendar.ResolveDue(now)
	report.Due = len(due)

	d.state = StateShuffling
	d.rng.Shuffle(len(due), func(i, j int) { due[i], due[j] = due[j], due[i] })

	d.state = StateDispatching
	for _, sub := range due {
		if sub.removing {
			report.Skipped++
			continue
		}
		if sub.Alive != nil && !sub.Alive() {
			d.calendar.Remove(sub)
			report.Skipped++
			continue
		}
		if sub.OneShot {
			d.calendar.Remove(sub)
		}
		report.Fired++
		if err := d.invoke(sub.Name, sub.Handler, now); err != nil {
			report.Failures = append(report.Failures, err)
		}
	}

	if now.IsNewDay() {
		d.state = StateFlushingExternal
		for _, ev := range d.external.Drain() {
			report.External++
			if err := d.invoke(ev.Name, ev.Handler, now); err != nil {
				report.Failures = append(report.Failures, err)
				d.metrics.RecordExternal("error")
				continue
			}
			d.metrics.RecordExternal("ok")
		}
	}

	d.state = StateApplyingRemovals
	report.Removed = d.calendar.ApplyRemovals()

	d.state = StateIdle
	d.metrics.RecordDispatch(report.Fired, report.Skipped)
	return report
}

// invoke runs h, turning a returned error or a panic into a DispatchError
// that is logged and counted. It never propagates.
func (d *Dispatcher) invoke(name string, h Handler, now clock.Instant) (derr *DispatchError) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			derr = &DispatchError{Name: name, Instant: now, Err: err, Panicked: true}
			d.logger.Error("event handler panicked", "event", name, "instant", now.String(), "panic", r)
			d.metrics.RecordDispatchError("panic")
		}
	}()

	if h == nil {
		return nil
	}
	if err := h(now); err != nil {
		d.logger.Error("event handler failed", "event", name, "instant", now.String(), "error", err)
		d.metrics.RecordDispatchError("error")
		return &DispatchError{Name: name, Instant: now, Err: err}
	}
	return nil
}
