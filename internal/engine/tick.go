// Engine drives a Simulation forward one simulated hour at a time.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/mini-economy/internal/clock"
)

// Engine paces a Simulation in wall-clock time. Step runs under an exclusive
// lock so that readers on other goroutines (the HTTP API) can use View to
// observe a consistent state between ticks.
type Engine struct {
	Sim *Simulation

	mu       sync.Mutex // held for the duration of each tick and each View
	ctlMu    sync.Mutex
	speed    float64       // multiplier: 1.0 = one sim-hour per Interval, 0 = paused
	interval time.Duration // base wall time per simulated hour
	running  atomic.Bool
	stopCh   chan struct{}

	// Callbacks run after the dispatch pass, inside the tick lock.
	OnHour func(r TickReport)
	OnDay  func(now clock.Instant) // first hour of every day
	OnYear func(now clock.Instant) // first hour of every year
}

// NewEngine creates an engine with default pacing.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		Sim:      sim,
		speed:    1.0,
		interval: time.Second,
		stopCh:   make(chan struct{}),
	}
}

// SetSpeed sets the pacing multiplier. 0 pauses the loop.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	e.ctlMu.Lock()
	e.speed = v
	e.ctlMu.Unlock()
}

// Speed returns the pacing multiplier.
func (e *Engine) Speed() float64 {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.speed
}

// SetInterval sets the wall time of one simulated hour at speed 1. A zero
// interval runs ticks back to back.
func (e *Engine) SetInterval(d time.Duration) {
	e.ctlMu.Lock()
	e.interval = d
	e.ctlMu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Run advances the simulation until ctx is cancelled, Stop is called, or
// maxTicks ticks have run (0 means no limit). A Stop issued while idle halts
// the next Run. After a stopped Run the engine can be run again.
func (e *Engine) Run(ctx context.Context, maxTicks uint64) {
	e.ctlMu.Lock()
	stop := e.stopCh
	e.ctlMu.Unlock()

	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started",
		"run_id", e.Sim.RunID,
		"instant", e.Sim.Now().String(),
		"speed", e.Speed(),
	)

	var done uint64
	for maxTicks == 0 || done < maxTicks {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "reason", ctx.Err(), "instant", e.Sim.Now().String())
			return
		case <-stop:
			e.ctlMu.Lock()
			e.stopCh = make(chan struct{})
			e.ctlMu.Unlock()
			slog.Info("simulation engine stopped", "reason", "stop", "instant", e.Sim.Now().String())
			return
		default:
		}

		e.ctlMu.Lock()
		speed, interval := e.speed, e.interval
		e.ctlMu.Unlock()

		if speed <= 0 {
			// Paused. Sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()
		done++

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}
	slog.Info("simulation engine finished", "ticks", done, "instant", e.Sim.Now().String())
}

// RunFor runs n ticks back to back, ignoring pacing.
func (e *Engine) RunFor(n int) {
	for i := 0; i < n; i++ {
		e.Step()
	}
}

// Stop halts the running or next Run. Safe to call more than once.
func (e *Engine) Stop() {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
}

// Step advances the simulation by one hour and runs the hooks.
func (e *Engine) Step() TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.Sim.Step()
	if e.OnHour != nil {
		e.OnHour(r)
	}
	if r.Instant.IsNewDay() && e.OnDay != nil {
		e.OnDay(r.Instant)
	}
	if r.Instant.IsNewYear() && e.OnYear != nil {
		e.OnYear(r.Instant)
	}
	return r
}

// View runs fn with exclusive access to the simulation, between ticks.
func (e *Engine) View(fn func(sim *Simulation)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.Sim)
}
