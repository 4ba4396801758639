package engine

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/talgya/mini-economy/internal/clock"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSim(seed int64) *Simulation {
	return NewSimulation(Options{Seed: seed, Logger: quietLogger()})
}

func TestDailyEventFiresAtItsHour(t *testing.T) {
	sim := newTestSim(1)
	var fired []clock.Instant
	if _, err := sim.Schedule("noon", clock.Daily(12), func(now clock.Instant) error {
		fired = append(fired, now)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	for range 11 {
		sim.Step()
	}
	if len(fired) != 0 {
		t.Fatalf("fired early at %v", fired)
	}
	sim.Step()
	if len(fired) != 1 || fired[0] != at(2000, time.January, 1, 12) {
		t.Fatalf("after 12 steps fired = %v", fired)
	}

	for range 24 * 3 {
		sim.Step()
	}
	if len(fired) != 4 {
		t.Fatalf("fired %d times, want 4", len(fired))
	}
	for i := 1; i < len(fired); i++ {
		if d := fired[i].Time().Sub(fired[i-1].Time()); d != 24*time.Hour {
			t.Errorf("gap %d = %s", i, d)
		}
	}
}

func TestExactYearEventFiresOnlyThatYear(t *testing.T) {
	sim := newTestSim(1)
	var fired []clock.Instant
	rec := clock.Recurrence{Year: clock.Exact(2001), Month: clock.Exact(6), Day: clock.Exact(1), Hour: clock.Exact(0)}
	if _, err := sim.Schedule("mid-2001", rec, func(now clock.Instant) error {
		fired = append(fired, now)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	for sim.Now().Year < 2003 {
		sim.Step()
	}
	if len(fired) != 1 || fired[0] != at(2001, time.June, 1, 0) {
		t.Fatalf("fired = %v", fired)
	}
}

func TestExactYearEventFiresAtYearBoundary(t *testing.T) {
	sim := newTestSim(1)
	var fired []clock.Instant
	var firedAtStep []int
	step := 0
	rec := clock.Recurrence{Year: clock.Exact(2001), Month: clock.Exact(1), Day: clock.Exact(1), Hour: clock.Exact(0)}
	if _, err := sim.Schedule("new-year-2001", rec, func(now clock.Instant) error {
		fired = append(fired, now)
		firedAtStep = append(firedAtStep, step)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	for sim.Now().Year < 2003 {
		step++
		sim.Step()
	}
	if len(fired) != 1 || fired[0] != at(2001, time.January, 1, 0) {
		t.Fatalf("fired = %v", fired)
	}
	if !fired[0].IsNewYear() {
		t.Error("boundary instant is not a new year")
	}
	// 2000 is a leap year.
	if firedAtStep[0] != 366*24 {
		t.Errorf("fired at step %d, want %d", firedAtStep[0], 366*24)
	}
}

func TestExternalEventRunsAtNextDayStart(t *testing.T) {
	sim := newTestSim(1)
	for range 15 {
		sim.Step()
	}
	if sim.Now().Hour != 15 {
		t.Fatalf("now = %s", sim.Now())
	}

	var ran []clock.Instant
	pos := sim.Submit(ExternalEvent{Name: "grant", Kind: "note", Handler: func(now clock.Instant) error {
		ran = append(ran, now)
		return nil
	}})
	if pos != 1 {
		t.Errorf("queue position = %d", pos)
	}

	for range 8 {
		sim.Step()
	}
	if len(ran) != 0 {
		t.Fatalf("ran before day start: %v", ran)
	}
	r := sim.Step()
	if len(ran) != 1 || ran[0] != at(2000, time.January, 2, 0) {
		t.Fatalf("ran = %v", ran)
	}
	if r.External != 1 {
		t.Errorf("report.External = %d", r.External)
	}

	for range 48 {
		sim.Step()
	}
	if len(ran) != 1 {
		t.Errorf("external event ran %d times", len(ran))
	}
	if sim.Stats.ExternalEvents != 1 {
		t.Errorf("Stats.ExternalEvents = %d", sim.Stats.ExternalEvents)
	}
}

func TestExternalEventsKeepSubmissionOrder(t *testing.T) {
	sim := newTestSim(1)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		sim.Submit(ExternalEvent{Name: name, Handler: func(clock.Instant) error {
			order = append(order, name)
			return nil
		}})
	}
	for range 24 {
		sim.Step()
	}
	if !slices.Equal(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", order)
	}
}

func TestSelfRemovalDuringDispatch(t *testing.T) {
	sim := newTestSim(1)
	count := 0
	var sub *Subscription
	sub, err := sim.Schedule("quitter", clock.Hourly(), func(clock.Instant) error {
		count++
		sim.Calendar.Remove(sub)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	r := sim.Step()
	if count != 1 || r.Removed != 1 {
		t.Fatalf("count=%d removed=%d", count, r.Removed)
	}
	for range 5 {
		sim.Step()
	}
	if count != 1 {
		t.Errorf("fired %d times after removing itself", count)
	}
	if sim.Calendar.Len() != 0 {
		t.Errorf("Len = %d", sim.Calendar.Len())
	}
}

func TestRemovalOfPeerMidTickSkipsIt(t *testing.T) {
	// Two subscriptions that cancel each other: whichever runs first wins,
	// and the other is skipped in the same tick.
	sim := newTestSim(7)
	var a, b *Subscription
	fired := map[string]int{}
	a, _ = sim.Schedule("a", clock.Hourly(), func(clock.Instant) error {
		fired["a"]++
		sim.Calendar.Remove(b)
		return nil
	})
	b, _ = sim.Schedule("b", clock.Hourly(), func(clock.Instant) error {
		fired["b"]++
		sim.Calendar.Remove(a)
		return nil
	})

	r := sim.Step()
	if fired["a"]+fired["b"] != 1 {
		t.Fatalf("fired = %v", fired)
	}
	if r.Fired != 1 || r.Skipped != 1 || r.Removed != 1 {
		t.Errorf("report = %+v", r)
	}
	if sim.Calendar.Len() != 1 {
		t.Errorf("Len = %d", sim.Calendar.Len())
	}
}

func TestHandlerFailureIsIsolated(t *testing.T) {
	sim := newTestSim(3)
	ok := 0
	boom := errors.New("boom")
	_, _ = sim.Schedule("err", clock.Hourly(), func(clock.Instant) error { return boom })
	_, _ = sim.Schedule("panic", clock.Hourly(), func(clock.Instant) error { panic("kaboom") })
	_, _ = sim.Schedule("ok", clock.Hourly(), func(clock.Instant) error { ok++; return nil })

	var failures []*DispatchError
	for range 3 {
		r := sim.Step()
		failures = append(failures, r.Failures...)
	}
	if ok != 3 {
		t.Errorf("healthy subscription fired %d times, want 3", ok)
	}
	if len(failures) != 6 {
		t.Fatalf("failures = %d, want 6", len(failures))
	}
	var panics, errs int
	for _, f := range failures {
		if f.Panicked {
			panics++
		} else if errors.Is(f, boom) {
			errs++
		}
	}
	if panics != 3 || errs != 3 {
		t.Errorf("panics=%d errs=%d", panics, errs)
	}
	if sim.Stats.DispatchFailures != 6 {
		t.Errorf("Stats.DispatchFailures = %d", sim.Stats.DispatchFailures)
	}
	if sim.Dispatcher.State() != StateIdle {
		t.Errorf("state = %s", sim.Dispatcher.State())
	}
}

func TestAliveGuardRemovesDeadSubscription(t *testing.T) {
	sim := newTestSim(1)
	alive := true
	count := 0
	sub := &Subscription{Name: "agent", Handler: func(clock.Instant) error { count++; return nil }, Alive: func() bool { return alive }}
	if err := sim.Calendar.Schedule(sub, clock.Hourly()); err != nil {
		t.Fatal(err)
	}
	sim.Step()
	alive = false
	r := sim.Step()
	if count != 1 || r.Skipped != 1 || r.Removed != 1 {
		t.Errorf("count=%d report=%+v", count, r)
	}
	if sub.Scheduled() {
		t.Error("dead subscription still scheduled")
	}
}

func TestScheduleOnceFiresOnce(t *testing.T) {
	sim := newTestSim(1)
	count := 0
	sub, err := sim.ScheduleOnce("once", at(2000, time.January, 1, 5), func(clock.Instant) error { count++; return nil })
	if err != nil {
		t.Fatal(err)
	}
	for range 48 {
		sim.Step()
	}
	if count != 1 || sub.Scheduled() {
		t.Errorf("count=%d scheduled=%v", count, sub.Scheduled())
	}
}

func TestDispatchOrderIsShuffled(t *testing.T) {
	sim := newTestSim(42)
	var order []int
	for i := range 8 {
		_, _ = sim.Schedule("s", clock.Hourly(), func(clock.Instant) error {
			order = append(order, i)
			return nil
		})
	}

	seen := map[string]bool{}
	for range 20 {
		order = order[:0]
		sim.Step()
		key := ""
		for _, v := range order {
			key += string(rune('a' + v))
		}
		seen[key] = true
	}
	if len(seen) < 2 {
		t.Errorf("dispatch order never changed over 20 ticks")
	}
}

func TestSameSeedReplaysDispatchOrder(t *testing.T) {
	trace := func() []int {
		sim := newTestSim(99)
		var order []int
		for i := range 6 {
			_, _ = sim.Schedule("s", clock.Hourly(), func(clock.Instant) error {
				order = append(order, i)
				return nil
			})
		}
		for range 10 {
			sim.Step()
		}
		return order
	}
	if a, b := trace(), trace(); !slices.Equal(a, b) {
		t.Errorf("runs diverged:\n%v\n%v", a, b)
	}
}

func TestResetLeavesNothingBehind(t *testing.T) {
	sim := newTestSim(5)
	count := 0
	_, _ = sim.Schedule("h", clock.Hourly(), func(clock.Instant) error { count++; return nil })
	sim.Submit(ExternalEvent{Name: "x", Handler: noop})
	for range 5 {
		sim.Step()
	}
	firstRun := sim.RunID

	sim.Reset()
	if sim.Now() != DefaultStart {
		t.Errorf("Now = %s", sim.Now())
	}
	if sim.Calendar.Len() != 0 || sim.External.Len() != 0 || len(sim.Markets.Books()) != 0 {
		t.Error("state leaked across reset")
	}
	if sim.Stats != (SimStats{}) {
		t.Errorf("Stats = %+v", sim.Stats)
	}
	if sim.RunID == firstRun {
		t.Error("RunID not renewed")
	}

	sim.Step()
	if count != 5 {
		t.Errorf("old subscription fired after reset")
	}
}

func TestIndependentSimulations(t *testing.T) {
	a, b := newTestSim(1), newTestSim(1)
	_, _ = a.Schedule("h", clock.Hourly(), noop)
	a.Step()
	if b.Calendar.Len() != 0 || b.Now() != DefaultStart {
		t.Error("simulations share state")
	}
	if a.RunID == b.RunID {
		t.Error("simulations share RunID")
	}
}
