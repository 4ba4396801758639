// Simulation ties the clock, calendar and markets of one run together.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-economy/internal/clock"
	"github.com/talgya/mini-economy/internal/economy"
	"github.com/talgya/mini-economy/internal/entropy"
	"github.com/talgya/mini-economy/internal/metrics"
)

// DefaultStart is the first instant of a run unless configured otherwise.
var DefaultStart = clock.Instant{Year: 2000, Month: time.January, Day: 1, Hour: 0}

// Options configures a Simulation.
type Options struct {
	Start      clock.Instant
	Seed       int64
	Settlement economy.SettlementBridge
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// SimStats tracks aggregate statistics of the current run.
type SimStats struct {
	Ticks            uint64 `json:"ticks"`
	EventsFired      uint64 `json:"events_fired"`
	EventsSkipped    uint64 `json:"events_skipped"`
	DispatchFailures uint64 `json:"dispatch_failures"`
	ExternalEvents   uint64 `json:"external_events"`
	Fills            uint64 `json:"fills"`
}

// FillRecord is a committed fill stamped with the instant it happened at.
type FillRecord struct {
	Instant clock.Instant
	Fill    economy.Fill
}

// Simulation is the explicit context of one run. Every collaborator gets it
// (or the parts it needs) passed in; nothing here is process-global, so
// independent runs can share a process.
type Simulation struct {
	RunID      uuid.UUID
	Clock      *clock.Clock
	Calendar   *Calendar
	External   *ExternalQueue
	Dispatcher *Dispatcher
	Markets    *economy.Markets
	Matcher    *economy.MatchEngine
	Rand       *entropy.Source
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	Stats      SimStats
	LastReport TickReport

	fillObservers []func(FillRecord)
	traded        map[economy.Currency]float64 // since the last daily report
}

// NewSimulation creates a run positioned at opts.Start.
func NewSimulation(opts Options) *Simulation {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Start == (clock.Instant{}) {
		opts.Start = DefaultStart
	}
	if opts.Settlement == nil {
		opts.Settlement = economy.SettlementFunc(func(economy.Fill) error {
			return fmt.Errorf("no settlement bridge configured: %w", economy.ErrInvalidOwnership)
		})
	}

	rng := entropy.NewSource(opts.Seed)
	calendar := NewCalendar()
	external := NewExternalQueue()

	s := &Simulation{
		RunID:      uuid.New(),
		Clock:      clock.New(opts.Start, rng),
		Calendar:   calendar,
		External:   external,
		Dispatcher: NewDispatcher(calendar, external, rng, opts.Logger, opts.Metrics),
		Markets:    economy.NewMarkets(opts.Metrics),
		Matcher:    economy.NewMatchEngine(opts.Settlement, opts.Logger, opts.Metrics),
		Rand:       rng,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
		traded:     make(map[economy.Currency]float64),
	}
	s.Matcher.OnFill(s.recordFill)
	return s
}

func (s *Simulation) recordFill(f economy.Fill) {
	s.Stats.Fills++
	s.traded[f.Currency] += f.Volume()
	rec := FillRecord{Instant: s.Clock.Current(), Fill: f}
	for _, fn := range s.fillObservers {
		fn(rec)
	}
}

// OnFill registers fn to receive every committed fill with its instant.
func (s *Simulation) OnFill(fn func(FillRecord)) {
	s.fillObservers = append(s.fillObservers, fn)
}

// Now returns the current instant.
func (s *Simulation) Now() clock.Instant { return s.Clock.Current() }

// Schedule registers a recurring behaviour.
func (s *Simulation) Schedule(name string, rec clock.Recurrence, h Handler) (*Subscription, error) {
	sub := &Subscription{Name: name, Handler: h}
	if err := s.Calendar.Schedule(sub, rec); err != nil {
		return nil, err
	}
	return sub, nil
}

// ScheduleOnce registers a behaviour that fires once at the given instant.
func (s *Simulation) ScheduleOnce(name string, at clock.Instant, h Handler) (*Subscription, error) {
	sub := &Subscription{Name: name, Handler: h, OneShot: true}
	if err := s.Calendar.Schedule(sub, clock.Once(at)); err != nil {
		return nil, err
	}
	return sub, nil
}

// Submit queues an external event for the next start of day.
func (s *Simulation) Submit(ev ExternalEvent) int {
	pos := s.External.Submit(ev)
	s.Metrics.RecordExternal("queued")
	return pos
}

// Step advances the clock one hour and runs the dispatch pass for the new
// instant.
func (s *Simulation) Step() TickReport {
	start := time.Now()
	now := s.Clock.AdvanceOneHour()
	report := s.Dispatcher.Tick(now)

	s.Stats.Ticks++
	s.Stats.EventsFired += uint64(report.Fired)
	s.Stats.EventsSkipped += uint64(report.Skipped)
	s.Stats.DispatchFailures += uint64(report.Failed())
	s.Stats.ExternalEvents += uint64(report.External)
	s.LastReport = report

	s.Metrics.RecordTick(float64(time.Since(start).Microseconds())/1000, s.Calendar.Len())
	return report
}

// Reset returns the run to its initial state: clock at start, empty
// calendar, queue and markets, randomness rewound, and a fresh RunID.
// Registered fill observers are kept.
func (s *Simulation) Reset() {
	s.Clock.Reset()
	s.Calendar.Reset()
	s.External.Drain()
	s.Markets.Reset()
	s.Rand.Reset()
	s.RunID = uuid.New()
	s.Stats = SimStats{}
	s.LastReport = TickReport{}
	clear(s.traded)
	s.Logger.Info("simulation reset", "run_id", s.RunID, "start", s.Clock.Start().String())
}
