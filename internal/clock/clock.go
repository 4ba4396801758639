// Package clock holds simulated time at one-hour granularity.
//
// The Clock is not goroutine-safe. It belongs to one simulation run and is
// only advanced by the engine loop; readers outside the loop go through
// engine.Engine.View.
package clock

import (
	"fmt"
	"time"

	"github.com/talgya/mini-economy/internal/entropy"
)

// Instant is an immutable (year, month, day, hour) snapshot.
type Instant struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
	Hour  int        `json:"hour"`
}

// InstantOf decomposes t (interpreted in UTC) into an Instant.
func InstantOf(t time.Time) Instant {
	t = t.UTC()
	return Instant{Year: t.Year(), Month: t.Month(), Day: t.Day(), Hour: t.Hour()}
}

// Time returns the instant as the start of its hour in UTC.
func (i Instant) Time() time.Time {
	return time.Date(i.Year, i.Month, i.Day, i.Hour, 0, 0, 0, time.UTC)
}

// IsNewDay reports whether the instant is the first hour of a day.
func (i Instant) IsNewDay() bool { return i.Hour == 0 }

// IsNewYear reports whether the instant is hour 0 of January 1st.
func (i Instant) IsNewYear() bool {
	return i.Hour == 0 && i.Day == 1 && i.Month == time.January
}

func (i Instant) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02dh", i.Year, int(i.Month), i.Day, i.Hour)
}

// Clock is the simulation's single source of the current instant.
type Clock struct {
	start time.Time
	now   time.Time
	ticks uint64
	rng   *entropy.Source
}

// New creates a Clock positioned at start. rng backs SuggestRandomHour.
func New(start Instant, rng *entropy.Source) *Clock {
	t := start.Time()
	return &Clock{start: t, now: t, rng: rng}
}

// AdvanceOneHour moves the clock forward one hour, rolling over day, month and
// year boundaries with Gregorian calendar arithmetic. Returns the new instant.
func (c *Clock) AdvanceOneHour() Instant {
	c.now = c.now.Add(time.Hour)
	c.ticks++
	return InstantOf(c.now)
}

// Current returns the current instant without advancing.
func (c *Clock) Current() Instant { return InstantOf(c.now) }

// Ticks returns how many hours have been advanced since start or Reset.
func (c *Clock) Ticks() uint64 { return c.ticks }

// Start returns the instant the clock was created with.
func (c *Clock) Start() Instant { return InstantOf(c.start) }

// Reset rewinds the clock to its start instant.
func (c *Clock) Reset() {
	c.now = c.start
	c.ticks = 0
}

// SuggestRandomHour returns a uniformly random hour in [min, max]. Bounds are
// clamped to 0..23 and swapped when inverted. Agents use it to spread their
// recurring behaviour across the day.
func (c *Clock) SuggestRandomHour(min, max int) int {
	min, max = clampHour(min), clampHour(max)
	return c.rng.IntRange(min, max)
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}
