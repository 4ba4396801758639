package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/talgya/mini-economy/internal/entropy"
)

func newTestClock(start Instant) *Clock {
	return New(start, entropy.NewSource(1))
}

func TestAdvanceOneHour(t *testing.T) {
	c := newTestClock(Instant{2000, time.January, 1, 0})
	got := c.AdvanceOneHour()
	want := Instant{2000, time.January, 1, 1}
	if got != want {
		t.Fatalf("AdvanceOneHour: got %v, want %v", got, want)
	}
	if c.Current() != want {
		t.Fatalf("Current: got %v, want %v", c.Current(), want)
	}
	if c.Ticks() != 1 {
		t.Fatalf("Ticks: got %d, want 1", c.Ticks())
	}
}

func TestAdvanceRollsOver(t *testing.T) {
	tests := []struct {
		name  string
		start Instant
		want  Instant
	}{
		{"day", Instant{2000, time.March, 5, 23}, Instant{2000, time.March, 6, 0}},
		{"month", Instant{2001, time.April, 30, 23}, Instant{2001, time.May, 1, 0}},
		{"leap february", Instant{2000, time.February, 28, 23}, Instant{2000, time.February, 29, 0}},
		{"non-leap february", Instant{2001, time.February, 28, 23}, Instant{2001, time.March, 1, 0}},
		{"year", Instant{2000, time.December, 31, 23}, Instant{2001, time.January, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClock(tt.start)
			if got := c.AdvanceOneHour(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYearBoundaryObservable(t *testing.T) {
	c := newTestClock(Instant{2000, time.December, 31, 22})
	if c.AdvanceOneHour().IsNewYear() {
		t.Fatal("23h on Dec 31 is not a new year")
	}
	if !c.AdvanceOneHour().IsNewYear() {
		t.Fatal("expected new year at 2001-01-01 00h")
	}
}

func TestCurrentDoesNotMutate(t *testing.T) {
	c := newTestClock(Instant{2000, time.January, 1, 0})
	a := c.Current()
	b := c.Current()
	if a != b || c.Ticks() != 0 {
		t.Fatalf("Current mutated clock: %v %v ticks=%d", a, b, c.Ticks())
	}
}

func TestReset(t *testing.T) {
	start := Instant{2000, time.January, 1, 0}
	c := newTestClock(start)
	for i := 0; i < 50; i++ {
		c.AdvanceOneHour()
	}
	c.Reset()
	if c.Current() != start || c.Ticks() != 0 {
		t.Fatalf("after Reset: %v ticks=%d", c.Current(), c.Ticks())
	}
}

func TestSuggestRandomHour(t *testing.T) {
	c := newTestClock(Instant{2000, time.January, 1, 0})
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		h := c.SuggestRandomHour(8, 12)
		if h < 8 || h > 12 {
			t.Fatalf("SuggestRandomHour(8, 12) = %d", h)
		}
		seen[h] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected all 5 hours to appear, saw %v", seen)
	}
	for i := 0; i < 100; i++ {
		if h := c.SuggestRandomHour(-5, 40); h < 0 || h > 23 {
			t.Fatalf("clamped hour out of range: %d", h)
		}
	}
}

func TestRecurrenceNormalize(t *testing.T) {
	tests := []struct {
		name    string
		r       Recurrence
		wantErr bool
	}{
		{"daily", Daily(12), false},
		{"hourly", Hourly(), false},
		{"hour unset", Recurrence{Year: Every, Month: Every, Day: Every}, true},
		{"all unset", Recurrence{}, true},
		{"only hour", Recurrence{Hour: Exact(3)}, false},
		{"month 13", Recurrence{Month: Exact(13), Hour: Exact(0)}, true},
		{"day 0", Recurrence{Day: Exact(0), Hour: Exact(0)}, true},
		{"hour 24", Recurrence{Hour: Exact(24)}, true},
		{"year 0", Recurrence{Year: Exact(0), Hour: Exact(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.r.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecurrence) {
				t.Fatalf("error %v does not wrap ErrInvalidRecurrence", err)
			}
		})
	}
}

func TestRecurrenceNormalizeFillsWildcards(t *testing.T) {
	r, err := Recurrence{Hour: Exact(5)}.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	if !r.Year.IsEvery() || !r.Month.IsEvery() || !r.Day.IsEvery() {
		t.Fatalf("unspecified levels not filled: %v", r)
	}
}

func TestRecurrenceMatches(t *testing.T) {
	at := Instant{2001, time.January, 1, 0}
	if !Once(at).Matches(at) {
		t.Fatal("Once should match its own instant")
	}
	if Once(at).Matches(Instant{2000, time.January, 1, 0}) {
		t.Fatal("Once should not match another year")
	}
	if !Yearly(time.January, 1, 0).Matches(Instant{2002, time.January, 1, 0}) {
		t.Fatal("Yearly should match every year")
	}
	if Daily(12).Matches(Instant{2000, time.May, 3, 11}) {
		t.Fatal("Daily(12) matched hour 11")
	}
}
