// Package engine provides the hour-by-hour simulation loop: the event
// calendar, the dispatcher that fires due subscriptions every tick, the
// queue of externally submitted events, and the Simulation context that
// ties them to the markets of one run.
package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/mini-economy/internal/clock"
)

// ErrAlreadyScheduled is returned when a subscription is scheduled twice.
var ErrAlreadyScheduled = errors.New("subscription already scheduled")

// SchedulingError reports a subscription that could not be scheduled.
type SchedulingError struct {
	Name       string
	Recurrence clock.Recurrence
	Err        error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule %q at %s: %v", e.Name, e.Recurrence, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// Handler is the behaviour run when a subscription fires.
type Handler func(now clock.Instant) error

// Subscription is a registered behaviour and the instants it fires at.
type Subscription struct {
	Name    string
	Handler Handler

	// Alive, when set, is checked before every invocation. Returning false
	// means the owning agent is gone: the subscription is skipped and
	// removed.
	Alive func() bool

	// OneShot subscriptions are removed after they fire once.
	OneShot bool

	rec      clock.Recurrence
	calendar *Calendar
	removing bool
}

// Recurrence returns the normalized recurrence the subscription was
// scheduled with.
func (s *Subscription) Recurrence() clock.Recurrence { return s.rec }

// Scheduled reports whether the subscription is still in a calendar.
func (s *Subscription) Scheduled() bool { return s.calendar != nil }

// Cancelled reports whether the subscription has been marked for removal.
func (s *Subscription) Cancelled() bool { return s.removing }

// anyKey is the bucket key of the wildcard at every level.
const anyKey = -1

func fieldKey(f clock.Field) int {
	if v, ok := f.Value(); ok {
		return v
	}
	return anyKey
}

type (
	hourIndex  map[int][]*Subscription
	dayIndex   map[int]hourIndex
	monthIndex map[int]dayIndex
	yearIndex  map[int]monthIndex
)

// Calendar indexes subscriptions by year, month, day and hour. Each level
// has an exact-value bucket per value and one wildcard bucket.
//
// Removal is deferred: Remove only marks a subscription, and ApplyRemovals
// deletes every marked subscription in one pass after dispatch.
type Calendar struct {
	years   yearIndex
	count   int
	pending []*Subscription
}

// NewCalendar creates an empty calendar.
func NewCalendar() *Calendar {
	return &Calendar{years: make(yearIndex)}
}

// Schedule inserts sub at rec. Intermediate buckets are created lazily.
func (c *Calendar) Schedule(sub *Subscription, rec clock.Recurrence) error {
	if sub == nil {
		return &SchedulingError{Recurrence: rec, Err: errors.New("nil subscription")}
	}
	if sub.Handler == nil {
		return &SchedulingError{Name: sub.Name, Recurrence: rec, Err: errors.New("no handler")}
	}
	if sub.calendar != nil {
		return &SchedulingError{Name: sub.Name, Recurrence: rec, Err: ErrAlreadyScheduled}
	}
	norm, err := rec.Normalize()
	if err != nil {
		return &SchedulingError{Name: sub.Name, Recurrence: rec, Err: err}
	}

	yk, mk, dk, hk := fieldKey(norm.Year), fieldKey(norm.Month), fieldKey(norm.Day), fieldKey(norm.Hour)
	months, ok := c.years[yk]
	if !ok {
		months = make(monthIndex)
		c.years[yk] = months
	}
	days, ok := months[mk]
	if !ok {
		days = make(dayIndex)
		months[mk] = days
	}
	hours, ok := days[dk]
	if !ok {
		hours = make(hourIndex)
		days[dk] = hours
	}
	hours[hk] = append(hours[hk], sub)

	sub.rec = norm
	sub.calendar = c
	sub.removing = false
	c.count++
	return nil
}

// ResolveDue returns every subscription matching now: at each level both the
// exact bucket and the wildcard bucket are visited and merged. Subscriptions
// already marked for removal are left out. The result order is deterministic.
func (c *Calendar) ResolveDue(now clock.Instant) []*Subscription {
	var due []*Subscription
	for _, yk := range [2]int{now.Year, anyKey} {
		months := c.years[yk]
		for _, mk := range [2]int{int(now.Month), anyKey} {
			days := months[mk]
			for _, dk := range [2]int{now.Day, anyKey} {
				hours := days[dk]
				for _, hk := range [2]int{now.Hour, anyKey} {
					for _, sub := range hours[hk] {
						if !sub.removing {
							due = append(due, sub)
						}
					}
				}
			}
		}
	}
	return due
}

// Remove marks sub for removal. It stays in the index until ApplyRemovals
// but is no longer returned by ResolveDue. Removing twice, or removing a
// subscription from another calendar, is a no-op.
func (c *Calendar) Remove(sub *Subscription) {
	if sub == nil || sub.calendar != c || sub.removing {
		return
	}
	sub.removing = true
	c.pending = append(c.pending, sub)
}

// ApplyRemovals deletes every marked subscription from the index, pruning
// empty buckets, and returns how many were removed.
func (c *Calendar) ApplyRemovals() int {
	n := 0
	for _, sub := range c.pending {
		if c.unlink(sub) {
			n++
		}
	}
	clear(c.pending)
	c.pending = c.pending[:0]
	return n
}

func (c *Calendar) unlink(sub *Subscription) bool {
	if sub.calendar != c {
		return false
	}
	yk, mk, dk, hk := fieldKey(sub.rec.Year), fieldKey(sub.rec.Month), fieldKey(sub.rec.Day), fieldKey(sub.rec.Hour)
	months := c.years[yk]
	days := months[mk]
	hours := days[dk]
	bucket := hours[hk]

	found := false
	for i, s := range bucket {
		if s == sub {
			bucket = append(bucket[:i], bucket[i+1:]...)
			found = true
			break
		}
	}
	sub.calendar = nil
	if !found {
		return false
	}
	c.count--

	if len(bucket) > 0 {
		hours[hk] = bucket
		return true
	}
	delete(hours, hk)
	if len(hours) == 0 {
		delete(days, dk)
	}
	if len(days) == 0 {
		delete(months, mk)
	}
	if len(months) == 0 {
		delete(c.years, yk)
	}
	return true
}

// Len returns the number of live subscriptions (scheduled and not marked).
func (c *Calendar) Len() int { return c.count - len(c.pending) }

// Pending returns how many subscriptions are marked but not yet removed.
func (c *Calendar) Pending() int { return len(c.pending) }

// Reset removes every subscription.
func (c *Calendar) Reset() {
	for _, months := range c.years {
		for _, days := range months {
			for _, hours := range days {
				for _, bucket := range hours {
					for _, sub := range bucket {
						sub.calendar = nil
						sub.removing = false
					}
				}
			}
		}
	}
	c.years = make(yearIndex)
	c.count = 0
	c.pending = nil
}
