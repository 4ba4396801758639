package clock

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecurrence is wrapped by every recurrence validation failure.
var ErrInvalidRecurrence = errors.New("invalid recurrence")

type fieldKind uint8

const (
	fieldUnset fieldKind = iota
	fieldEvery
	fieldExact
)

// Field is one calendar level of a Recurrence: either a wildcard that matches
// every value or an exact value. The zero Field is unspecified.
type Field struct {
	kind  fieldKind
	value int
}

// Every matches any value at its level.
var Every = Field{kind: fieldEvery}

// Exact matches only v at its level.
func Exact(v int) Field { return Field{kind: fieldExact, value: v} }

// IsEvery reports whether f is the wildcard.
func (f Field) IsEvery() bool { return f.kind == fieldEvery }

// IsSet reports whether f was specified at all.
func (f Field) IsSet() bool { return f.kind != fieldUnset }

// Value returns the exact value and true, or 0 and false for a wildcard.
func (f Field) Value() (int, bool) {
	if f.kind != fieldExact {
		return 0, false
	}
	return f.value, true
}

// Matches reports whether v is accepted at this level.
func (f Field) Matches(v int) bool {
	return f.kind == fieldEvery || (f.kind == fieldExact && f.value == v)
}

func (f Field) String() string {
	switch f.kind {
	case fieldEvery:
		return "*"
	case fieldExact:
		return fmt.Sprintf("%d", f.value)
	default:
		return "?"
	}
}

// Recurrence selects the instants at which a subscription fires.
type Recurrence struct {
	Year  Field
	Month Field
	Day   Field
	Hour  Field
}

// Hourly fires at every hour.
func Hourly() Recurrence { return Recurrence{Every, Every, Every, Every} }

// Daily fires once a day at hour.
func Daily(hour int) Recurrence { return Recurrence{Every, Every, Every, Exact(hour)} }

// Monthly fires once a month on day at hour.
func Monthly(day, hour int) Recurrence {
	return Recurrence{Every, Every, Exact(day), Exact(hour)}
}

// Yearly fires once a year.
func Yearly(month time.Month, day, hour int) Recurrence {
	return Recurrence{Every, Exact(int(month)), Exact(day), Exact(hour)}
}

// Once fires only at the given instant.
func Once(at Instant) Recurrence {
	return Recurrence{Exact(at.Year), Exact(int(at.Month)), Exact(at.Day), Exact(at.Hour)}
}

// Normalize validates r and fills unspecified year, month and day levels with
// Every. The hour level must always be given explicitly.
func (r Recurrence) Normalize() (Recurrence, error) {
	if !r.Hour.IsSet() {
		return r, fmt.Errorf("%w: hour not specified", ErrInvalidRecurrence)
	}
	if !r.Year.IsSet() {
		r.Year = Every
	}
	if !r.Month.IsSet() {
		r.Month = Every
	}
	if !r.Day.IsSet() {
		r.Day = Every
	}

	if v, ok := r.Year.Value(); ok && v < 1 {
		return r, fmt.Errorf("%w: year %d", ErrInvalidRecurrence, v)
	}
	if v, ok := r.Month.Value(); ok && (v < 1 || v > 12) {
		return r, fmt.Errorf("%w: month %d", ErrInvalidRecurrence, v)
	}
	if v, ok := r.Day.Value(); ok && (v < 1 || v > 31) {
		return r, fmt.Errorf("%w: day %d", ErrInvalidRecurrence, v)
	}
	if v, ok := r.Hour.Value(); ok && (v < 0 || v > 23) {
		return r, fmt.Errorf("%w: hour %d", ErrInvalidRecurrence, v)
	}
	return r, nil
}

// Matches reports whether the recurrence selects instant i.
func (r Recurrence) Matches(i Instant) bool {
	return r.Year.Matches(i.Year) &&
		r.Month.Matches(int(i.Month)) &&
		r.Day.Matches(i.Day) &&
		r.Hour.Matches(i.Hour)
}

func (r Recurrence) String() string {
	return fmt.Sprintf("%s-%s-%s %sh", r.Year, r.Month, r.Day, r.Hour)
}
