package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidEvent is returned by Event.Validate for malformed events.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidRange is returned by DisplayRange.Validate when Start is after End.
	ErrInvalidRange = errors.New("invalid display range")
)

// Category is a race category label (e.g. "World Tour Race"). The layout
// engine only uses it for filtering; colors live in the presentation layer.
type Category string

// CategorySet is the active category filter.
//
// A nil set means "no filter". A non-nil empty set filters everything out,
// matching a UI where every checkbox was unticked.
type CategorySet map[Category]struct{}

// NewCategorySet builds a set from labels.
func NewCategorySet(labels ...Category) CategorySet {
	s := make(CategorySet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

// Allows reports whether events of category c pass the filter.
func (s CategorySet) Allows(c Category) bool {
	if s == nil {
		return true
	}
	_, ok := s[c]
	return ok
}

// Event is a single race as loaded from a data source. All dates are
// calendar dates normalized with DateOf.
type Event struct {
	ID        string
	Name      string
	ShortName string

	Start time.Time
	End   time.Time

	Category Category

	// Opaque payload carried through to the presentation layer.
	Variant   int
	NumRiders int
	Block     int
	SubBlock  int

	// Source identifies where the event came from (races file, ICS id).
	Source string
}

// Validate checks the ingestion invariants. Malformed events are rejected
// rather than having their endpoints swapped.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty id (name %q)", ErrInvalidEvent, e.Name)
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return fmt.Errorf("%w: %s: missing start or end date", ErrInvalidEvent, e.ID)
	}
	if DateOf(e.Start).After(DateOf(e.End)) {
		return fmt.Errorf("%w: %s: start %s is after end %s",
			ErrInvalidEvent, e.ID, e.Start.Format(DateLayout), e.End.Format(DateLayout))
	}
	return nil
}

// Days returns the inclusive number of calendar days (stages) the event spans.
func (e Event) Days() int {
	return int(DateOf(e.End).Sub(DateOf(e.Start)).Hours()/24) + 1
}

// DisplayRange is a named period of the year (a block or a month) rendered
// as one timeline row. Adjacent ranges may share boundary dates.
type DisplayRange struct {
	Label string
	Start time.Time
	End   time.Time
}

func (r DisplayRange) Validate() error {
	if DateOf(r.Start).After(DateOf(r.End)) {
		return fmt.Errorf("%w: %q: start %s is after end %s",
			ErrInvalidRange, r.Label, r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return nil
}

// Degenerate reports a zero-duration range, for which horizontal offsets
// are undefined.
func (r DisplayRange) Degenerate() bool {
	return DateOf(r.Start).Equal(DateOf(r.End))
}

// ClippedEvent is an Event projected into one DisplayRange. It is derived
// fresh for every range and never shared across ranges.
type ClippedEvent struct {
	Event

	ClippedStart time.Time
	ClippedEnd   time.Time

	// Layer is the horizontal track within the range, assigned by the
	// layer assigner.
	Layer int
}

// DateLayout is the canonical textual date format.
const DateLayout = "2006-01-02"

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar day of t (in t's own location) as midnight UTC,
// so that dates from different zones compare day-by-day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}
