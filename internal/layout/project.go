// Package layout projects races onto display ranges and stacks overlapping
// races into non-colliding layers.
//
// Everything here is a pure function of its inputs: callers recompute the
// whole layout whenever the view or the category filter changes.
package layout

import (
	"errors"
	"time"

	"racecal/internal/model"
)

// ErrDegenerateRange is returned when a horizontal offset is requested for a
// zero-duration range.
var ErrDegenerateRange = errors.New("layout: degenerate range has zero duration")

// Overlaps reports whether the closed intervals [aStart, aEnd] and
// [bStart, bEnd] intersect. Touching endpoints count as overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if aStart.After(bEnd) {
		return false
	}
	return true
}

// Project returns a ClippedEvent for every event overlapping r, clipped to
// r's boundaries. Comparison is by calendar day, so a clock time on any
// endpoint is ignored. Output order follows the input order; the layer
// assigner relies on it for tie-breaking.
func Project(r model.DisplayRange, events []model.Event) []model.ClippedEvent {
	rStart, rEnd := model.DateOf(r.Start), model.DateOf(r.End)

	out := make([]model.ClippedEvent, 0, len(events))
	for _, e := range events {
		eStart, eEnd := model.DateOf(e.Start), model.DateOf(e.End)
		if !Overlaps(eStart, eEnd, rStart, rEnd) {
			continue
		}
		out = append(out, model.ClippedEvent{
			Event:        e,
			ClippedStart: clamp(eStart, rStart, rEnd),
			ClippedEnd:   clamp(eEnd, rStart, rEnd),
		})
	}
	return out
}

func clamp(t, lo, hi time.Time) time.Time {
	if t.Before(lo) {
		return lo
	}
	if t.After(hi) {
		return hi
	}
	return t
}

// DaysBetween returns the number of whole calendar days from start to d
// (negative when d is before start).
func DaysBetween(d, start time.Time) int {
	return int(model.DateOf(d).Sub(model.DateOf(start)).Hours() / 24)
}

// OffsetPercent returns d's position within r as a percentage of r's
// duration: 0 at r.Start and 100 at r.End. For a degenerate range it
// returns 0 and ErrDegenerateRange.
func OffsetPercent(d time.Time, r model.DisplayRange) (float64, error) {
	total := DaysBetween(r.End, r.Start)
	if total == 0 {
		return 0, ErrDegenerateRange
	}
	return float64(DaysBetween(d, r.Start)) / float64(total) * 100, nil
}

// Placement is the horizontal geometry of a clipped event within its range,
// in percent of the range width.
type Placement struct {
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// Place computes c's placement within r.
func Place(c model.ClippedEvent, r model.DisplayRange) (Placement, error) {
	left, err := OffsetPercent(c.ClippedStart, r)
	if err != nil {
		return Placement{}, err
	}
	right, err := OffsetPercent(c.ClippedEnd, r)
	if err != nil {
		return Placement{}, err
	}
	return Placement{Left: left, Width: right - left}, nil
}
