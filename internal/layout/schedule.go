package layout

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"racecal/internal/model"
)

// Row is the layout of one display range.
type Row struct {
	Range model.DisplayRange

	// Events are the clipped, layered events in caller order.
	Events []model.ClippedEvent

	// LayerCount sizes the row; 0 when the row is empty.
	LayerCount int

	// Renderable is false for degenerate ranges (no horizontal scale) and
	// for rows that failed.
	Renderable bool

	// Err is set when this range could not be laid out. Other rows are
	// unaffected.
	Err error
}

// Options tune Build.
type Options struct {
	// Categories filters events before projection. Nil means all.
	Categories model.CategorySet

	// Workers > 1 lays out ranges concurrently with at most that many
	// goroutines. Row order never depends on it.
	Workers int
}

// Build validates events, applies the category filter and lays out every
// range. Malformed events fail the whole build; problems with a single
// range are reported on its Row.
func Build(events []model.Event, ranges []model.DisplayRange, opts Options) ([]Row, error) {
	if err := ValidateEvents(events); err != nil {
		return nil, err
	}

	active := make([]model.Event, 0, len(events))
	for _, e := range events {
		if opts.Categories.Allows(e.Category) {
			active = append(active, e)
		}
	}

	rows := make([]Row, len(ranges))

	if opts.Workers <= 1 {
		for i, r := range ranges {
			rows[i] = BuildRow(r, active)
		}
		return rows, nil
	}

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, r := range ranges {
		g.Go(func() error {
			rows[i] = BuildRow(r, active)
			return nil
		})
	}
	// BuildRow never returns an error through the group.
	_ = g.Wait()

	return rows, nil
}

// ValidateEvents checks every event and joins all failures.
func ValidateEvents(events []model.Event) error {
	var errs []error
	for _, e := range events {
		if err := e.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildRow lays out a single range from already validated and filtered
// events. A panic while laying out the range is reported on Row.Err.
func BuildRow(r model.DisplayRange, events []model.Event) (row Row) {
	row.Range = r

	defer func() {
		if p := recover(); p != nil {
			row = Row{Range: r, Err: fmt.Errorf("layout: range %q: %v", r.Label, p)}
		}
	}()

	if err := r.Validate(); err != nil {
		row.Err = err
		return row
	}

	row.Events, row.LayerCount = AssignLayers(Project(r, events))
	row.Renderable = !r.Degenerate()
	return row
}
