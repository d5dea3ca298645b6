// Package racedata loads race tables (JSON exports of the season
// spreadsheet, or the spreadsheet as CSV) and normalizes them into
// model.Event values.
//
// Row order is preserved: it is the tie-break order of the layer assigner.
package racedata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// ErrUnknownCategory is returned for categories outside the configured set.
var ErrUnknownCategory = errors.New("unknown category")

// Loader normalizes raw rows against a fixed category label set.
type Loader struct {
	categories map[string]model.Category
}

// NewLoader returns a Loader accepting the given category labels,
// matched case-insensitively.
func NewLoader(labels []string) *Loader {
	l := &Loader{categories: make(map[string]model.Category, len(labels))}
	for _, label := range labels {
		l.categories[foldKey(label)] = model.Category(label)
	}
	return l
}

// foldKey collapses whitespace and case. A Caser is stateful, so each call
// gets its own.
func foldKey(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// Category resolves a free-text category to its canonical label.
func (l *Loader) Category(s string) (model.Category, error) {
	c, ok := l.categories[foldKey(s)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// LoadFile reads a .json or .csv race table.
func (l *Loader) LoadFile(path string) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("racedata: open %s: %w", path, err)
	}
	defer f.Close()

	source := filepath.Base(path)

	var events []model.Event
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		events, err = l.ReadJSON(f, source)
	case ".csv":
		events, err = l.ReadCSV(f, source)
	default:
		return nil, fmt.Errorf("racedata: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	appLog.Info("race table loaded", "path", path, "race_count", len(events))
	return events, nil
}

// row is the source-independent shape of one race record.
type row struct {
	ID        string
	Name      string
	ShortName string
	StartDate string
	EndDate   string
	Category  string
	Variant   int
	NumRiders int
	Block     int
	SubBlock  int
}

// normalize converts rows into validated events. Every bad row is reported;
// if any row is bad no events are returned.
func (l *Loader) normalize(rows []row, source string) ([]model.Event, error) {
	events := make([]model.Event, 0, len(rows))
	seen := make(map[string]int, len(rows))
	var errs []error

	for i, r := range rows {
		ev, err := l.toEvent(r, source)
		if err == nil {
			if prev, dup := seen[ev.ID]; dup {
				err = fmt.Errorf("duplicate id %q (first seen in row %d)", ev.ID, prev)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("racedata: %s row %d: %w", source, i+1, err))
			continue
		}
		seen[ev.ID] = i + 1
		events = append(events, ev)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return events, nil
}

func (l *Loader) toEvent(r row, source string) (model.Event, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return model.Event{}, fmt.Errorf("startDate: %w", err)
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return model.Event{}, fmt.Errorf("endDate: %w", err)
	}
	cat, err := l.Category(r.Category)
	if err != nil {
		return model.Event{}, err
	}

	ev := model.Event{
		ID:        strings.TrimSpace(r.ID),
		Name:      strings.TrimSpace(r.Name),
		ShortName: strings.TrimSpace(r.ShortName),
		Start:     start,
		End:       end,
		Category:  cat,
		Variant:   r.Variant,
		NumRiders: r.NumRiders,
		Block:     r.Block,
		SubBlock:  r.SubBlock,
		Source:    source,
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

var dateLayouts = []string{
	model.DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
}

// ParseDate parses a calendar date in one of the accepted layouts and
// returns it as a model date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q", s)
}
