package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

const (
	defaultMaxOccurrencesPerRace = 400
)

// CategoryResolver maps free-text category labels onto the configured set.
// racedata.Loader implements it.
type CategoryResolver interface {
	Category(label string) (model.Category, error)
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive date window (usually the
	// season) races must overlap to be kept.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerRace caps RRULE expansion. If zero,
	// defaultMaxOccurrencesPerRace is used.
	MaxOccurrencesPerRace int

	// Categories resolves VEVENT CATEGORIES and the source default.
	Categories CategoryResolver
}

// ExpandResult wraps the expanded races and truncation info.
type ExpandResult struct {
	Events []model.Event
	// TruncatedUIDs records UIDs that hit the MaxOccurrencesPerRace cap.
	TruncatedUIDs []string
}

// ExpandRaces turns parsed races into model events within the configured
// window. It handles:
//
//   - single races
//   - RRULE-based recurring races (e.g. a yearly one-day classic)
//   - EXDATE for cancelled editions
//   - RECURRENCE-ID overrides (moved editions)
//
// Races whose category cannot be resolved are logged and skipped. Output
// keeps the order of the calendar; occurrences of one race are in date order.
func ExpandRaces(races []ParsedRace, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Categories == nil {
		return result, errors.New("expand: no category resolver")
	}
	if cfg.MaxOccurrencesPerRace <= 0 {
		cfg.MaxOccurrencesPerRace = defaultMaxOccurrencesPerRace
	}

	overridesByUID := make(map[string][]ParsedRace)
	for _, r := range races {
		if r.IsOverride && r.Recurrence != nil {
			overridesByUID[r.UID] = append(overridesByUID[r.UID], r)
		}
	}

	events := make([]model.Event, 0, len(races))
	for _, r := range races {
		if r.IsOverride && r.Recurrence != nil {
			continue
		}
		ov := overridesByUID[r.UID]

		var occ []model.Event
		var hitCap bool
		var err error
		if r.RawRRule == "" {
			occ, err = expandSingle(r, ov, cfg)
		} else {
			occ, hitCap, err = expandRecurring(r, ov, cfg)
		}
		if err != nil {
			appLog.Error("expand: race skipped", err, "uid", r.UID, "source", r.Source.ID)
			continue
		}
		if hitCap {
			result.TruncatedUIDs = append(result.TruncatedUIDs, r.UID)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", r.UID,
				"cap", cfg.MaxOccurrencesPerRace,
			)
		}
		events = append(events, occ...)
	}

	result.Events = events
	return result, nil
}

func expandSingle(r ParsedRace, overrides []ParsedRace, cfg ExpandConfig) ([]model.Event, error) {
	start, end, src := r.Start, r.End, r
	if o, ok := findOverride(overrides, r.Start); ok {
		start, end, src = o.Start, o.End, o
	}
	if end.Before(cfg.RangeStart) || start.After(cfg.RangeEnd) {
		return nil, nil
	}

	ev, err := makeEvent(src, r.UID, start, end, cfg.Categories)
	if err != nil {
		return nil, err
	}
	return []model.Event{ev}, nil
}

func expandRecurring(r ParsedRace, overrides []ParsedRace, cfg ExpandConfig) ([]model.Event, bool, error) {
	rule, err := rrule.StrToRRule(r.RawRRule)
	if err != nil {
		return nil, false, fmt.Errorf("parse RRULE %q: %w", r.RawRRule, err)
	}
	rule.DTStart(r.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range r.ExDates {
		set.ExDate(ex)
	}

	// Include editions that start before the window but run into it.
	days := int(r.End.Sub(r.Start).Hours() / 24)
	starts := set.Between(cfg.RangeStart.AddDate(0, 0, -days), cfg.RangeEnd, true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerRace {
		starts = starts[:cfg.MaxOccurrencesPerRace]
		hitCap = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		s = model.DateOf(s)
		start, end, src := s, s.AddDate(0, 0, days), r
		if o, ok := findOverride(overrides, s); ok {
			start, end, src = o.Start, o.End, o
		}

		id := r.UID + "#" + s.Format(model.DateLayout)
		ev, err := makeEvent(src, id, start, end, cfg.Categories)
		if err != nil {
			return nil, false, err
		}
		out = append(out, ev)
	}
	return out, hitCap, nil
}

// findOverride returns the override whose RECURRENCE-ID falls on day.
func findOverride(overrides []ParsedRace, day time.Time) (ParsedRace, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(day) {
			return ov, true
		}
	}
	return ParsedRace{}, false
}

// makeEvent builds a validated model.Event, preferring a VEVENT category
// that names a known label over the source default.
func makeEvent(r ParsedRace, id string, start, end time.Time, res CategoryResolver) (model.Event, error) {
	cat, err := resolveCategory(r, res)
	if err != nil {
		return model.Event{}, err
	}

	ev := model.Event{
		ID:       id,
		Name:     r.Summary,
		Start:    start,
		End:      end,
		Category: cat,
		Source:   r.Source.ID,
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func resolveCategory(r ParsedRace, res CategoryResolver) (model.Category, error) {
	for _, c := range r.Categories {
		if cat, err := res.Category(c); err == nil {
			return cat, nil
		}
	}
	if r.Source.Category == "" {
		return "", fmt.Errorf("no known category for %q (categories %v)", r.Summary, r.Categories)
	}
	return res.Category(r.Source.Category)
}
