package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// ParsedRace is the normalized representation of a VEVENT from a race
// calendar. Start and End are inclusive calendar dates (model.DateOf).
type ParsedRace struct {
	Source Source

	UID string

	Summary     string
	Description string
	Location    string
	Categories  []string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID as a calendar date
	IsOverride bool       // true if this VEVENT overrides one recurring instance
}

// ParseICS parses a single ICS payload into races.
//
//   - Timed DTSTART/DTEND values are converted to loc before taking the
//     calendar date.
//   - All-day DTEND is exclusive (RFC 5545), so the last race day is the
//     day before it.
//   - RRULE/EXDATE/RECURRENCE-ID are recorded but expanded in expand.go.
//
// A VEVENT that cannot be parsed is logged and skipped.
func ParseICS(src Source, body []byte, loc *time.Location) ([]ParsedRace, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	races := make([]ParsedRace, 0)
	for _, comp := range cal.Events() {
		r, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		races = append(races, r)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "race_count", len(races))
	return races, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedRace, error) {
	var out ParsedRace
	out.Source = src

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Categories = append(out.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := parseICSDate(dtStart.Value)
		if err != nil {
			return out, err
		}
		out.Start = start
		out.End = start
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseICSDate(dtEnd.Value); err == nil && end.After(start) {
				out.End = end.AddDate(0, 0, -1)
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.Start = model.DateOf(start.In(loc))
		out.End = out.Start
		if end, err := ve.GetEndAt(); err == nil && end.After(start) {
			// An end at exactly midnight does not occupy that day.
			out.End = model.DateOf(end.In(loc).Add(-time.Nanosecond))
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := propertyDate(part, p.ICalParameters, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := propertyDate(ridProp.Value, ridProp.ICalParameters, loc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// isDateValue reports a VALUE=DATE property or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// propertyDate returns the calendar date of an EXDATE or RECURRENCE-ID value
// as seen in loc, so it lines up with DTSTART. UTC ("Z") and TZID times are
// converted to loc; floating times are read as loc wall clock.
func propertyDate(v string, params map[string][]string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, "T") {
		return parseICSDate(v)
	}

	var (
		t   time.Time
		err error
	)
	if strings.HasSuffix(v, "Z") {
		t, err = time.ParseInLocation(icsTimestampUTC, v, time.UTC)
	} else {
		in := loc
		if tz := params["TZID"]; len(tz) > 0 {
			if in, err = time.LoadLocation(tz[0]); err != nil {
				return time.Time{}, err
			}
		}
		t, err = time.ParseInLocation(icsTimestampLocal, v, in)
	}
	if err != nil {
		return time.Time{}, err
	}
	return model.DateOf(t.In(loc)), nil
}

const (
	icsTimestampUTC   = "20060102T150405Z"
	icsTimestampLocal = "20060102T150405"
)

// parseICSDate returns the calendar date of a DATE or DATE-TIME value.
// The clock part, if any, is ignored; races are day-granular.
func parseICSDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, errors.New("invalid ICS date " + v)
	}
	t, err := time.Parse("20060102", v[:8])
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
