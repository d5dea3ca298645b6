package racedata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"racecal/internal/model"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number, a numeric string or an empty string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	n, err := atoiOrZero(string(s))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func atoiOrZero(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return int(fl), nil
}

// jsonRace is one record of the JSON race table. Older exports used
// "title" instead of "race".
type jsonRace struct {
	ID        flexString `json:"id"`
	Race      string     `json:"race"`
	Title     string     `json:"title"`
	ShortName string     `json:"shortName"`
	StartDate string     `json:"startDate"`
	EndDate   string     `json:"endDate"`
	Category  string     `json:"category"`
	Variant   flexInt    `json:"variant"`
	NumRiders flexInt    `json:"numRiders"`
	Block     flexInt    `json:"block"`
	SubBlock  flexInt    `json:"subBlock"`
}

// ReadJSON decodes a JSON array of race records.
func (l *Loader) ReadJSON(r io.Reader, source string) ([]model.Event, error) {
	var recs []jsonRace
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("racedata: decode %s: %w", source, err)
	}

	rows := make([]row, 0, len(recs))
	for _, rec := range recs {
		name := rec.Race
		if name == "" {
			name = rec.Title
		}
		rows = append(rows, row{
			ID:        string(rec.ID),
			Name:      name,
			ShortName: rec.ShortName,
			StartDate: rec.StartDate,
			EndDate:   rec.EndDate,
			Category:  rec.Category,
			Variant:   int(rec.Variant),
			NumRiders: int(rec.NumRiders),
			Block:     int(rec.Block),
			SubBlock:  int(rec.SubBlock),
		})
	}
	return l.normalize(rows, source)
}
