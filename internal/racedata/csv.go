package racedata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"racecal/internal/model"
)

// csvColumns maps accepted header names (lower-cased) to row fields.
var csvColumns = map[string]string{
	"id":        "id",
	"race":      "name",
	"title":     "name",
	"name":      "name",
	"shortname": "shortName",
	"startdate": "startDate",
	"start":     "startDate",
	"enddate":   "endDate",
	"end":       "endDate",
	"category":  "category",
	"variant":   "variant",
	"numriders": "numRiders",
	"riders":    "numRiders",
	"block":     "block",
	"subblock":  "subBlock",
}

var requiredCSVFields = []string{"id", "name", "startDate", "endDate", "category"}

// ReadCSV reads a race table with a header row. Header names are matched
// case-insensitively; unknown columns are ignored.
func (l *Loader) ReadCSV(r io.Reader, source string) ([]model.Event, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("racedata: %s: reading CSV header: %w", source, err)
	}

	index := make(map[string]int)
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if field, ok := csvColumns[key]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	for _, f := range requiredCSVFields {
		if _, ok := index[f]; !ok {
			return nil, fmt.Errorf("racedata: %s: column %q not found in CSV header %v", source, f, header)
		}
	}

	get := func(rec []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []row
	var errs []error
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("racedata: %s: reading CSV: %w", source, err)
		}

		var ints [4]int
		for i, f := range []string{"variant", "numRiders", "block", "subBlock"} {
			n, convErr := atoiOrZero(get(rec, f))
			if convErr != nil {
				errs = append(errs, fmt.Errorf("racedata: %s line %d: %s: %w", source, line, f, convErr))
			}
			ints[i] = n
		}

		rows = append(rows, row{
			ID:        get(rec, "id"),
			Name:      get(rec, "name"),
			ShortName: get(rec, "shortName"),
			StartDate: get(rec, "startDate"),
			EndDate:   get(rec, "endDate"),
			Category:  get(rec, "category"),
			Variant:   ints[0],
			NumRiders: ints[1],
			Block:     ints[2],
			SubBlock:  ints[3],
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return l.normalize(rows, source)
}
