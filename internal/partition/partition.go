// Package partition builds the display ranges a year is split into: either
// hand-curated racing blocks or calendar months.
package partition

import (
	"fmt"
	"strings"
	"time"

	"racecal/internal/config"
	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// View selects the partition scheme.
type View string

const (
	ViewBlocks View = "blocks"
	ViewMonths View = "months"
)

// ParseView accepts "blocks" or "months" (case-insensitive). Empty means blocks.
func ParseView(s string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewBlocks:
		return ViewBlocks, nil
	case ViewMonths:
		return ViewMonths, nil
	default:
		return "", fmt.Errorf("partition: unknown view %q (want blocks or months)", s)
	}
}

// Blocks converts configured block definitions into display ranges. Blocks
// may overlap or share boundary dates; that is not treated as an error.
func Blocks(defs []config.BlockConfig) ([]model.DisplayRange, error) {
	out := make([]model.DisplayRange, 0, len(defs))
	for i, d := range defs {
		start, err := time.Parse(model.DateLayout, d.Start)
		if err != nil {
			return nil, fmt.Errorf("partition: block %d (%s): start: %w", i+1, d.Label, err)
		}
		end, err := time.Parse(model.DateLayout, d.End)
		if err != nil {
			return nil, fmt.Errorf("partition: block %d (%s): end: %w", i+1, d.Label, err)
		}

		label := d.Label
		if label == "" {
			label = fmt.Sprintf("Block %d: %s – %s", i+1, start.Format("2 Jan"), end.Format("2 Jan"))
		}
		out = append(out, model.DisplayRange{Label: label, Start: start, End: end})
	}
	return out, nil
}

// Months returns one range per calendar month of year, starting in January,
// each spanning its first to last day.
func Months(year, count int) []model.DisplayRange {
	if count <= 0 || count > 12 {
		count = 12
	}
	out := make([]model.DisplayRange, 0, count)
	for i := 0; i < count; i++ {
		first := model.Date(year, time.January+time.Month(i), 1)
		out = append(out, model.DisplayRange{
			Label: first.Month().String(),
			Start: first,
			End:   first.AddDate(0, 1, -1),
		})
	}
	return out
}

// ForView returns the ranges for view as configured in cfg.
func ForView(cfg *config.Config, view View) ([]model.DisplayRange, error) {
	switch view {
	case ViewMonths:
		return Months(cfg.Year, cfg.MonthCount), nil
	case ViewBlocks:
		ranges, err := Blocks(cfg.Blocks)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			if r.End.Year() < cfg.Year || r.Start.Year() > cfg.Year {
				appLog.Warn("block lies outside the season year",
					"block", r.Label,
					"start", r.Start.Format(model.DateLayout),
					"year", cfg.Year,
				)
			}
		}
		return ranges, nil
	default:
		return nil, fmt.Errorf("partition: unknown view %q", view)
	}
}
