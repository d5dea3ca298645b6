// Package render draws laid-out schedule rows as a standalone SVG document.
package render

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"racecal/internal/config"
	"racecal/internal/layout"
	"racecal/internal/model"
)

// Geometry defaults. A row is (layers+1)*LayerHeight pixels tall below its
// header.
const (
	DefaultWidth  = 1400
	LayerHeight   = 50
	headerHeight  = 28
	monthHeight   = 18
	marginX       = 16
	rowGap        = 12
	boxPadding    = 6
	minBoxWidth   = 4.0
	defaultColor  = "#cccccc"
	fontFamily    = "Helvetica, Arial, sans-serif"
	noticeColor   = "#888888"
	boundaryColor = "#dddddd"
)

// Palette maps a category to a CSS color.
type Palette map[model.Category]string

// PaletteFromConfig builds a Palette from the configured categories.
func PaletteFromConfig(cats []config.CategoryConfig) Palette {
	p := make(Palette, len(cats))
	for _, c := range cats {
		if c.Color != "" {
			p[model.Category(c.Label)] = c.Color
		}
	}
	return p
}

func (p Palette) color(c model.Category) string {
	if col, ok := p[c]; ok {
		return col
	}
	return defaultColor
}

// Options control SVG output.
type Options struct {
	Width   int
	Title   string
	Palette Palette
}

// SVG renders rows into an SVG document.
func SVG(rows []layout.Row, opts Options) []byte {
	var b strings.Builder
	_ = Write(&b, rows, opts)
	return []byte(b.String())
}

// Write renders rows to w.
func Write(w io.Writer, rows []layout.Row, opts Options) error {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	plotWidth := float64(width - 2*marginX)

	top := rowGap
	if opts.Title != "" {
		top += headerHeight
	}
	height := top
	for _, row := range rows {
		height += rowHeight(row) + rowGap
	}

	var svg strings.Builder
	svg.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg" font-family="%s">
<rect width="100%%" height="100%%" fill="white"/>
`, width, height, fontFamily))

	if opts.Title != "" {
		svg.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="18" font-weight="bold">%s</text>
`, marginX, rowGap+18, html.EscapeString(opts.Title)))
	}

	y := top
	for _, row := range rows {
		drawRow(&svg, row, y, plotWidth, opts.Palette)
		y += rowHeight(row) + rowGap
	}

	svg.WriteString("</svg>\n")
	_, err := io.WriteString(w, svg.String())
	return err
}

func rowHeight(row layout.Row) int {
	return headerHeight + monthHeight + (row.LayerCount+1)*LayerHeight
}

func drawRow(svg *strings.Builder, row layout.Row, y int, plotWidth float64, palette Palette) {
	svg.WriteString(fmt.Sprintf(`<g class="row"><text x="%d" y="%d" font-size="15" font-weight="bold">%s</text>
`, marginX, y+18, html.EscapeString(row.Range.Label)))

	bodyTop := y + headerHeight + monthHeight
	bodyHeight := (row.LayerCount + 1) * LayerHeight

	if !row.Renderable {
		reason := "zero-length range"
		if row.Err != nil {
			reason = row.Err.Error()
		}
		svg.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="13" fill="%s">Not rendered: %s</text></g>
`, marginX, bodyTop+LayerHeight/2, noticeColor, html.EscapeString(reason)))
		return
	}

	svg.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="%.2f" height="%d" fill="none" stroke="%s"/>
`, marginX, bodyTop, plotWidth, bodyHeight, boundaryColor))

	drawMonths(svg, row.Range, y+headerHeight, bodyTop, bodyHeight, plotWidth)

	if len(row.Events) == 0 {
		svg.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="13" fill="%s">No races in this range</text>
`, marginX+boxPadding, bodyTop+LayerHeight/2, noticeColor))
	}

	for _, c := range row.Events {
		p, err := layout.Place(c, row.Range)
		if err != nil {
			continue
		}
		x := float64(marginX) + p.Left/100*plotWidth
		w := p.Width / 100 * plotWidth
		if w < minBoxWidth {
			w = minBoxWidth
		}
		by := bodyTop + c.Layer*LayerHeight + boxPadding
		bh := LayerHeight - 2*boxPadding

		label := c.ShortName
		if label == "" {
			label = c.Name
		}

		svg.WriteString(fmt.Sprintf(`<g class="race" data-id="%s"><title>%s</title>`,
			html.EscapeString(c.ID), html.EscapeString(tooltip(c.Event))))
		svg.WriteString(fmt.Sprintf(`<rect x="%.2f" y="%d" width="%.2f" height="%d" rx="3" fill="%s" stroke="#333333" stroke-width="1"/>`,
			x, by, w, bh, palette.color(c.Category)))
		svg.WriteString(fmt.Sprintf(`<text x="%.2f" y="%d" font-size="12">%s</text></g>
`, x+3, by+bh/2+4, html.EscapeString(label)))
	}

	svg.WriteString("</g>\n")
}

// drawMonths writes a label and a divider for every month that starts
// within r, plus the month r opens in.
func drawMonths(svg *strings.Builder, r model.DisplayRange, labelTop, bodyTop, bodyHeight int, plotWidth float64) {
	start := model.DateOf(r.Start)
	end := model.DateOf(r.End)

	for m := start; !m.After(end); m = firstOfNextMonth(m) {
		pct, err := layout.OffsetPercent(m, r)
		if err != nil {
			return
		}
		x := float64(marginX) + pct/100*plotWidth
		if m.After(start) {
			svg.WriteString(fmt.Sprintf(`<line x1="%.2f" y1="%d" x2="%.2f" y2="%d" stroke="%s" stroke-dasharray="4,3"/>`,
				x, bodyTop, x, bodyTop+bodyHeight, boundaryColor))
		}
		svg.WriteString(fmt.Sprintf(`<text x="%.2f" y="%d" font-size="12" fill="#555555">%s</text>
`, x+2, labelTop+13, m.Format("Jan")))
	}
}

func firstOfNextMonth(t time.Time) time.Time {
	return model.Date(t.Year(), t.Month()+1, 1)
}

// tooltip is the hover text of a race box.
func tooltip(e model.Event) string {
	stages := "Stages"
	if e.Days() == 1 {
		stages = "Stage"
	}
	lines := []string{
		e.Name,
		"Category: " + string(e.Category),
		fmt.Sprintf("Dates: %s to %s", e.Start.Format("2 Jan"), e.End.Format("2 Jan")),
		fmt.Sprintf("Length: %d %s", e.Days(), stages),
	}
	if e.NumRiders > 0 {
		lines = append(lines, fmt.Sprintf("Riders: %d", e.NumRiders))
	}
	if e.Variant > 0 {
		lines = append(lines, fmt.Sprintf("Variant: %d", e.Variant))
	}
	return strings.Join(lines, "\n")
}
