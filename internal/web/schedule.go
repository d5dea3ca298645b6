package web

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"racecal/internal/layout"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/partition"
)

// scheduleQuery is the parsed form of ?view=&category=.
type scheduleQuery struct {
	view       partition.View
	categories model.CategorySet // nil means every category
}

func (q scheduleQuery) key() string {
	if q.categories == nil {
		return string(q.view) + "|*"
	}
	labels := make([]string, 0, len(q.categories))
	for c := range q.categories {
		labels = append(labels, string(c))
	}
	slices.Sort(labels)
	return string(q.view) + "|" + strings.Join(labels, ",")
}

// scheduleCache holds the rows built for one query at one generation.
type scheduleCache struct {
	generation uint64
	rows       []layout.Row
}

// parseQuery reads the view and the category filter. "category" may repeat
// and may hold comma-separated labels; without it the configured default
// filter applies.
func (s *Server) parseQuery(r *http.Request) (scheduleQuery, error) {
	q := r.URL.Query()

	viewName := q.Get("view")
	if viewName == "" {
		viewName = s.cfg.View
	}
	view, err := partition.ParseView(viewName)
	if err != nil {
		return scheduleQuery{}, err
	}

	raw, present := q["category"]
	if !present {
		return scheduleQuery{view: view, categories: s.defaultCategories()}, nil
	}

	set := model.NewCategorySet()
	for _, v := range raw {
		for _, label := range strings.Split(v, ",") {
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			cat, err := s.loader.Category(label)
			if err != nil {
				return scheduleQuery{}, err
			}
			set[cat] = struct{}{}
		}
	}
	return scheduleQuery{view: view, categories: set}, nil
}

// defaultCategories is the configured active set, or nil when none is set.
func (s *Server) defaultCategories() model.CategorySet {
	if len(s.cfg.ActiveCategories) == 0 {
		return nil
	}
	set := model.NewCategorySet()
	for _, label := range s.cfg.ActiveCategories {
		cat, err := s.loader.Category(label)
		if err != nil {
			appLog.Warn("ignoring unknown active category", "category", label)
			continue
		}
		set[cat] = struct{}{}
	}
	return set
}

// rows returns the laid-out schedule for q, reusing the cached layout while
// the catalog generation is unchanged.
func (s *Server) rows(q scheduleQuery) ([]layout.Row, uint64, error) {
	snap := s.catalog.Snapshot()
	key := q.key()

	s.cacheMu.Lock()
	if c, ok := s.cache[key]; ok && c.generation == snap.Generation {
		s.cacheMu.Unlock()
		return c.rows, snap.Generation, nil
	}
	s.cacheMu.Unlock()

	ranges, err := partition.ForView(s.cfg, q.view)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	rows, err := layout.Build(snap.Events, ranges, layout.Options{
		Categories: q.categories,
		Workers:    s.cfg.Workers,
	})
	if err != nil {
		return nil, 0, err
	}
	for _, row := range rows {
		if row.Err != nil {
			appLog.Error("schedule row failed", row.Err, "range", row.Range.Label)
		}
	}
	appLog.Debug("schedule laid out",
		"view", q.view,
		"rows", len(rows),
		"race_count", len(snap.Events),
		"generation", snap.Generation,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.cacheMu.Lock()
	s.cache[key] = &scheduleCache{generation: snap.Generation, rows: rows}
	s.cacheMu.Unlock()

	return rows, snap.Generation, nil
}

// ScheduleResponse is the JSON response shape for /api/schedule.
type ScheduleResponse struct {
	View       string   `json:"view"`
	Generation uint64   `json:"generation"`
	Categories []string `json:"categories,omitempty"`
	Rows       []RowDTO `json:"rows"`
}

type RowDTO struct {
	Label      string     `json:"label"`
	Start      string     `json:"start"`
	End        string     `json:"end"`
	LayerCount int        `json:"layer_count"`
	Renderable bool       `json:"renderable"`
	Error      string     `json:"error,omitempty"`
	Events     []EventDTO `json:"events"`
}

type EventDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ShortName    string  `json:"short_name,omitempty"`
	Category     string  `json:"category"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	ClippedStart string  `json:"clipped_start"`
	ClippedEnd   string  `json:"clipped_end"`
	Layer        int     `json:"layer"`
	Left         float64 `json:"left"`
	Width        float64 `json:"width"`
	Stages       int     `json:"stages"`
	Variant      int     `json:"variant,omitempty"`
	NumRiders    int     `json:"num_riders,omitempty"`
	Block        int     `json:"block,omitempty"`
	SubBlock     int     `json:"sub_block,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// NewScheduleResponse converts rows into their JSON form.
func NewScheduleResponse(view partition.View, generation uint64, categories model.CategorySet, rows []layout.Row) ScheduleResponse {
	resp := ScheduleResponse{
		View:       string(view),
		Generation: generation,
		Rows:       make([]RowDTO, 0, len(rows)),
	}
	if categories != nil {
		resp.Categories = make([]string, 0, len(categories))
		for c := range categories {
			resp.Categories = append(resp.Categories, string(c))
		}
		slices.Sort(resp.Categories)
	}

	for _, row := range rows {
		dto := RowDTO{
			Label:      row.Range.Label,
			Start:      row.Range.Start.Format(model.DateLayout),
			End:        row.Range.End.Format(model.DateLayout),
			LayerCount: row.LayerCount,
			Renderable: row.Renderable,
			Events:     make([]EventDTO, 0, len(row.Events)),
		}
		if row.Err != nil {
			dto.Error = row.Err.Error()
		}
		for _, c := range row.Events {
			e := EventDTO{
				ID:           c.ID,
				Name:         c.Name,
				ShortName:    c.ShortName,
				Category:     string(c.Category),
				Start:        c.Start.Format(model.DateLayout),
				End:          c.End.Format(model.DateLayout),
				ClippedStart: c.ClippedStart.Format(model.DateLayout),
				ClippedEnd:   c.ClippedEnd.Format(model.DateLayout),
				Layer:        c.Layer,
				Stages:       c.Days(),
				Variant:      c.Variant,
				NumRiders:    c.NumRiders,
				Block:        c.Block,
				SubBlock:     c.SubBlock,
				Source:       c.Source,
			}
			// Degenerate rows have no horizontal scale; left/width stay 0.
			if p, err := layout.Place(c, row.Range); err == nil {
				e.Left, e.Width = p.Left, p.Width
			}
			dto.Events = append(dto.Events, e)
		}
		resp.Rows = append(resp.Rows, dto)
	}
	return resp
}

// Schedule lays out view with the configured default category filter and
// returns both the JSON form and the SVG rendering. Used by one-shot runs.
func (s *Server) Schedule(view partition.View) (ScheduleResponse, []byte, error) {
	q := scheduleQuery{view: view, categories: s.defaultCategories()}
	rows, gen, err := s.rows(q)
	if err != nil {
		return ScheduleResponse{}, nil, err
	}
	return NewScheduleResponse(q.view, gen, q.categories, rows), s.svg(q, rows), nil
}

// handleSchedule returns the laid-out rows for the requested view.
//
// GET /api/schedule?view=months&category=World+Tour+Race,Grand+Tour+Race
//   - view:     blocks (default from config) or months
//   - category: repeatable, comma separated; absent means the configured default
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, gen, err := s.rows(q)
	if err != nil {
		s.layoutFailed(w, err)
		return
	}

	writeJSON(w, http.StatusOK, NewScheduleResponse(q.view, gen, q.categories, rows))
}

func (s *Server) handleScheduleSVG(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, _, err := s.rows(q)
	if err != nil {
		s.layoutFailed(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.svg(q, rows))
}

func (s *Server) layoutFailed(w http.ResponseWriter, err error) {
	appLog.Error("schedule layout failed", err)
	if errors.Is(err, model.ErrInvalidEvent) {
		writeError(w, http.StatusInternalServerError, "race data is invalid: "+err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("layout failed: %v", err))
}
