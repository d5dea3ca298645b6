package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"racecal/internal/layout"
	appLog "racecal/internal/log"
	"racecal/internal/partition"
	"racecal/internal/render"
)

// pageTemplate renders the schedule page. The wrapper carries
// data-ready="true" once the SVG is in the document; the capture package
// waits on it.
var pageTemplate = template.Must(template.New("schedule").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; margin: 16px; background: #fafafa; }
nav a { margin-right: 12px; }
nav a.active { font-weight: bold; }
.legend span { display: inline-block; margin-right: 14px; }
.legend i { display: inline-block; width: 12px; height: 12px; margin-right: 4px; border: 1px solid #333; vertical-align: middle; }
</style>
</head>
<body>
<div id="schedule" data-ready="true" data-generation="{{.Generation}}">
<nav>{{range .Views}}<a href="{{.Href}}"{{if .Active}} class="active"{{end}}>{{.Label}}</a>{{end}}</nav>
<div class="legend">{{range .Legend}}<span><i style="background: {{.Color}}"></i>{{.Label}}</span>{{end}}</div>
{{.SVG}}
</div>
</body>
</html>
`))

type pageView struct {
	Label  string
	Href   string
	Active bool
}

type legendEntry struct {
	Label string
	Color template.CSS
}

type pageData struct {
	Title      string
	Generation uint64
	Views      []pageView
	Legend     []legendEntry
	SVG        template.HTML
}

func (s *Server) svg(q scheduleQuery, rows []layout.Row) []byte {
	return render.SVG(rows, render.Options{
		Title:   fmt.Sprintf("%d race calendar (%s)", s.cfg.Year, q.view),
		Palette: s.palette,
	})
}

// handleSchedulePage serves the HTML schedule used in the browser and for
// PNG capture.
func (s *Server) handleSchedulePage(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, gen, err := s.rows(q)
	if err != nil {
		appLog.Error("schedule page layout failed", err)
		http.Error(w, "layout failed", http.StatusInternalServerError)
		return
	}

	data := pageData{
		Title:      fmt.Sprintf("%d race calendar", s.cfg.Year),
		Generation: gen,
		SVG:        template.HTML(stripXMLProlog(s.svg(q, rows))),
	}
	for _, v := range []partition.View{partition.ViewBlocks, partition.ViewMonths} {
		values := r.URL.Query()
		values.Set("view", string(v))
		data.Views = append(data.Views, pageView{
			Label:  string(v),
			Href:   (&url.URL{Path: "/schedule", RawQuery: values.Encode()}).String(),
			Active: v == q.view,
		})
	}
	for _, c := range s.cfg.Categories {
		data.Legend = append(data.Legend, legendEntry{Label: c.Label, Color: template.CSS(c.Color)})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		appLog.Error("schedule page render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func stripXMLProlog(b []byte) []byte {
	if bytes.HasPrefix(b, []byte("<?xml")) {
		if i := bytes.Index(b, []byte("?>")); i >= 0 {
			return bytes.TrimLeft(b[i+2:], "\n")
		}
	}
	return b
}
