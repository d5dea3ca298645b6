package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal/internal/catalog"
	"racecal/internal/config"
	"racecal/internal/model"
)

func testEvents() []model.Event {
	return []model.Event{
		{ID: "1", Name: "Tour Down Under", Start: model.Date(2025, time.January, 21), End: model.Date(2025, time.January, 26), Category: "World Tour Race"},
		{ID: "2", Name: "Cadel Evans Great Ocean Road Race", Start: model.Date(2025, time.January, 25), End: model.Date(2025, time.February, 2), Category: "Pro Tour Race"},
		{ID: "3", Name: "Paris-Nice", Start: model.Date(2025, time.March, 5), End: model.Date(2025, time.March, 12), Category: "World Tour Race"},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *catalog.Catalog) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	cat := catalog.New(cfg, nil)
	require.NoError(t, cat.Replace(testEvents()))
	return NewServer(cfg, cat), cat
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeSchedule(t *testing.T, rec *httptest.ResponseRecorder) ScheduleResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ScheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSchedule_Blocks(t *testing.T) {
	s, _ := newTestServer(t, nil)
	resp := decodeSchedule(t, get(t, s.Handler(), "/api/schedule"))

	assert.Equal(t, "blocks", resp.View)
	require.Len(t, resp.Rows, 5)

	first := resp.Rows[0]
	assert.True(t, first.Renderable)
	assert.Equal(t, 2, first.LayerCount)
	require.Len(t, first.Events, 3)
	assert.Equal(t, "1", first.Events[0].ID)
	assert.Equal(t, 0, first.Events[0].Layer)
	assert.Equal(t, 1, first.Events[1].Layer)
	assert.Equal(t, 0, first.Events[2].Layer)
	assert.Equal(t, "2025-03-08", first.Events[2].ClippedEnd, "clipped to the block end")
	assert.Equal(t, 8, first.Events[2].Stages)
	assert.Greater(t, first.Events[0].Width, 0.0)

	second := resp.Rows[1]
	require.Len(t, second.Events, 1, "Paris-Nice spans the shared boundary")
	assert.Equal(t, "2025-03-08", second.Events[0].ClippedStart)
}

func TestSchedule_MonthsAndCategoryFilter(t *testing.T) {
	s, _ := newTestServer(t, nil)
	resp := decodeSchedule(t, get(t, s.Handler(), "/api/schedule?view=months&category=world+tour+race"))

	assert.Equal(t, "months", resp.View)
	assert.Equal(t, []string{"World Tour Race"}, resp.Categories)
	require.Len(t, resp.Rows, 12)
	require.Len(t, resp.Rows[0].Events, 1)
	assert.Equal(t, "1", resp.Rows[0].Events[0].ID)
	assert.Empty(t, resp.Rows[1].Events)
	require.Len(t, resp.Rows[2].Events, 1)

	resp = decodeSchedule(t, get(t, s.Handler(), "/api/schedule?view=months&category="))
	for _, row := range resp.Rows {
		assert.Empty(t, row.Events, "empty filter shows nothing")
	}
}

func TestSchedule_DefaultActiveCategories(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.ActiveCategories = []string{"Pro Tour Race"}
	})
	resp := decodeSchedule(t, get(t, s.Handler(), "/api/schedule"))
	require.Len(t, resp.Rows[0].Events, 1)
	assert.Equal(t, "2", resp.Rows[0].Events[0].ID)
}

func TestSchedule_BadQuery(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/schedule?view=weeks").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/schedule?category=Kermesse").Code)
}

func TestSchedule_DegenerateBlockIsReported(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Blocks = []config.BlockConfig{
			{Label: "Point", Start: "2025-01-22", End: "2025-01-22"},
			{Label: "Rest", Start: "2025-01-23", End: "2025-03-31"},
		}
	})
	resp := decodeSchedule(t, get(t, s.Handler(), "/api/schedule"))
	require.Len(t, resp.Rows, 2)
	assert.False(t, resp.Rows[0].Renderable)
	assert.Len(t, resp.Rows[0].Events, 1)
	assert.Zero(t, resp.Rows[0].Events[0].Width)
	assert.True(t, resp.Rows[1].Renderable)
}

func TestSchedule_CacheFollowsGeneration(t *testing.T) {
	s, cat := newTestServer(t, nil)
	h := s.Handler()

	first := decodeSchedule(t, get(t, h, "/api/schedule"))
	again := decodeSchedule(t, get(t, h, "/api/schedule"))
	assert.Equal(t, first.Generation, again.Generation)

	require.NoError(t, cat.Replace(testEvents()[:1]))
	after := decodeSchedule(t, get(t, h, "/api/schedule"))
	assert.Equal(t, first.Generation+1, after.Generation)
	assert.Len(t, after.Rows[0].Events, 1)
}

func TestCategories(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.ActiveCategories = []string{"grand tour race"}
	})
	rec := get(t, s.Handler(), "/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var cats []categoryDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	require.Len(t, cats, 5)
	assert.Equal(t, "Grand Tour Race", cats[0].Label)
	assert.True(t, cats[0].Active)
	assert.False(t, cats[1].Active)
}

func TestScheduleSVGAndPage(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := get(t, h, "/schedule.svg?view=months")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Paris-Nice")

	rec = get(t, h, "/schedule")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "<svg")
	assert.NotContains(t, body, "<?xml")
	assert.Contains(t, body, "view=months")
	assert.True(t, strings.Contains(body, "Tour Down Under"))
}

func TestRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "races.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 7, "race": "Giro d'Italia", "startDate": "2025-05-09", "endDate": "2025-06-01", "category": "Grand Tour Race"}]`), 0o600))

	s, cat := newTestServer(t, func(c *config.Config) { c.RacesFile = path })
	before := cat.Snapshot().Generation

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, before+1, resp.Generation)
	assert.Equal(t, 1, resp.RaceCount)

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, s.Handler(), "/api/refresh").Code)
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "dir", Password: "sportif"}
	})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/schedule").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	req.SetBasicAuth("dir", "sportif")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
