package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"racecal/internal/catalog"
	"racecal/internal/config"
	appLog "racecal/internal/log"
	"racecal/internal/racedata"
	"racecal/internal/render"
)

// Server provides the schedule API, the SVG/HTML views and a manual
// refresh hook.
type Server struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	loader  *racedata.Loader
	palette render.Palette
	mux     *http.ServeMux

	// Laid-out rows per (view, categories) query. Entries are only valid
	// for the catalog generation they were built from.
	cacheMu sync.Mutex
	cache   map[string]*scheduleCache
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, cat *catalog.Catalog) *Server {
	s := &Server{
		cfg:     cfg,
		catalog: cat,
		loader:  racedata.NewLoader(cfg.CategoryLabels()),
		palette: render.PaletteFromConfig(cfg.Categories),
		mux:     http.NewServeMux(),
		cache:   make(map[string]*scheduleCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health 는 항상 무인증으로 노출한다.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="racecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /schedule.svg", s.handleScheduleSVG)
	s.mux.HandleFunc("GET /schedule", s.handleSchedulePage)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/schedule", http.StatusFound)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type categoryDTO struct {
	Label  string `json:"label"`
	Color  string `json:"color,omitempty"`
	Active bool   `json:"active"`
}

// handleCategories lists the configured categories and whether the default
// filter includes them.
func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	active := s.defaultCategories()
	out := make([]categoryDTO, 0, len(s.cfg.Categories))
	for _, c := range s.cfg.Categories {
		cat, err := s.loader.Category(c.Label)
		if err != nil {
			continue
		}
		out = append(out, categoryDTO{Label: c.Label, Color: c.Color, Active: active.Allows(cat)})
	}
	writeJSON(w, http.StatusOK, out)
}

type refreshResponse struct {
	Generation uint64    `json:"generation"`
	RaceCount  int       `json:"race_count"`
	LoadedAt   time.Time `json:"loaded_at"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Reload(r.Context()); err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	snap := s.catalog.Snapshot()
	writeJSON(w, http.StatusOK, refreshResponse{
		Generation: snap.Generation,
		RaceCount:  len(snap.Events),
		LoadedAt:   snap.LoadedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
