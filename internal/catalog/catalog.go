// Package catalog keeps the current, validated race set assembled from the
// race table and the ICS subscriptions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"racecal/internal/config"
	"racecal/internal/ics"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/racedata"
)

// Snapshot is an immutable view of the catalog at one generation.
type Snapshot struct {
	Events     []model.Event
	Generation uint64
	LoadedAt   time.Time
}

// Catalog is safe for concurrent use. Reloads are serialized.
type Catalog struct {
	cfg     *config.Config
	loader  *racedata.Loader
	fetcher *ics.Fetcher
	loc     *time.Location

	reloadMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot
}

// New creates an empty catalog. fetcher may be nil when no ICS sources are
// configured.
func New(cfg *config.Config, fetcher *ics.Fetcher) *Catalog {
	return &Catalog{
		cfg:     cfg,
		loader:  racedata.NewLoader(cfg.CategoryLabels()),
		fetcher: fetcher,
		loc:     resolveLocationOrUTC(cfg.Timezone),
	}
}

// Snapshot returns the current races. The slice must not be modified.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Replace validates events and installs them as a new generation.
func (c *Catalog) Replace(events []model.Event) error {
	var errs []error
	for _, e := range events {
		if err := e.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.mu.Lock()
	c.snap = Snapshot{
		Events:     events,
		Generation: c.snap.Generation + 1,
		LoadedAt:   time.Now(),
	}
	c.mu.Unlock()
	return nil
}

// Reload reads every configured source. Sources that fail are logged and
// skipped; if all of them fail the previous snapshot is kept and the
// joined error is returned.
func (c *Catalog) Reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	start := time.Now()
	var (
		events    []model.Event
		errs      []error
		attempted int
		succeeded int
	)

	if c.cfg.RacesFile != "" {
		attempted++
		fileEvents, err := c.loader.LoadFile(c.cfg.RacesFile)
		if err != nil {
			appLog.Error("catalog: race table failed", err, "path", c.cfg.RacesFile)
			errs = append(errs, err)
		} else {
			succeeded++
			events = append(events, fileEvents...)
		}
	}

	sources := c.icsSources()
	if len(sources) > 0 {
		attempted += len(sources)
		icsEvents, ok, icsErrs := c.loadICS(ctx, sources)
		succeeded += ok
		errs = append(errs, icsErrs...)
		events = append(events, icsEvents...)
	}

	if attempted > 0 && succeeded == 0 {
		return fmt.Errorf("catalog: no source could be loaded: %w", errors.Join(errs...))
	}

	events = dedupe(events)
	if err := c.Replace(events); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	appLog.Info("catalog reloaded",
		"race_count", len(events),
		"sources", attempted,
		"failed", attempted-succeeded,
		"generation", c.Snapshot().Generation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *Catalog) icsSources() []ics.Source {
	sources := make([]ics.Source, 0, len(c.cfg.ICS))
	for _, s := range c.cfg.ICS {
		if s.URL == "" {
			continue
		}
		id := s.ID
		if id == "" {
			if s.Name != "" {
				id = s.Name
			} else {
				id = s.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: s.URL, Category: s.Category})
	}
	return sources
}

// loadICS fetches, parses and expands the ICS sources over the season.
func (c *Catalog) loadICS(ctx context.Context, sources []ics.Source) ([]model.Event, int, []error) {
	if c.fetcher == nil {
		return nil, 0, []error{errors.New("catalog: ICS sources configured without a fetcher")}
	}

	results, errs := c.fetcher.FetchAll(ctx, sources)

	expandCfg := ics.ExpandConfig{
		RangeStart: model.Date(c.cfg.Year, time.January, 1),
		RangeEnd:   model.Date(c.cfg.Year, time.December, 31),
		Categories: c.loader,
	}

	var events []model.Event
	ok := 0
	for _, res := range results {
		races, err := ics.ParseICS(res.Source, res.Body, c.loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("ics %s: %w", res.Source.ID, err))
			continue
		}
		expanded, err := ics.ExpandRaces(races, expandCfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("ics %s: %w", res.Source.ID, err))
			continue
		}
		ok++
		events = append(events, expanded.Events...)
	}
	return events, ok, errs
}

// dedupe drops events whose ID was already seen, keeping the first.
func dedupe(events []model.Event) []model.Event {
	seen := make(map[string]struct{}, len(events))
	out := events[:0]
	for _, e := range events {
		if _, dup := seen[e.ID]; dup {
			appLog.Warn("catalog: duplicate race id dropped", "id", e.ID, "source", e.Source)
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

func resolveLocationOrUTC(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", name)
		return time.UTC
	}
	return loc
}
