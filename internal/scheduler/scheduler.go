// Package scheduler reloads the race catalog on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "racecal/internal/log"
)

// Reloader is satisfied by *catalog.Catalog.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Refresher owns the cron instance driving periodic reloads.
type Refresher struct {
	cron   *cron.Cron
	spec   string
	target Reloader
}

// New parses spec (standard 5-field cron or descriptors such as
// "@every 30m") and returns a stopped Refresher.
func New(spec string, target Reloader) (*Refresher, error) {
	if target == nil {
		return nil, fmt.Errorf("scheduler: nil reloader")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("scheduler: invalid refresh spec %q: %w", spec, err)
	}
	return &Refresher{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:   spec,
		target: target,
	}, nil
}

// Run schedules reloads and blocks until ctx is done. Running jobs are
// allowed to finish before it returns.
func (r *Refresher) Run(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() {
		if err := r.target.Reload(ctx); err != nil {
			appLog.Error("scheduled reload failed", err, "spec", r.spec)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: add job: %w", err)
	}

	appLog.Info("refresh scheduler started", "spec", r.spec)
	r.cron.Start()

	<-ctx.Done()
	<-r.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
	return nil
}
