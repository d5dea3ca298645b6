package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"racecal/internal/capture"
	"racecal/internal/catalog"
	"racecal/internal/config"
	"racecal/internal/ics"
	appLog "racecal/internal/log"
	"racecal/internal/partition"
	"racecal/internal/scheduler"
	"racecal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	view       string
	logLevel   string
	once       bool
	svgPath    string
	pngPath    string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file and the environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	if flags.view != "" {
		conf.View = flags.view
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level; keeping info", err, "log_level", conf.LogLevel)
	} else {
		appLog.SetLevel(level)
	}

	view, err := partition.ParseView(conf.View)
	if err != nil {
		appLog.Error("invalid view", err, "view", conf.View)
		os.Exit(2)
	}

	appLog.Info("racecal starting",
		"listen", conf.Listen,
		"year", conf.Year,
		"view", view,
		"races_file", conf.RacesFile,
		"ics_count", len(conf.ICS),
		"refresh", conf.RefreshCron,
		"workers", conf.Workers,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	cat := catalog.New(conf, ics.NewFetcher(conf.CacheDir, nil))
	reloadErr := cat.Reload(ctx)

	oneShot := flags.once || flags.svgPath != "" || flags.pngPath != ""
	if oneShot {
		if reloadErr != nil {
			appLog.Error("initial load failed", reloadErr)
			os.Exit(1)
		}
		if err := runOnce(ctx, conf, cat, view, flags); err != nil {
			appLog.Error("one-shot run failed", err)
			os.Exit(1)
		}
		return
	}

	if reloadErr != nil {
		// Keep serving; the scheduler or /api/refresh may recover.
		appLog.Error("initial load failed; serving an empty schedule", reloadErr)
	}

	refresher, err := scheduler.New(conf.RefreshCron, cat)
	if err != nil {
		appLog.Error("failed to create refresh scheduler", err)
		os.Exit(1)
	}
	go func() {
		if err := refresher.Run(ctx); err != nil {
			appLog.Error("refresh scheduler exited", err)
		}
	}()

	srv := web.NewServer(conf, cat)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("racecal exiting")
}

// runOnce lays out the schedule once, writes the requested artifacts and
// prints the layout JSON when -once is set.
func runOnce(ctx context.Context, conf *config.Config, cat *catalog.Catalog, view partition.View, flags flagConfig) error {
	srv := web.NewServer(conf, cat)

	resp, svg, err := srv.Schedule(view)
	if err != nil {
		return err
	}

	if flags.svgPath != "" {
		if err := os.WriteFile(flags.svgPath, svg, 0o644); err != nil {
			return fmt.Errorf("write svg: %w", err)
		}
		appLog.Info("schedule SVG written", "path", flags.svgPath, "bytes", len(svg))
	}

	if flags.pngPath != "" {
		if err := capturePNG(ctx, conf, srv, view, flags.pngPath); err != nil {
			return err
		}
	}

	if flags.once {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write layout: %w", err)
		}
	}
	return nil
}

// capturePNG serves the schedule page on conf.Listen for as long as the
// capture takes.
func capturePNG(ctx context.Context, conf *config.Config, srv *web.Server, view partition.View, path string) error {
	serveCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(serveCtx) }()

	// Give the listener a moment to bind before Chromium connects.
	time.Sleep(200 * time.Millisecond)

	target := url.URL{
		Scheme:   "http",
		Host:     conf.Listen,
		Path:     "/schedule",
		RawQuery: url.Values{"view": {string(view)}}.Encode(),
	}
	opts := capture.CaptureOptions{URL: target.String(), OutputPath: path}
	if conf.BasicAuth != nil && conf.BasicAuth.Username != "" {
		target.User = url.UserPassword(conf.BasicAuth.Username, conf.BasicAuth.Password)
		opts.URL = target.String()
	}
	captureErr := capture.CaptureSchedulePNG(ctx, opts)

	stop()
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("capture server failed", err)
		if captureErr == nil {
			captureErr = err
		}
	}
	return captureErr
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.view, "view", "", "Partition: blocks or months (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.once, "once", false, "Load races, print the layout as JSON and exit")
	flag.StringVar(&cfg.svgPath, "svg", "", "Write the schedule SVG to this path and exit")
	flag.StringVar(&cfg.pngPath, "png", "", "Capture the schedule page to this PNG path and exit")

	flag.Parse()

	return cfg
}
