package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/robfig/cron/v3"

	"anoncal/internal/config"
	"anoncal/internal/ics"
	appLog "anoncal/internal/log"
	"anoncal/internal/pipeline"
)

// options is the CLI/environment surface. Every value here overrides
// the corresponding config-file field when set.
type options struct {
	Config string `long:"config" env:"ANONCAL_CONFIG" description:"Path to YAML config file (optional)"`

	Source string `long:"source" env:"SOURCE_CAL_URL" description:"Source iCal URL"`
	Output string `long:"output" env:"OUTPUT_CAL_PATH" description:"Output .ics path"`

	Summary     string `long:"summary" description:"Replacement SUMMARY text"`
	Description string `long:"description" description:"Replacement DESCRIPTION text"`
	Timezone    string `long:"timezone" env:"ANONCAL_TZ" description:"Target IANA timezone"`

	RetentionDays int `long:"retention-days" description:"Drop events ending more than this many days ago"`

	KeepLocation       bool `long:"keep-location" description:"Keep LOCATION instead of clearing it"`
	ForceAllDay        bool `long:"force-all-day" description:"Convert every event to all-day"`
	MergeAdjacentStays bool `long:"merge-adjacent-stays" description:"Merge adjacent/overlapping overnight stays into single all-day events"`

	Timeout float64 `long:"timeout" description:"HTTP timeout in seconds per attempt"`
	Retries int     `long:"retries" description:"HTTP retries for transient errors"`
	Backoff float64 `long:"backoff" description:"Exponential backoff base in seconds"`

	Once    bool   `long:"once" description:"Run one fetch+sanitize+commit cycle and exit"`
	Cron    string `long:"cron" description:"Cron schedule for repeated runs (overrides config refresh)"`
	Verbose []bool `short:"v" long:"verbose" description:"Increase verbosity (can repeat)"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 2
	}

	appLog.SetVerbosity(len(opts.Verbose) + 1)

	cfg, err := loadConfig(opts)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", opts.Config)
		return 2
	}
	applyOverrides(cfg, opts)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", err)
		return 2
	}

	appLog.Info("anoncal starting",
		"output", cfg.OutputPath,
		"timezone", cfg.Timezone,
		"retention_days", cfg.RetentionDays,
		"force_all_day", cfg.ForceAllDay,
		"merge_adjacent_stays", cfg.MergeAdjacentStays,
		"keep_location", cfg.KeepLocation,
		"once", opts.Once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	fetcher := ics.NewFetcher(cfg.CacheDir, cfg.UserAgent, cfg.FetchTimeout(), cfg.FetchRetries, cfg.FetchBackoff())

	if opts.Once {
		if err := runOnce(ctx, cfg, fetcher); err != nil {
			return 1
		}
		return 0
	}

	return runScheduled(ctx, cfg, fetcher)
}

func loadConfig(opts options) (*config.Config, error) {
	if opts.Config == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(opts.Config)
}

func applyOverrides(cfg *config.Config, opts options) {
	if opts.Source != "" {
		cfg.SourceURL = opts.Source
	}
	if opts.Output != "" {
		cfg.OutputPath = opts.Output
	}
	if opts.Summary != "" {
		cfg.Summary = opts.Summary
	}
	if opts.Description != "" {
		cfg.Description = opts.Description
	}
	if opts.Timezone != "" {
		cfg.Timezone = opts.Timezone
	}
	if opts.RetentionDays > 0 {
		cfg.RetentionDays = opts.RetentionDays
	}
	if opts.KeepLocation {
		cfg.KeepLocation = true
	}
	if opts.ForceAllDay {
		cfg.ForceAllDay = true
	}
	if opts.MergeAdjacentStays {
		cfg.MergeAdjacentStays = true
	}
	if opts.Timeout > 0 {
		cfg.FetchTimeoutSeconds = opts.Timeout
	}
	if opts.Retries > 0 {
		cfg.FetchRetries = opts.Retries
	}
	if opts.Backoff > 0 {
		cfg.FetchBackoffSeconds = opts.Backoff
	}
	if opts.Cron != "" {
		cfg.RefreshCron = opts.Cron
	}
	cfg.Normalize()
}

func runOnce(ctx context.Context, cfg *config.Config, fetcher pipeline.Fetcher) error {
	res, err := pipeline.Run(ctx, cfg, fetcher, time.Now())
	if err != nil {
		appLog.Error("pipeline run failed", err)
		return err
	}
	appLog.Info("pipeline run completed",
		"events_in", res.EventsIn,
		"events_out", res.EventsOut,
		"unchanged", res.Unchanged,
	)
	return nil
}

// runScheduled runs the pipeline immediately, then on the configured
// cron schedule until a signal arrives. Individual run failures are
// logged and do not stop the schedule; the prior artifact stays intact.
func runScheduled(ctx context.Context, cfg *config.Config, fetcher pipeline.Fetcher) int {
	_ = runOnce(ctx, cfg, fetcher)

	c := cron.New()
	if _, err := c.AddFunc(cfg.RefreshCron, func() {
		_ = runOnce(ctx, cfg, fetcher)
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "cron", cfg.RefreshCron)
		return 2
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("anoncal exiting")
	return 0
}
