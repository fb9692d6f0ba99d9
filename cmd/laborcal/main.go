package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"laborcal/internal/agenda"
	"laborcal/internal/calendar"
	"laborcal/internal/config"
	"laborcal/internal/ics"
	appLog "laborcal/internal/log"
	"laborcal/internal/store"
	"laborcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	from       string
	days       int
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Init(conf.Environment)
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	appLog.Info("laborcal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"data_path", conf.DataPath,
		"overlay_policy", conf.OverlayPolicy,
		"buffer_minutes", conf.BufferMinutes,
		"lead_time_minutes", conf.LeadTimeMinutes,
		"max_window_days", conf.MaxWindowDays,
		"workers", conf.Workers,
		"feed_count", len(conf.Feeds),
		"once", flags.once,
	)

	planner, err := agenda.New(conf)
	if err != nil {
		appLog.Error("failed to build planner", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(conf.DataPath)
	r := &refresher{
		store:   st,
		fetcher: ics.NewFetcher(conf.CacheDir, nil),
		sources: ics.SourcesFrom(conf.Feeds),
		planner: planner,
		horizon: conf.HorizonDays,
	}
	if err := r.run(ctx); err != nil {
		appLog.Error("initial load failed", err, "data_path", conf.DataPath)
		os.Exit(1)
	}

	if flags.once {
		if err := runOnce(ctx, planner, st, flags, conf.HorizonDays); err != nil {
			appLog.Error("once run failed", err)
			os.Exit(1)
		}
		return
	}

	c := cron.New(cron.WithLocation(planner.Location))
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if err := r.run(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	if err := web.NewServer(conf, planner, st).Run(ctx); err != nil {
		appLog.Error("http server failed", err)
		os.Exit(1)
	}
	appLog.Info("laborcal exiting")
}

// refresher reloads the snapshot file and the exception feeds.
type refresher struct {
	store   *store.Store
	fetcher *ics.Fetcher
	sources []ics.Source
	planner *agenda.Planner
	horizon int
}

func (r *refresher) run(ctx context.Context) error {
	start := time.Now()
	if err := r.store.Load(); err != nil {
		return err
	}
	if len(r.sources) == 0 {
		return nil
	}

	today := calendar.DateOf(time.Now().In(r.planner.Location))
	window := calendar.Range{Start: today.AddDays(-1), End: today.AddDays(r.horizon)}
	ex, errs := ics.Sync(ctx, r.fetcher, r.sources, window, r.planner.Location)
	if len(errs) > 0 {
		appLog.Error("one or more feeds failed", errors.Join(errs...), "error_count", len(errs))
	}
	r.store.SetFeedExceptions(ex)

	appLog.Info("refresh completed", "feed_exceptions", len(ex), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// runOnce prints the projected window as JSON on stdout.
func runOnce(ctx context.Context, planner *agenda.Planner, st *store.Store, flags flagConfig, horizon int) error {
	from := calendar.DateOf(time.Now().In(planner.Location))
	if flags.from != "" {
		d, err := calendar.ParseDate(flags.from)
		if err != nil {
			return err
		}
		from = d
	}
	days := flags.days
	if days <= 0 {
		days = horizon
	}

	view, err := planner.Calendar(ctx, st.Snapshot(), calendar.Range{Start: from, End: from.AddDays(days - 1)}, nil)
	if err != nil {
		return err
	}
	for _, w := range view.Warnings {
		appLog.Warn("schedule warning", "kind", string(w.Kind), "schedule_id", w.ScheduleID, "message", w.Message)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/laborcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional .env file with LABORCAL_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print the projected window as JSON and exit")
	flag.StringVar(&cfg.from, "from", "", "First day of the -once window (YYYY-MM-DD, default today)")
	flag.IntVar(&cfg.days, "days", 0, "Length of the -once window in days (default horizon_days)")

	flag.Parse()

	return cfg
}
