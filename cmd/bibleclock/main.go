package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"bibleclock/internal/clock"
	"bibleclock/internal/config"
	"bibleclock/internal/events"
	"bibleclock/internal/fetch"
	appLog "bibleclock/internal/log"
	"bibleclock/internal/power"
	"bibleclock/internal/render"
	"bibleclock/internal/resolve"
	"bibleclock/internal/voice"
	"bibleclock/internal/web"
)

const version = "1.0.0"

type flagValues struct {
	configPath string
	listen     string
	logFile    string
	debug      bool
	simulation bool
	disableWeb bool
	webOnly    bool
	once       bool
}

func parseFlags() flagValues {
	var f flagValues

	flag.StringVar(&f.configPath, "config", "config.yaml", "Path to the YAML config file")
	flag.StringVar(&f.listen, "listen", "", "HTTP listen address (overrides the config file)")
	flag.StringVar(&f.logFile, "log-file", "", "Append logs to this file instead of stderr")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.simulation, "simulation", false, "Write screen artifacts without Chromium")
	flag.BoolVar(&f.disableWeb, "disable-web", false, "Run the clock without the HTTP API")
	flag.BoolVar(&f.webOnly, "web-only", false, "Serve the HTTP API without the refresh loop")
	flag.BoolVar(&f.once, "once", false, "Produce one screen and exit")

	flag.Parse()
	return f
}

func main() {
	if err := run(); err != nil {
		appLog.Error("bibleclock failed", err)
		os.Exit(1)
	}
}

func run() error {
	// Appliance images configure through .env next to the binary.
	_ = godotenv.Load()

	flags := parseFlags()
	if flags.logFile != "" {
		f, err := os.OpenFile(flags.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		appLog.SetOutput(f)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	conf.ApplyEnv()

	// CLI flags win over config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.simulation {
		conf.Simulation = true
	}
	if flags.debug {
		conf.Debug = true
	}
	if conf.Debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("bibleclock starting",
		"version", version,
		"config", flags.configPath,
		"listen", conf.Listen,
		"mode", conf.Mode,
		"translation", conf.Translation,
		"timezone", conf.Timezone,
		"simulation", conf.Simulation,
		"offline_only", conf.OfflineOnly,
	)

	loc := conf.Location()

	dataset, err := fetch.LoadDataset(conf.DataDir)
	if err != nil {
		return fmt.Errorf("load offline dataset: %w", err)
	}

	cache := fetch.NewCache(conf.CacheEntries, conf.CacheTTL())
	var providers []fetch.Provider
	if !conf.OfflineOnly {
		providers = append(providers, fetch.NewAPIClient(conf.APIURL, conf.APITimeout(),
			fetch.WithRetries(conf.APIRetries)))
	}
	providers = append(providers, fetch.NewOfflineProvider(dataset))
	fetcher := fetch.New(cache, dataset, providers...)

	table, err := loadEvents(conf)
	if err != nil {
		return err
	}
	resolverOpts := []resolve.Option{resolve.WithRotationDays(conf.RotationDays)}
	if epoch, ok := conf.RotationEpochTime(); ok {
		resolverOpts = append(resolverOpts, resolve.WithEpoch(epoch))
	}
	resolver := resolve.New(table, resolverOpts...)

	mode, translation, secondary, format := conf.Settings()
	controller := clock.NewController(clock.Settings{
		Mode:        mode,
		Translation: translation,
		Secondary:   secondary,
		TimeFormat:  format,
	})

	hub := web.NewHub()
	publishers, err := buildPublishers(conf, flags.disableWeb, hub)
	if err != nil {
		return err
	}

	battery := power.Detect()

	sched := clock.NewScheduler(controller, resolver, fetcher, publishers,
		clock.WithSchedules(clock.Schedules{
			Tick:        conf.RefreshCron,
			FullRefresh: conf.FullRefreshCron,
			Health:      conf.HealthCron,
			Maintenance: conf.MaintenanceCron,
		}),
		clock.WithHealthKV(power.HealthKV(battery)),
		clock.WithClock(func() time.Time { return time.Now().In(loc) }),
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

	if flags.once {
		sched.RunOnce(ctx)
		return nil
	}

	if !flags.webOnly {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	if flags.disableWeb {
		<-ctx.Done()
		appLog.Info("bibleclock exiting")
		return nil
	}

	srv := web.NewServer(conf, web.Deps{
		Controller: controller,
		Scheduler:  sched,
		Cache:      cache,
		Battery:    battery,
		Voice:      voice.NewHandler(controller, sched),
		Hub:        hub,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("bibleclock exiting")
	return nil
}

// buildPublishers assembles the publisher chain: the render pipeline (or its
// file-only simulation) first, then the websocket feed so connected clients
// mirror what the panel just received.
func buildPublishers(conf *config.Config, disableWeb bool, hub *web.Hub) ([]clock.Publisher, error) {
	var pubs []clock.Publisher

	if conf.Simulation {
		sim, err := render.NewSimulation(conf.OutputDir)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, sim)
	} else {
		r, err := render.NewRenderer(conf.OutputDir,
			render.WithSize(conf.RenderWidth, conf.RenderHeight),
			render.WithThreshold(uint8(conf.RenderThreshold)),
			render.WithCaptureTimeout(conf.CaptureTimeout()),
		)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, r)
	}

	if !disableWeb {
		pubs = append(pubs, hub)
	}
	return pubs, nil
}

// loadEvents layers the biblical calendar: built-in defaults, then the JSON
// dataset, then the ICS feed. Later layers win on date collisions.
func loadEvents(conf *config.Config) (*events.Table, error) {
	layers := [][]events.Event{events.Defaults()}

	eventsPath := conf.EventsFile
	if eventsPath == "" {
		eventsPath = filepath.Join(conf.DataDir, "biblical_events_calendar.json")
	}
	evs, err := events.LoadJSON(eventsPath)
	if err != nil {
		return nil, fmt.Errorf("events dataset: %w", err)
	}
	layers = append(layers, evs)

	if conf.EventsICS != "" {
		ics, err := events.LoadICS(conf.EventsICS, time.Now().Year())
		if err != nil {
			return nil, fmt.Errorf("events calendar: %w", err)
		}
		layers = append(layers, ics)
	}

	table := events.NewTable(layers...)
	appLog.Info("biblical events ready", "days", table.Len())
	return table, nil
}
