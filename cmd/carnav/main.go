package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"carnav/internal/api"
	"carnav/pkg/config"
	"carnav/pkg/core"
	"carnav/pkg/db"
	"carnav/pkg/db/maintenance"
	"carnav/pkg/focus"
	"carnav/pkg/geo"
	"carnav/pkg/history"
	"carnav/pkg/location"
	"carnav/pkg/logging"
	"carnav/pkg/metrics"
	"carnav/pkg/nav"
	"carnav/pkg/probe"
	"carnav/pkg/store"
	"carnav/pkg/tiles"
	"carnav/pkg/tracker"
	"carnav/pkg/version"
	"carnav/pkg/viewport"
)

const defaultConfigPath = "configs/carnav.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	config.LoadEnv(".env", ".env.local")

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("carnav started", "version", version.String(), "map_mode", appCfg.Map.Mode, "gps", appCfg.GPS.Source)

	results := probe.Run(ctx, startupProbes(appCfg))
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := maintenance.Run(ctx, st, dbConn, ""); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	prov := config.NewProvider(appCfg, st)
	m := metrics.New()
	tr := tracker.New()

	mapSrc, err := tiles.New(appCfg.Map, appCfg.Request, tr)
	if err != nil {
		return fmt.Errorf("failed to open map source: %w", err)
	}
	defer func() {
		if err := mapSrc.Close(); err != nil {
			slog.Warn("Failed to close map source", "error", err)
		}
	}()

	state, err := initNavigator(ctx, prov, mapSrc, m)
	if err != nil {
		return err
	}
	state.Restore(ctx, st, mapSrc.Bounds())

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	src := startLocation(ctx, &wg, appCfg.GPS, state, m)

	sched := core.NewScheduler(time.Second)
	sched.AddJob(core.NewViewPersistenceJob(time.Duration(appCfg.Focus.SaveInterval), state.Viewport(), st))
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	err = runServer(ctx, appCfg, prov, state, mapSrc, src, tr, m)

	// Save on close.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer saveCancel()
	if serr := state.Save(saveCtx, st); serr != nil {
		slog.Error("Failed to save map view", "error", serr)
	} else {
		pos := state.Viewport().Position()
		slog.Info("Map view saved", "lat", pos.Center.Lat, "lon", pos.Center.Lon, "zoom", pos.Zoom)
	}
	return err
}

func startupProbes(cfg *config.Config) []probe.Probe {
	probes := []probe.Probe{
		{
			Name:     "Database directory",
			Check:    probe.DirWritableCheck(cfg.DB.Path),
			Critical: true,
		},
	}
	if cfg.Map.Mode == config.MapModeOffline {
		probes = append(probes, probe.Probe{
			Name:     "Offline map file",
			Check:    probe.FileCheck(cfg.Map.MBTiles),
			Critical: true,
		})
	}
	if cfg.Map.Coverage != "" {
		probes = append(probes, probe.Probe{
			Name:  "Coverage shapefile",
			Check: probe.FileCheck(cfg.Map.Coverage),
		})
	}
	switch cfg.GPS.Source {
	case config.GPSSourceGPSD:
		// The client reconnects, so gpsd may come up later.
		probes = append(probes, probe.Probe{
			Name:    "gpsd",
			Check:   probe.DialCheck(cfg.GPS.GPSDAddr),
			Timeout: 2 * time.Second,
		})
	case config.GPSSourceReplay:
		probes = append(probes, probe.Probe{
			Name:     "Replay track",
			Check:    probe.FileCheck(cfg.GPS.Replay.File),
			Critical: true,
		})
	}
	return probes
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func initNavigator(ctx context.Context, prov config.Provider, mapSrc tiles.Provider, m *metrics.Metrics) (*nav.State, error) {
	cfg := prov.AppConfig()
	home := geo.Point{Lat: cfg.Home.Lat, Lon: cfg.Home.Lon}

	zmin, zmax := mapSrc.ZoomRange()
	view := viewport.New(viewport.Options{
		TileSize:   mapSrc.TileSize(),
		ZoomMin:    zmin,
		ZoomMax:    zmax,
		Dimensions: geo.Dimension{Width: cfg.Window.Width, Height: cfg.Window.Height},
		Initial:    viewport.Position{Center: home, Zoom: zmin},
	})

	policy, err := focus.NewPolicy(prov.FocusPolicy(ctx), cfg.Focus)
	if err != nil {
		return nil, fmt.Errorf("failed to build focus policy: %w", err)
	}

	hist := history.New()
	engine := focus.NewEngine(hist, view, home, policy, prov.Animate(ctx), focus.WithRecorder(m))
	slog.Info("Focus engine ready", "policy", policy.Name(), "home", cfg.Home.Name, "tile_size", view.TileSize(), "zoom_min", zmin, "zoom_max", zmax)

	return nav.New(hist, engine, view, nav.WithMetrics(m), nav.WithH3Resolution(cfg.Debug.H3Resolution)), nil
}

// startLocation starts the configured source feeding state. It returns the
// source, or nil when fixes only arrive through the API.
func startLocation(ctx context.Context, wg *sync.WaitGroup, cfg config.GPSConfig, state *nav.State, m *metrics.Metrics) location.Source {
	src := location.NewSource(cfg, location.WithDropHook(func(f location.Fix) {
		m.FixDropped(f.Source)
	}))
	if src == nil {
		slog.Info("No location source configured, waiting for fixes over the API")
		return nil
	}

	buf := cfg.Buffer
	if buf <= 0 {
		buf = 1
	}
	fixes := make(chan location.Fix, buf)

	wg.Add(2)
	go func() {
		defer wg.Done()
		state.Run(ctx, fixes)
	}()
	go func() {
		defer wg.Done()
		if err := src.Run(ctx, fixes); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Location source stopped", "source", src.Name(), "error", err)
		}
	}()
	slog.Info("Location source started", "source", src.Name())
	return src
}

func runServer(ctx context.Context, cfg *config.Config, prov config.Provider, state *nav.State, mapSrc tiles.Provider, src location.Source, tr *tracker.Tracker, m *metrics.Metrics) error {
	quit := make(chan struct{})
	var once sync.Once
	shutdownFunc := func() { once.Do(func() { close(quit) }) }

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			shutdownFunc()
		case <-ctx.Done():
		}
	}()

	hub := api.NewHub(state.Viewport(), state.Resize, m)
	defer hub.Close()

	var gps api.GPSStatusReporter
	if g, ok := src.(*location.GPSD); ok {
		gps = g
	}

	srv := api.NewServer(cfg.Server.Address, api.Handlers{
		Nav:      api.NewNavHandler(state),
		Viewport: api.NewViewportHandler(state),
		Config:   api.NewConfigHandler(prov, state.Engine()),
		Stats:    api.NewStatsHandler(tr, state, hub, gps, mapSrc),
		Tiles:    api.NewTileHandler(mapSrc, m),
		Hub:      hub,
		Metrics:  m.Handler(),
	}, shutdownFunc)
	srv.Handler = api.LoggingMiddleware(api.RecoverMiddleware(srv.Handler))

	ln, err := api.Listen(ctx, cfg.Server.Address, cfg.Server.MaxConns)
	if err != nil {
		return err
	}
	return api.Serve(ctx, srv, ln, quit)
}
