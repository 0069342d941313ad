package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kasage/internal/api"
	"kasage/pkg/attraction"
	"kasage/pkg/booking"
	"kasage/pkg/bridge"
	"kasage/pkg/cache"
	"kasage/pkg/config"
	"kasage/pkg/directions"
	"kasage/pkg/logging"
	"kasage/pkg/mapsurface"
	"kasage/pkg/probe"
	"kasage/pkg/request"
	"kasage/pkg/screen"
	"kasage/pkg/tracker"
	"kasage/pkg/version"
)

const (
	defaultConfigPath = "configs/kasage.yaml"
	mapContainer      = "map"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
)

func main() {
	flag.Parse()

	// Secrets may live in .env next to the binary; a missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}

	if *initConfig {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

// services is everything the HTTP layer needs.
type services struct {
	cfg     *config.Config
	catalog *attraction.Catalog
	hub     *bridge.Hub
	screen  *screen.Screen
	booking *booking.Page
	tracker *tracker.Tracker
	router  *directions.Client
}

func run(ctx context.Context, cfgPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Kasage Started", "version", version.Version, "addr", cfg.Server.Address)

	svcs, err := initServices(cfg)
	if err != nil {
		return err
	}
	defer svcs.hub.Close()

	if err := verifyStartup(ctx, svcs); err != nil {
		return err
	}

	if err := svcs.screen.Mount(ctx); err != nil {
		return fmt.Errorf("failed to mount map screen: %w", err)
	}
	defer svcs.screen.Unmount()

	return runServer(ctx, svcs)
}

func initServices(cfg *config.Config) (*services, error) {
	catalog, err := attraction.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load attraction catalog: %w", err)
	}

	tr := tracker.New()
	reqClient := request.New(cache.NewMemory(cfg.Cache.MaxRoutes, cfg.Cache.RouteTTL.Std()), tr, request.ClientConfig{
		Retries:   cfg.Request.Retries,
		Timeout:   cfg.Request.Timeout.Std(),
		BaseDelay: cfg.Request.BaseDelay.Std(),
	})
	router := directions.NewClient(reqClient, cfg.Maps.DirectionsURL, cfg.Maps.APIKey, cfg.Maps.Language)

	hub := bridge.NewHub(mapContainer)
	ctrl := mapsurface.NewController(hub, router, catalog, mapsurface.Options{
		Container:    mapContainer,
		Home:         cfg.Home,
		Mode:         cfg.Maps.Mode,
		Bounce:       cfg.Maps.Bounce.Std(),
		RoutePadding: cfg.Maps.RoutePadding,
		Dev:          cfg.Dev,
	})
	scr := screen.New(ctrl, catalog, hub, hub, hub, tr, screen.OptionsFrom(cfg))
	hub.SetActions(scr)

	return &services{
		cfg:     cfg,
		catalog: catalog,
		hub:     hub,
		screen:  scr,
		booking: booking.NewPage(cfg.Home, cfg.Booking),
		tracker: tr,
		router:  router,
	}, nil
}

func verifyStartup(ctx context.Context, svcs *services) error {
	cfg := svcs.cfg
	probes := []probe.Probe{
		{
			Name:     "Maps API Key",
			Check:    probe.MapsKey(cfg.Maps.APIKey),
			Critical: false, // the map shows its overlay instead
		},
		{
			Name:     "Attraction Catalog",
			Check:    probe.Catalog(svcs.catalog, cfg.Home.Location),
			Critical: true,
		},
	}
	if cfg.Maps.APIKey != "" && svcs.catalog.Len() > 0 {
		first := svcs.catalog.List()[0]
		probes = append(probes, probe.Probe{
			Name:     "Directions API",
			Check:    probe.Directions(svcs.router, cfg.Home.Location, first.Location, cfg.Maps.Mode),
			Critical: false,
		})
	}

	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, svcs *services) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := shutdownRequester(quit)

	srv := api.NewServer(svcs.cfg.Server.Address,
		api.NewConfigHandler(svcs.cfg, mapContainer),
		api.NewAttractionHandler(svcs.catalog),
		api.NewScreenHandler(svcs.screen),
		api.NewBookingHandler(svcs.booking, svcs.hub),
		api.NewStatsHandler(svcs.tracker, svcs.hub.Clients),
		svcs.hub,
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

// shutdownRequester returns a func that queues one shutdown signal.
// Repeated calls while a signal is pending are dropped.
func shutdownRequester(quit chan<- os.Signal) func() {
	return func() {
		select {
		case quit <- syscall.SIGTERM:
		default:
		}
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
