// Command depthscan runs a capture session against the synthetic frame
// source and serves the debug monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/depthscan/internal/capture/l1frames"
	"github.com/banshee-data/depthscan/internal/capture/l3accumulate"
	"github.com/banshee-data/depthscan/internal/config"
	"github.com/banshee-data/depthscan/internal/db"
	"github.com/banshee-data/depthscan/internal/monitor"
	"github.com/banshee-data/depthscan/internal/pointcloud/ply"
	"github.com/banshee-data/depthscan/internal/storage/sqlite"
	"github.com/banshee-data/depthscan/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	configFile  = flag.String("config", "", "Path to capture config JSON (default: built-in defaults)")
	dbPath      = flag.String("db", "depthscan.db", "Path to the scan database")
	exportDir   = flag.String("export-dir", "", "Directory for PLY exports (overrides export_dir)")
	assetsHost  = flag.String("assets-host", "", "go-echarts asset host for /debug/cloud (default: CDN)")
	autoStart   = flag.Bool("start", false, "Start the frame source and begin capture immediately")
	debug       = flag.Bool("debug", false, "Enable per-frame debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *exportDir != "" {
		cfg.ExportDir = exportDir
	}
	if *debug {
		cfg.Debug = debug
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("%s", version.String())
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("depthscan: %v", err)
	}
	log.Print("graceful shutdown complete")
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.CaptureConfig, error) {
	if path == "" {
		return config.DefaultCaptureConfig(), nil
	}
	cfg, err := config.LoadCaptureConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded capture config from %s", path)
	return cfg, nil
}

// run wires the capture pipeline to the monitor and blocks until ctx is
// cancelled or a component fails.
func run(ctx context.Context, cfg *config.CaptureConfig) error {
	engineCfg, err := l3accumulate.EngineConfigFromCapture(cfg)
	if err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	engine, err := l3accumulate.NewEngine(engineCfg)
	if err != nil {
		return err
	}
	stats := engine.Stats()
	log.Printf("particle buffer ready: capacity=%d bytes=%d", stats.Capacity, stats.ByteSize)

	source := l1frames.NewSyntheticSource(l1frames.SyntheticConfig{
		CameraWidth:  cfg.GetCameraWidth(),
		CameraHeight: cfg.GetCameraHeight(),
		QueueSize:    cfg.GetFrameQueueSize(),
	})
	controller := l3accumulate.NewController(engine, source)

	if dir := filepath.Dir(*dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:         *listen,
		Controller:      controller,
		Exporter:        ply.NewExporter(cfg.GetExportDir()),
		Scans:           sqlite.NewScanStore(database.DB),
		ThumbnailSize:   cfg.GetThumbnailSize(),
		SnapshotTimeout: cfg.GetSnapshotTimeout(),
		AssetsHost:      *assetsHost,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := controller.Run(ctx)
		log.Print("capture controller terminated")
		return err
	})
	g.Go(func() error {
		return ws.Start(ctx)
	})
	if *autoStart {
		g.Go(func() error {
			if err := controller.Start(ctx); err != nil {
				return err
			}
			return controller.BeginCapture(ctx)
		})
	}
	return g.Wait()
}
