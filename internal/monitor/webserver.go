// Package monitor serves the debug HTTP interface of a capture: health and
// status, lifecycle control, PLY export, saving scans and a point cloud
// preview.
package monitor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/banshee-data/depthscan/internal/capture/l3accumulate"
	"github.com/banshee-data/depthscan/internal/geoproc"
	"github.com/banshee-data/depthscan/internal/monitoring"
	"github.com/banshee-data/depthscan/internal/pointcloud/ply"
	"github.com/banshee-data/depthscan/internal/storage/sqlite"
	"github.com/banshee-data/depthscan/internal/timeutil"
	"github.com/banshee-data/depthscan/internal/version"
)

//go:embed status.html
var statusHTML embed.FS

var logf = monitoring.Component("monitor")

// WebServer handles the HTTP interface of a running capture.
type WebServer struct {
	address         string
	server          *http.Server
	controller      *l3accumulate.Controller
	exporter        *ply.Exporter
	scans           *sqlite.ScanStore
	processor       geoproc.Processor
	params          geoproc.Parameters
	thumbnailSize   int
	snapshotTimeout time.Duration
	assetsHost      string
	clock           timeutil.Clock
	started         time.Time
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address         string
	Controller      *l3accumulate.Controller // required
	Exporter        *ply.Exporter            // PLY export; nil disables export routes
	Scans           *sqlite.ScanStore        // scan persistence; nil disables save and scan routes
	Processor       geoproc.Processor        // geometry processing; nil disables /api/capture/process
	ThumbnailSize   int                      // saved scan thumbnail edge in pixels (default: 256)
	SnapshotTimeout time.Duration            // bound on buffer readback (default: 5s)
	AssetsHost      string                   // go-echarts asset prefix for /debug/cloud
	Clock           timeutil.Clock           // default: RealClock
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	// Set reasonable defaults
	if config.ThumbnailSize <= 0 {
		config.ThumbnailSize = 256
	}
	if config.SnapshotTimeout <= 0 {
		config.SnapshotTimeout = 5 * time.Second
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}

	ws := &WebServer{
		address:         config.Address,
		controller:      config.Controller,
		exporter:        config.Exporter,
		scans:           config.Scans,
		processor:       config.Processor,
		params:          geoproc.DefaultParameters(),
		thumbnailSize:   config.ThumbnailSize,
		snapshotTimeout: config.SnapshotTimeout,
		assetsHost:      config.AssetsHost,
		clock:           config.Clock,
		started:         config.Clock.Now(),
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// Handler returns the HTTP handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves HTTP until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	logf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /{$}", ws.handleStatusPage)
	mux.HandleFunc("GET /api/capture/status", ws.handleCaptureStatus)
	mux.HandleFunc("POST /api/capture/start", ws.lifecycle(ws.controller.Start))
	mux.HandleFunc("POST /api/capture/capture", ws.lifecycle(ws.controller.BeginCapture))
	mux.HandleFunc("POST /api/capture/pause", ws.lifecycle(ws.controller.Pause))
	mux.HandleFunc("POST /api/capture/flush", ws.lifecycle(ws.controller.Flush))
	mux.HandleFunc("POST /api/capture/stop", ws.lifecycle(ws.controller.Stop))
	mux.HandleFunc("POST /api/capture/clear", ws.lifecycle(ws.controller.ClearAll))
	mux.HandleFunc("POST /api/capture/settings", ws.handleCaptureSettings)
	mux.HandleFunc("POST /api/capture/process", ws.handleProcess)
	mux.HandleFunc("GET /api/capture/particles.bin", ws.handleParticles)
	mux.HandleFunc("GET /api/capture/export.ply", ws.handleExportDownload)
	mux.HandleFunc("POST /api/capture/export.ply", ws.handleExportFile)
	mux.HandleFunc("POST /api/capture/save", ws.handleSaveScan)
	mux.HandleFunc("GET /api/scans", ws.handleListScans)
	mux.HandleFunc("GET /api/scans/{id}/thumbnail.png", ws.handleScanThumbnail)
	mux.HandleFunc("POST /api/scans/{id}/load", ws.handleLoadScan)
	mux.HandleFunc("DELETE /api/scans/{id}", ws.handleDeleteScan)
	mux.HandleFunc("GET /debug/cloud", ws.handleDebugCloud)

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "depthscan", "version": %q, "timestamp": "%s"}`,
		version.Version, ws.clock.Now().UTC().Format(time.RFC3339))
}

// handleStatusPage renders the HTML status page.
func (ws *WebServer) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		HTTPAddress string
		Version     string
		GitSHA      string
		Uptime      string
		Status      l3accumulate.Status
	}{
		HTTPAddress: ws.address,
		Version:     version.Version,
		GitSHA:      version.GitSHA,
		Uptime:      ws.clock.Since(ws.started).Round(time.Second).String(),
		Status:      ws.controller.Status(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		logf("render status page: %v", err)
	}
}
