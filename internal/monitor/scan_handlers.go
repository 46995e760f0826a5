package monitor

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/httputil"
	"github.com/banshee-data/depthscan/internal/pointcloud"
	"github.com/banshee-data/depthscan/internal/preview"
	"github.com/banshee-data/depthscan/internal/storage/sqlite"
)

type saveRequest struct {
	Name                string      `json:"name"`
	Description         string      `json:"description"`
	Location            string      `json:"location"`
	LocationCoordinates string      `json:"location_coordinates"`
	InitialOrientation  *float64    `json:"initial_orientation,omitempty"`
	CameraOrientation   *[3]float32 `json:"camera_orientation,omitempty"`
}

func (ws *WebServer) requireScans(w http.ResponseWriter) bool {
	if ws.scans == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "scan storage is not configured")
		return false
	}
	return true
}

// handleSaveScan stores the current capture as a scan record with a
// thumbnail.
func (ws *WebServer) handleSaveScan(w http.ResponseWriter, r *http.Request) {
	if !ws.requireScans(w) {
		return
	}
	var req saveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "missing 'name'")
		return
	}

	ps, err := ws.snapshot(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	if len(ps) == 0 {
		httputil.WriteJSONError(w, http.StatusConflict, "no points captured")
		return
	}
	obj := pointcloud.FromParticles(ps)

	scan, err := sqlite.NewScan(req.Name, obj)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	conf := uint8(ws.controller.Engine().ConfidenceThreshold())
	scan.PointConfidence = &conf
	scan.Description = req.Description
	scan.Location = req.Location
	scan.LocationCoordinates = req.LocationCoordinates
	scan.InitialOrientation = req.InitialOrientation
	if req.CameraOrientation != nil {
		v := geom.Vec3(*req.CameraOrientation)
		scan.CameraOrientation = &v
	}
	if thumb, err := preview.Thumbnail(obj, ws.thumbnailSize); err != nil {
		logf("thumbnail for %q: %v", req.Name, err)
	} else {
		scan.Thumbnail = thumb
	}

	if err := ws.scans.Insert(scan); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, scan)
}

// handleListScans returns saved scan metadata, newest first.
// Query params:
//
//	limit (optional, default 100)
func (ws *WebServer) handleListScans(w http.ResponseWriter, r *http.Request) {
	if !ws.requireScans(w) {
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	scans, err := ws.scans.List(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if scans == nil {
		scans = []*sqlite.Scan{}
	}
	httputil.WriteJSONOK(w, scans)
}

func (ws *WebServer) handleScanThumbnail(w http.ResponseWriter, r *http.Request) {
	if !ws.requireScans(w) {
		return
	}
	thumb, err := ws.scans.Thumbnail(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(thumb) == 0) {
		httputil.NotFound(w, "no thumbnail for scan")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(thumb)
}

// handleLoadScan replaces the live buffer with a saved scan.
func (ws *WebServer) handleLoadScan(w http.ResponseWriter, r *http.Request) {
	if !ws.requireScans(w) {
		return
	}
	scan, err := ws.scans.Get(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "scan not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	obj, err := scan.PointCloud()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if err := ws.controller.Engine().Reload(obj.Particles()); err != nil {
		ws.writeError(w, err)
		return
	}
	logf("loaded scan %s (%d points)", scan.ScanID, scan.PointCount)
	httputil.WriteJSONOK(w, ws.controller.Status())
}

func (ws *WebServer) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	if !ws.requireScans(w) {
		return
	}
	err := ws.scans.Delete(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "scan not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
