package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/depthscan/internal/capture/l1frames"
	"github.com/banshee-data/depthscan/internal/capture/l2sampling"
	"github.com/banshee-data/depthscan/internal/capture/l3accumulate"
	"github.com/banshee-data/depthscan/internal/geoproc"
	"github.com/banshee-data/depthscan/internal/httputil"
	"github.com/banshee-data/depthscan/internal/pointcloud"
	"github.com/banshee-data/depthscan/internal/pointcloud/ply"
	"github.com/banshee-data/depthscan/internal/preview"
)

// statusForError maps capture errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, l3accumulate.ErrInvalidTransition), errors.Is(err, l3accumulate.ErrStaleView):
		return http.StatusConflict
	case errors.Is(err, l3accumulate.ErrUnableToStartScan), errors.Is(err, l3accumulate.ErrControllerStopped),
		errors.Is(err, l3accumulate.ErrNoBuffer):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case geoproc.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	var pe *geoproc.ProcessingError
	if errors.As(err, &pe) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logf("request failed: %v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}

func (ws *WebServer) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, ws.controller.Status())
}

// lifecycle adapts a controller command to a handler that replies with
// the resulting status.
func (ws *WebServer) lifecycle(cmd func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cmd(r.Context()); err != nil {
			ws.writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, ws.controller.Status())
	}
}

type settingsRequest struct {
	MaxPoints              *int    `json:"max_points,omitempty"`
	ConfidenceThreshold    *string `json:"confidence_threshold,omitempty"`
	HorizontalSamplingRate *string `json:"horizontal_sampling_rate,omitempty"`
	VerticalSamplingRate   *string `json:"vertical_sampling_rate,omitempty"`
}

// handleCaptureSettings applies capture settings. Fields left out keep
// their current values; max_points takes effect at the next flush.
func (ws *WebServer) handleCaptureSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	// Parse everything before applying anything.
	var conf *l1frames.Confidence
	if req.ConfidenceThreshold != nil {
		c, err := l1frames.ParseConfidence(*req.ConfidenceThreshold)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		conf = &c
	}
	h, v := ws.controller.Engine().SamplingRates()
	ratesChanged := false
	for _, f := range []struct {
		in  *string
		out *l2sampling.SamplingRate
	}{{req.HorizontalSamplingRate, &h}, {req.VerticalSamplingRate, &v}} {
		if f.in == nil {
			continue
		}
		rate, err := l2sampling.ParseSamplingRate(*f.in)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		*f.out = rate
		ratesChanged = true
	}
	if req.MaxPoints != nil && *req.MaxPoints <= 0 {
		httputil.BadRequest(w, fmt.Sprintf("max_points must be positive, got %d", *req.MaxPoints))
		return
	}

	ctx := r.Context()
	if req.MaxPoints != nil {
		if err := ws.controller.SetMaxPoints(ctx, *req.MaxPoints); err != nil {
			ws.writeError(w, err)
			return
		}
	}
	if conf != nil {
		if err := ws.controller.SetConfidenceThreshold(ctx, *conf); err != nil {
			ws.writeError(w, err)
			return
		}
	}
	if ratesChanged {
		if err := ws.controller.SetSamplingRates(ctx, h, v); err != nil {
			ws.writeError(w, err)
			return
		}
	}
	httputil.WriteJSONOK(w, ws.controller.Status())
}

// snapshot copies every valid particle of the current buffer, oldest
// first, bounded by the snapshot timeout.
func (ws *WebServer) snapshot(ctx context.Context) ([]pointcloud.Particle, error) {
	ctx, cancel := context.WithTimeout(ctx, ws.snapshotTimeout)
	defer cancel()

	select {
	case res := <-ws.controller.View().SnapshotOrderedAsync(ctx):
		return res.Particles, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("buffer snapshot: %w", ctx.Err())
	}
}

// handleParticles serves the live buffer in its particle layout for a
// renderer: position, color and confidence as native-endian float32, in
// slot order.
func (ws *WebServer) handleParticles(w http.ResponseWriter, r *http.Request) {
	raw, err := ws.controller.View().RawBytes()
	if err != nil {
		ws.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.Header().Set("X-Particle-Stride", strconv.Itoa(pointcloud.ParticleStride))
	w.Header().Set("X-Particle-Count", strconv.Itoa(len(raw)/pointcloud.ParticleStride))
	_, _ = w.Write(raw)
}

// handleExportDownload streams the current capture as an ASCII PLY
// attachment.
func (ws *WebServer) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	if ws.exporter == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	ps, err := ws.snapshot(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	opts, err := exportOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	// Encode into memory first so a failure can still produce an error
	// status.
	var buf bytes.Buffer
	if err := ply.Encode(&buf, pointcloud.FromParticles(ps), ws.exporter.Comments(opts)); err != nil {
		ws.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-ply")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ws.exporter.FileName(opts.Name)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// handleExportFile writes the current capture to the export directory and
// returns the file path.
func (ws *WebServer) handleExportFile(w http.ResponseWriter, r *http.Request) {
	if ws.exporter == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	ps, err := ws.snapshot(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	opts, err := exportOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	path, err := ws.exporter.Export(pointcloud.FromParticles(ps), opts)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"path":        path,
		"point_count": len(ps),
	})
}

func exportOptions(r *http.Request) (ply.ExportOptions, error) {
	q := r.URL.Query()
	opts := ply.ExportOptions{Name: q.Get("name")}
	if o := q.Get("orientation"); o != "" {
		deg, err := strconv.ParseFloat(o, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid orientation %q", o)
		}
		opts.InitialOrientation = &deg
	}
	return opts, nil
}

type processRequest struct {
	Operation  string              `json:"operation"`
	Parameters *geoproc.Parameters `json:"parameters,omitempty"`
	Apply      bool                `json:"apply"` // write the result back into the live buffer
}

// handleProcess runs a geometry operation on a copy of the capture.
func (ws *WebServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if ws.processor == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "geometry processing is not configured")
		return
	}
	var req processRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	op, err := geoproc.ParseOperation(req.Operation)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	params := ws.params
	if req.Parameters != nil {
		params = *req.Parameters
	}
	if err := params.Validate(op); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var sink geoproc.Sink
	if req.Apply {
		sink = ws.controller.Engine()
	}
	out, err := geoproc.RoundTrip(r.Context(), ws.processor, ws.controller.View(), sink, op, params)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"operation": op,
		"vertices":  len(out.Vertices),
		"triangles": len(out.Triangles),
		"applied":   req.Apply,
	})
}

// handleDebugCloud renders a top-down scatter of the live capture.
// Query params:
//   - max_points (optional; default 20000) to reduce payload size
func (ws *WebServer) handleDebugCloud(w http.ResponseWriter, r *http.Request) {
	maxPoints := preview.DefaultMaxPoints
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 200000 {
			maxPoints = v
		}
	}
	ps, err := ws.snapshot(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	if len(ps) == 0 {
		httputil.NotFound(w, "no points captured")
		return
	}

	st := ws.controller.Status()
	var buf bytes.Buffer
	err = preview.ScatterHTML(&buf, ps, preview.ScatterOptions{
		Title:      "Live capture",
		Subtitle:   fmt.Sprintf("state=%s points=%d capacity=%d", st.State, len(ps), st.Stats.Capacity),
		MaxPoints:  maxPoints,
		AssetsHost: ws.assetsHost,
	})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
