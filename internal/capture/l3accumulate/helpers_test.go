package l3accumulate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthscan/internal/capture/l1frames"
	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/monitoring"
)

const (
	H = l1frames.ConfidenceHigh
	M = l1frames.ConfidenceMedium
	L = l1frames.ConfidenceLow
)

func init() {
	monitoring.SetLogger(nil)
}

// stripConfig builds an engine whose grid is a single row of n samples
// over an n x 1 image, so each frame's depth and confidence slices map one
// to one onto grid points.
func stripConfig(capacity, n int) EngineConfig {
	return EngineConfig{
		MaxPoints:           capacity,
		PointsPerFrame:      n,
		CameraWidth:         n,
		CameraHeight:        1,
		ConfidenceThreshold: M,
	}
}

// stripFrame builds a frame for a stripConfig engine. The camera sits at
// x = 100*seq so every frame passes the motion gate, and each accepted
// sample lands at z = -depth.
func stripFrame(seq int, depths []float32, confs []l1frames.Confidence) *l1frames.Frame {
	n := len(depths)
	return &l1frames.Frame{
		Seq:          uint64(seq),
		Intrinsics:   geom.Identity3(),
		CameraWidth:  n,
		CameraHeight: 1,
		Pose:         geom.Translation(geom.XYZ(float32(100*seq), 0, 0)),
		Depth:        &l1frames.DepthMap{Width: n, Height: 1, Values: depths},
		Confidence:   &l1frames.ConfidenceMap{Width: n, Height: 1, Values: confs},
	}
}

func newStripEngine(t *testing.T, capacity, n int) *Engine {
	t.Helper()
	e, err := NewEngine(stripConfig(capacity, n))
	require.NoError(t, err)
	e.SetAccumulating(true)
	return e
}

// depthsOf returns -z for each particle, recovering the depth it was
// sampled at.
func depthsOf(e *Engine, ordered bool) []float32 {
	v := e.View()
	var err error
	var ps = make([]float32, 0)
	if ordered {
		all, serr := v.SnapshotOrdered()
		err = serr
		for _, p := range all {
			ps = append(ps, -p.Position[2])
		}
	} else {
		all, serr := v.Snapshot(v.PointCount())
		err = serr
		for _, p := range all {
			ps = append(ps, -p.Position[2])
		}
	}
	if err != nil {
		panic(err)
	}
	return ps
}

// fakeSource is a manually fed frame source. Its channel is unbuffered so
// a send returns only once the controller has taken the frame.
type fakeSource struct {
	mu       sync.Mutex
	ch       chan *l1frames.Frame
	starts   int
	pauses   int
	stops    int
	startErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan *l1frames.Frame)}
}

func (f *fakeSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeSource) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSource) Frames() <-chan *l1frames.Frame { return f.ch }

func (f *fakeSource) counts() (starts, pauses, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.pauses, f.stops
}
