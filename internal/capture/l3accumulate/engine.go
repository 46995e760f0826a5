package l3accumulate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/banshee-data/depthscan/internal/capture/l1frames"
	"github.com/banshee-data/depthscan/internal/capture/l2sampling"
	"github.com/banshee-data/depthscan/internal/config"
	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/gpubuf"
	"github.com/banshee-data/depthscan/internal/monitoring"
	"github.com/banshee-data/depthscan/internal/pointcloud"
	"github.com/banshee-data/depthscan/internal/timeutil"
)

var logf = monitoring.Component("accumulate")

// EngineConfig contains configuration for the Engine.
type EngineConfig struct {
	MaxPoints           int                     // ring capacity in particles (required)
	FallbackMaxPoints   int                     // capacity tried when MaxPoints cannot be allocated (0 = none)
	MaxBufferBytes      int64                   // allocation ceiling per buffer (0 = unlimited)
	PointsPerFrame      int                     // grid size (default: 2000)
	CameraWidth         int                     // grid aspect width (default: 1920)
	CameraHeight        int                     // grid aspect height (default: 1440)
	ConfidenceThreshold l1frames.Confidence     // minimum accepted confidence (default: medium via config)
	HorizontalRate      l2sampling.SamplingRate // rotation sensitivity (default: regular)
	VerticalRate        l2sampling.SamplingRate // translation sensitivity (default: regular)
	Initial             []pointcloud.Particle   // particles to seed the buffer with
	Clock               timeutil.Clock          // readback timing (default: RealClock)
	Debug               bool                    // per-frame logging
}

// EngineConfigFromCapture maps the file-level capture config onto an
// EngineConfig.
func EngineConfigFromCapture(cfg *config.CaptureConfig) (EngineConfig, error) {
	conf, err := l1frames.ParseConfidence(cfg.GetConfidenceThreshold())
	if err != nil {
		return EngineConfig{}, err
	}
	h, err := l2sampling.ParseSamplingRate(cfg.GetHorizontalSamplingRate())
	if err != nil {
		return EngineConfig{}, err
	}
	v, err := l2sampling.ParseSamplingRate(cfg.GetVerticalSamplingRate())
	if err != nil {
		return EngineConfig{}, err
	}
	return EngineConfig{
		MaxPoints:           cfg.GetMaxPoints(),
		FallbackMaxPoints:   cfg.GetFallbackMaxPoints(),
		MaxBufferBytes:      cfg.GetMaxBufferBytes(),
		PointsPerFrame:      cfg.GetPointsPerFrame(),
		CameraWidth:         cfg.GetCameraWidth(),
		CameraHeight:        cfg.GetCameraHeight(),
		ConfidenceThreshold: conf,
		HorizontalRate:      h,
		VerticalRate:        v,
		Debug:               cfg.GetDebug(),
	}, nil
}

// FrameResult summarises what ProcessFrame did with one frame.
type FrameResult struct {
	Accumulated bool   // samples were written
	Reason      string // why the frame was skipped, if it was
	Accepted    int    // particles written
	Discarded   int    // samples rejected for depth or confidence
	PointCount  int    // point count after the frame
}

// Skip reasons reported in FrameResult.Reason.
const (
	SkipNotAccumulating = "not accumulating"
	SkipNoMotion        = "camera has not moved"
)

// EngineStats is a point-in-time summary of the engine.
type EngineStats struct {
	PointCount        int           `json:"point_count"`
	Capacity          int           `json:"capacity"`
	Cursor            int           `json:"cursor"`
	Generation        uint64        `json:"generation"`
	ByteSize          int64         `json:"byte_size"`
	Accumulating      bool          `json:"accumulating"`
	HasBuffer         bool          `json:"has_buffer"`
	FramesProcessed   uint64        `json:"frames_processed"`
	FramesAccumulated uint64        `json:"frames_accumulated"`
	FramesMissingData uint64        `json:"frames_missing_data"`
	SamplesAccepted   uint64        `json:"samples_accepted"`
	SamplesDiscarded  uint64        `json:"samples_discarded"`
	LastSnapshot      time.Duration `json:"last_snapshot_ns"`
}

// Engine fuses frames into a fixed-capacity particle ring buffer. One
// frame is in flight at a time; readers take copies through a View.
type Engine struct {
	sem *semaphore.Weighted // one frame in flight

	mu               sync.RWMutex // guards everything below
	buf              *gpubuf.Buffer[pointcloud.Particle]
	grid             []geom.Vec2
	maxPoints        int // capacity of buf
	pendingMaxPoints int // capacity used by the next flush
	fallbackMax      int
	maxBytes         int64
	cursor           int
	count            int
	lastPose         geom.Mat4
	accumulating     bool
	gate             *l2sampling.Gate
	confThreshold    l1frames.Confidence
	generation       uint64
	stats            EngineStats
	clock            timeutil.Clock
	debug            bool

	lastSnapshot atomic.Int64 // nanoseconds taken by the latest snapshot copy

	subsMu sync.Mutex
	subs   map[int]chan int
	nextID int
}

// NewEngine builds the sampling grid and allocates the particle buffer.
// Allocation failure is reported as ErrUnableToStartScan wrapping
// gpubuf.ErrCreation.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	// Set reasonable defaults
	if cfg.PointsPerFrame <= 0 {
		cfg.PointsPerFrame = l2sampling.DefaultPointsPerFrame
	}
	if cfg.CameraWidth <= 0 {
		cfg.CameraWidth = 1920
	}
	if cfg.CameraHeight <= 0 {
		cfg.CameraHeight = 1440
	}
	if cfg.HorizontalRate == 0 {
		cfg.HorizontalRate = l2sampling.RateRegular
	}
	if cfg.VerticalRate == 0 {
		cfg.VerticalRate = l2sampling.RateRegular
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	grid, err := l2sampling.BuildGrid(cfg.PointsPerFrame, cfg.CameraWidth, cfg.CameraHeight)
	if err != nil {
		return nil, err
	}
	gate, err := l2sampling.NewGate(cfg.HorizontalRate, cfg.VerticalRate)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		sem:              semaphore.NewWeighted(1),
		grid:             grid,
		pendingMaxPoints: cfg.MaxPoints,
		fallbackMax:      cfg.FallbackMaxPoints,
		maxBytes:         cfg.MaxBufferBytes,
		gate:             gate,
		confThreshold:    cfg.ConfidenceThreshold,
		clock:            cfg.Clock,
		debug:            cfg.Debug,
		subs:             make(map[int]chan int),
	}
	if err := e.allocateLocked(); err != nil {
		return nil, err
	}
	if len(cfg.Initial) > 0 {
		e.reloadLocked(cfg.Initial)
	}
	return e, nil
}

// allocateLocked replaces the buffer with a fresh one at pendingMaxPoints,
// falling back to the reduced capacity when configured. On failure the
// engine is left without a buffer.
func (e *Engine) allocateLocked() error {
	e.buf = nil
	e.maxPoints = 0
	e.cursor, e.count = 0, 0
	e.lastPose = geom.Mat4{}
	e.generation++

	buf, err := gpubuf.New[pointcloud.Particle](e.pendingMaxPoints, gpubuf.Options{
		Label:    "particles",
		MaxBytes: e.maxBytes,
	})
	if err != nil && errors.Is(err, gpubuf.ErrCreation) && e.fallbackMax > 0 && e.fallbackMax < e.pendingMaxPoints {
		logf("particle buffer of %d points failed (%v), falling back to %d", e.pendingMaxPoints, err, e.fallbackMax)
		buf, err = gpubuf.New[pointcloud.Particle](e.fallbackMax, gpubuf.Options{
			Label:    "particles",
			MaxBytes: e.maxBytes,
		})
	}
	if err != nil {
		logf("cannot allocate particle buffer: %v", err)
		return fmt.Errorf("%w: %w", ErrUnableToStartScan, err)
	}
	e.buf = buf
	e.maxPoints = buf.Capacity()
	return nil
}

// ProcessFrame samples one frame into the ring buffer when the engine is
// accumulating and the camera has moved enough since the last accumulated
// frame. Frames without depth data return ErrFrameDataMissing and leave
// the engine untouched.
func (e *Engine) ProcessFrame(ctx context.Context, f *l1frames.Frame) (FrameResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return FrameResult{}, err
	}
	defer e.sem.Release(1)

	res, err := e.processFrame(f)
	if res.Accepted > 0 {
		e.notify(res.PointCount)
	}
	return res, err
}

func (e *Engine) processFrame(f *l1frames.Frame) (FrameResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := FrameResult{PointCount: e.count}
	// State is checked under the same lock Pause takes, so a paused
	// session never sees a partial frame.
	if !e.accumulating {
		res.Reason = SkipNotAccumulating
		return res, nil
	}
	e.stats.FramesProcessed++
	if !f.HasDepthData() {
		e.stats.FramesMissingData++
		return res, ErrFrameDataMissing
	}
	if e.buf == nil {
		return res, ErrNoBuffer
	}
	if !e.gate.ShouldAccumulate(f.Pose, e.lastPose, e.count) {
		res.Reason = SkipNoMotion
		return res, nil
	}

	u, err := l2sampling.NewUnprojector(f)
	if err != nil {
		return res, fmt.Errorf("frame %d: %w", f.Seq, err)
	}
	for _, uv := range e.grid {
		p, conf, ok := u.Sample(uv)
		if !ok || conf < e.confThreshold {
			res.Discarded++
			continue
		}
		e.buf.Write(e.cursor, p)
		e.cursor = (e.cursor + 1) % e.maxPoints
		res.Accepted++
	}
	e.count = min(e.count+res.Accepted, e.maxPoints)
	e.lastPose = f.Pose

	e.stats.FramesAccumulated++
	e.stats.SamplesAccepted += uint64(res.Accepted)
	e.stats.SamplesDiscarded += uint64(res.Discarded)
	res.Accumulated = true
	res.PointCount = e.count
	if e.debug {
		logf("frame %d: accepted=%d discarded=%d count=%d cursor=%d", f.Seq, res.Accepted, res.Discarded, e.count, e.cursor)
	}
	return res, nil
}

// SetAccumulating enables or disables ProcessFrame. It waits for any frame
// already being written.
func (e *Engine) SetAccumulating(on bool) {
	e.mu.Lock()
	e.accumulating = on
	e.mu.Unlock()
}

// Accumulating reports whether ProcessFrame is enabled.
func (e *Engine) Accumulating() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accumulating
}

// Flush reallocates the buffer at the configured capacity and resets the
// cursor and point count. Accumulation is disabled until re-enabled. It
// waits for in-flight snapshots of the old buffer to finish.
func (e *Engine) Flush() error {
	e.mu.Lock()
	e.accumulating = false
	err := e.allocateLocked()
	e.mu.Unlock()
	e.notify(0)
	return err
}

// EnsureBuffer allocates a buffer if the engine has none, as after
// ClearAll or a failed flush.
func (e *Engine) EnsureBuffer() error {
	e.mu.Lock()
	if e.buf != nil {
		e.mu.Unlock()
		return nil
	}
	err := e.allocateLocked()
	e.mu.Unlock()
	e.notify(0)
	return err
}

// ClearAll drops the buffer entirely.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	e.accumulating = false
	e.buf = nil
	e.maxPoints = 0
	e.cursor, e.count = 0, 0
	e.lastPose = geom.Mat4{}
	e.generation++
	e.mu.Unlock()
	e.notify(0)
}

// Reload replaces the buffer contents with ps, as after a geometry
// processing round trip. If ps exceeds the capacity only the newest
// particles are kept.
func (e *Engine) Reload(ps []pointcloud.Particle) error {
	e.mu.Lock()
	if e.buf == nil {
		e.mu.Unlock()
		return ErrNoBuffer
	}
	e.reloadLocked(ps)
	n := e.count
	e.mu.Unlock()
	e.notify(n)
	return nil
}

func (e *Engine) reloadLocked(ps []pointcloud.Particle) {
	if len(ps) > e.maxPoints {
		ps = ps[len(ps)-e.maxPoints:]
	}
	e.buf.Assign(ps)
	e.count = len(ps)
	e.cursor = len(ps) % e.maxPoints
	e.generation++
}

// SetMaxPoints sets the capacity used by the next Flush.
func (e *Engine) SetMaxPoints(n int) error {
	if n <= 0 {
		return fmt.Errorf("max points must be positive, got %d", n)
	}
	e.mu.Lock()
	e.pendingMaxPoints = n
	e.mu.Unlock()
	return nil
}

// SetConfidenceThreshold sets the minimum confidence of accepted samples.
func (e *Engine) SetConfidenceThreshold(c l1frames.Confidence) {
	e.mu.Lock()
	e.confThreshold = c
	e.mu.Unlock()
}

// SetSamplingRates updates the motion gate. Rates must be positive; on
// error the previous rates stay in effect.
func (e *Engine) SetSamplingRates(horizontal, vertical l2sampling.SamplingRate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.SetRates(horizontal, vertical)
}

// SamplingRates returns the motion gate's current rates.
func (e *Engine) SamplingRates() (horizontal, vertical l2sampling.SamplingRate) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gate.Rates()
}

// ConfidenceThreshold returns the minimum accepted sample confidence.
func (e *Engine) ConfidenceThreshold() l1frames.Confidence {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.confThreshold
}

// Stats returns a summary of the engine.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.stats
	s.PointCount = e.count
	s.Capacity = e.maxPoints
	s.Cursor = e.cursor
	s.Generation = e.generation
	s.Accumulating = e.accumulating
	s.HasBuffer = e.buf != nil
	if e.buf != nil {
		s.ByteSize = e.buf.ByteSize()
	}
	s.LastSnapshot = time.Duration(e.lastSnapshot.Load())
	return s
}

// PointCount returns the number of valid particles.
func (e *Engine) PointCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.count
}

// View returns a read-only view bound to the current buffer generation.
// Consumers fetch a fresh view each time they start reading.
func (e *Engine) View() *View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return &View{e: e, generation: e.generation}
}

// Subscribe returns a channel that receives the point count whenever it
// changes. Slow receivers see only the latest value. The returned
// function unsubscribes.
func (e *Engine) Subscribe() (<-chan int, func()) {
	ch := make(chan int, 1)
	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subsMu.Unlock()
	return ch, func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

func (e *Engine) notify(count int) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- count:
		default:
			// Replace the unread value with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- count:
			default:
			}
		}
	}
}

func (e *Engine) recordSnapshot(d time.Duration) {
	e.lastSnapshot.Store(int64(d))
}
