package l1frames

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/timeutil"
)

// SyntheticConfig configures a SyntheticSource.
type SyntheticConfig struct {
	DepthWidth   int            // depth map width (default: 256)
	DepthHeight  int            // depth map height (default: 192)
	CameraWidth  int            // intrinsics image width (default: 1920)
	CameraHeight int            // intrinsics image height (default: 1440)
	Interval     time.Duration  // delay between frames (default: 33ms)
	Radius       float32        // orbit radius in meters (default: 2)
	StepDegrees  float64        // orbit advance per frame (default: 1)
	QueueSize    int            // frame channel capacity (default: 1)
	Clock        timeutil.Clock // tick source (default: RealClock)
}

// SyntheticSource produces a deterministic orbit around a textured wall so
// the pipeline can run without a device. Frames that the consumer has not
// picked up by the next tick are dropped, as a camera session would.
type SyntheticSource struct {
	cfg    SyntheticConfig
	frames chan *Frame
	img    image.Image

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	dropped uint64
}

// NewSyntheticSource creates a stopped SyntheticSource.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	// Set reasonable defaults
	if cfg.DepthWidth <= 0 {
		cfg.DepthWidth = 256
	}
	if cfg.DepthHeight <= 0 {
		cfg.DepthHeight = 192
	}
	if cfg.CameraWidth <= 0 {
		cfg.CameraWidth = 1920
	}
	if cfg.CameraHeight <= 0 {
		cfg.CameraHeight = 1440
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 33 * time.Millisecond
	}
	if cfg.Radius <= 0 {
		cfg.Radius = 2
	}
	if cfg.StepDegrees == 0 {
		cfg.StepDegrees = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &SyntheticSource{
		cfg:    cfg,
		frames: make(chan *Frame, cfg.QueueSize),
		img:    checkerboard(64, 48),
	}
}

// Frames returns the delivery channel.
func (s *SyntheticSource) Frames() <-chan *Frame { return s.frames }

// Start begins ticking. Calling Start on a running source is a no-op.
func (s *SyntheticSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	return nil
}

// Pause halts delivery; the orbit resumes where it left off.
func (s *SyntheticSource) Pause() error {
	s.halt()
	return nil
}

// Stop halts delivery and rewinds the orbit.
func (s *SyntheticSource) Stop() error {
	s.halt()
	s.mu.Lock()
	s.seq = 0
	s.mu.Unlock()
	return nil
}

// Dropped returns how many frames were discarded because the consumer was
// still busy.
func (s *SyntheticSource) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *SyntheticSource) halt() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *SyntheticSource) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			f := s.Next()
			select {
			case s.frames <- f:
			default:
				s.mu.Lock()
				s.dropped++
				s.mu.Unlock()
			}
		}
	}
}

// Next builds the next frame of the orbit without delivering it.
func (s *SyntheticSource) Next() *Frame {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()
	return s.frameAt(seq)
}

func (s *SyntheticSource) frameAt(seq uint64) *Frame {
	cfg := s.cfg
	rad := float64(seq) * cfg.StepDegrees * math.Pi / 180
	pose := geom.RotationY(rad).Mul(geom.Translation(geom.XYZ(0, 0, cfg.Radius)))

	f := float32(cfg.CameraWidth) * 0.75
	intrinsics := geom.Mat3{
		f, 0, float32(cfg.CameraWidth) / 2,
		0, f, float32(cfg.CameraHeight) / 2,
		0, 0, 1,
	}

	w, h := cfg.DepthWidth, cfg.DepthHeight
	depth := &DepthMap{Width: w, Height: h, Values: make([]float32, w*h)}
	conf := &ConfidenceMap{Width: w, Height: h, Values: make([]Confidence, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			u := float64(x) / float64(w)
			i := y*w + x
			depth.Values[i] = cfg.Radius + 0.1*float32(math.Sin(u*2*math.Pi))
			switch {
			case x < w/16 || x >= w-w/16:
				conf.Values[i] = ConfidenceLow
			case y < h/8:
				conf.Values[i] = ConfidenceMedium
			default:
				conf.Values[i] = ConfidenceHigh
			}
		}
	}

	return &Frame{
		Seq:          seq,
		Timestamp:    cfg.Clock.Now(),
		Intrinsics:   intrinsics,
		CameraWidth:  cfg.CameraWidth,
		CameraHeight: cfg.CameraHeight,
		Pose:         pose,
		Depth:        depth,
		Confidence:   conf,
		Color:        s.img,
	}
}

func checkerboard(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(255 * x / w), G: uint8(255 * y / h), B: 64, A: 255}
			if (x/8+y/8)%2 == 0 {
				c.B = 192
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
