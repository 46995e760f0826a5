package l1frames

import (
	"fmt"
	"image"
	"time"

	"github.com/banshee-data/depthscan/internal/geom"
)

// Confidence is the tri-level quality a depth sensor attaches to each pixel.
type Confidence uint8

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return fmt.Sprintf("confidence(%d)", uint8(c))
	}
}

// ParseConfidence maps "low", "medium" or "high" to a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	switch s {
	case "low":
		return ConfidenceLow, nil
	case "medium":
		return ConfidenceMedium, nil
	case "high":
		return ConfidenceHigh, nil
	}
	return 0, fmt.Errorf("unknown confidence level %q", s)
}

// DepthMap holds per-pixel depth in meters, row-major.
type DepthMap struct {
	Width, Height int
	Values        []float32
}

// At returns the depth at pixel (x, y).
func (d *DepthMap) At(x, y int) float32 {
	return d.Values[y*d.Width+x]
}

// ConfidenceMap holds per-pixel confidence, row-major, at the depth map's
// resolution.
type ConfidenceMap struct {
	Width, Height int
	Values        []Confidence
}

// At returns the confidence at pixel (x, y).
func (c *ConfidenceMap) At(x, y int) Confidence {
	return c.Values[y*c.Width+x]
}

// Frame is one delivery from the depth camera.
type Frame struct {
	Seq       uint64    // monotonically increasing per source
	Timestamp time.Time // capture time

	// Intrinsics map camera space to pixels of a CameraWidth x CameraHeight
	// image.
	Intrinsics   geom.Mat3
	CameraWidth  int
	CameraHeight int

	// Pose is the camera-to-world transform. The camera looks down -Z
	// with +Y up.
	Pose geom.Mat4

	Depth      *DepthMap
	Confidence *ConfidenceMap
	Color      image.Image // planar YCbCr or RGB
}

// HasDepthData reports whether depth and confidence are present and
// consistent. Frames without them are skipped, not treated as failures.
func (f *Frame) HasDepthData() bool {
	if f == nil || f.Depth == nil || f.Confidence == nil {
		return false
	}
	d, c := f.Depth, f.Confidence
	return d.Width > 0 && d.Height > 0 &&
		len(d.Values) == d.Width*d.Height &&
		c.Width == d.Width && c.Height == d.Height &&
		len(c.Values) == len(d.Values)
}
