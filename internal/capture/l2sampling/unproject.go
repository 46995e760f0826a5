package l2sampling

import (
	"image"
	"math"

	"github.com/banshee-data/depthscan/internal/capture/l1frames"
	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

// Unprojector lifts grid samples of one frame into world space.
type Unprojector struct {
	frame        *l1frames.Frame
	invK         geom.Mat3
	localToWorld geom.Mat4
	camW, camH   float32
}

// NewUnprojector prepares the per-frame inverse intrinsics and the
// camera-to-world transform. The frame must carry depth data.
func NewUnprojector(f *l1frames.Frame) (*Unprojector, error) {
	invK, err := geom.InvertMat3(f.Intrinsics)
	if err != nil {
		return nil, err
	}
	return &Unprojector{
		frame:        f,
		invK:         invK,
		localToWorld: f.Pose.Mul(geom.FlipYZ()),
		camW:         float32(f.CameraWidth),
		camH:         float32(f.CameraHeight),
	}, nil
}

// Sample unprojects the normalized grid coordinate uv. ok is false when
// the pixel has no usable depth.
func (u *Unprojector) Sample(uv geom.Vec2) (p pointcloud.Particle, conf l1frames.Confidence, ok bool) {
	d, c := u.frame.Depth, u.frame.Confidence
	dx, dy := texel(uv[0], d.Width), texel(uv[1], d.Height)
	depth := d.At(dx, dy)
	if depth <= 0 || math.IsNaN(float64(depth)) || math.IsInf(float64(depth), 0) {
		return p, 0, false
	}
	conf = c.At(dx, dy)

	pixel := geom.XYZ(uv[0]*u.camW, uv[1]*u.camH, 1)
	local := u.invK.MulVec3(pixel).Mul(depth)
	world := u.localToWorld.MulVec4(local.Vec4(1))

	p.Position = world.Vec3()
	p.Color = sampleColor(u.frame.Color, uv)
	p.Confidence = float32(conf)
	return p, conf, true
}

func texel(v float32, size int) int {
	i := int(v * float32(size))
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}

// sampleColor reads the nearest pixel and returns RGB in [0,1].
func sampleColor(img image.Image, uv geom.Vec2) geom.Vec3 {
	if img == nil {
		return geom.Vec3{}
	}
	b := img.Bounds()
	if b.Empty() {
		return geom.Vec3{}
	}
	x := b.Min.X + texel(uv[0], b.Dx())
	y := b.Min.Y + texel(uv[1], b.Dy())
	r, g, bl, _ := img.At(x, y).RGBA()
	return geom.XYZ(float32(r)/0xffff, float32(g)/0xffff, float32(bl)/0xffff)
}
