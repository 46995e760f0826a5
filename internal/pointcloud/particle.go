// Package pointcloud defines the accumulated particle layout and the flat
// Object3D interchange structure used by exporters, storage and geometry
// processing.
package pointcloud

import (
	"fmt"
	"unsafe"

	"github.com/banshee-data/depthscan/internal/geom"
)

// Particle is one accumulated sample. Its layout is shared with the
// graphics adapter: three float32 position, three float32 color in [0,1],
// then confidence as a float32 (0 low, 1 medium, 2 high).
type Particle struct {
	Position   geom.Vec3
	Color      geom.Vec3
	Confidence float32
}

// ParticleStride is the size of one Particle in buffer memory.
const ParticleStride = int(unsafe.Sizeof(Particle{}))

// Object3D is a flat, processing-friendly point cloud or mesh. Optional
// arrays are either empty or the same length as Vertices.
type Object3D struct {
	Vertices   []geom.Vec3
	Colors     []geom.Vec3
	Normals    []geom.Vec3
	Confidence []uint8
	Triangles  [][3]uint32
}

func (o Object3D) HasVertices() bool   { return len(o.Vertices) > 0 }
func (o Object3D) HasColors() bool     { return len(o.Colors) > 0 }
func (o Object3D) HasNormals() bool    { return len(o.Normals) > 0 }
func (o Object3D) HasConfidence() bool { return len(o.Confidence) > 0 }
func (o Object3D) HasTriangles() bool  { return len(o.Triangles) > 0 }

// Validate checks that per-vertex arrays line up and triangle indices
// reference existing vertices.
func (o Object3D) Validate() error {
	n := len(o.Vertices)
	for name, l := range map[string]int{
		"colors":     len(o.Colors),
		"normals":    len(o.Normals),
		"confidence": len(o.Confidence),
	} {
		if l != 0 && l != n {
			return fmt.Errorf("object3d: %d %s for %d vertices", l, name, n)
		}
	}
	for i, tri := range o.Triangles {
		for _, idx := range tri {
			if int(idx) >= n {
				return fmt.Errorf("object3d: triangle %d references vertex %d of %d", i, idx, n)
			}
		}
	}
	return nil
}

// FromParticles materialises particles as an Object3D with colors and
// confidence populated.
func FromParticles(ps []Particle) Object3D {
	obj := Object3D{
		Vertices:   make([]geom.Vec3, len(ps)),
		Colors:     make([]geom.Vec3, len(ps)),
		Confidence: make([]uint8, len(ps)),
	}
	for i, p := range ps {
		obj.Vertices[i] = p.Position
		obj.Colors[i] = p.Color
		obj.Confidence[i] = confidenceByte(p.Confidence)
	}
	return obj
}

// Particles converts the object back into buffer layout. Missing colors or
// confidence are left zero; normals and triangles are dropped.
func (o Object3D) Particles() []Particle {
	ps := make([]Particle, len(o.Vertices))
	for i, v := range o.Vertices {
		ps[i].Position = v
		if i < len(o.Colors) {
			ps[i].Color = o.Colors[i]
		}
		if i < len(o.Confidence) {
			ps[i].Confidence = float32(o.Confidence[i])
		}
	}
	return ps
}

func confidenceByte(c float32) uint8 {
	switch {
	case c <= 0:
		return 0
	case c >= 255:
		return 255
	default:
		return uint8(c + 0.5)
	}
}
