package pointcloud

import (
	"math"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthscan/internal/geom"
)

func TestParticleLayout(t *testing.T) {
	assert.Equal(t, uintptr(28), unsafe.Sizeof(Particle{}))
	assert.Equal(t, 28, ParticleStride)
	assert.Equal(t, uintptr(24), unsafe.Offsetof(Particle{}.Confidence))
}

func TestObject3DParticleConversion(t *testing.T) {
	ps := []Particle{
		{Position: geom.XYZ(1, 2, 3), Color: geom.XYZ(1, 0, 0.5), Confidence: 2},
		{Position: geom.XYZ(-1, 0, 0), Color: geom.XYZ(0, 1, 0), Confidence: 1},
	}
	obj := FromParticles(ps)
	require.NoError(t, obj.Validate())
	assert.Equal(t, []uint8{2, 1}, obj.Confidence)
	assert.False(t, obj.HasNormals())
	assert.False(t, obj.HasTriangles())

	if diff := cmp.Diff(ps, obj.Particles()); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestParticlesFillsMissingArrays(t *testing.T) {
	obj := Object3D{Vertices: []geom.Vec3{{1, 1, 1}, {2, 2, 2}}}
	ps := obj.Particles()
	require.Len(t, ps, 2)
	assert.Equal(t, geom.Vec3{}, ps[1].Color)
	assert.Zero(t, ps[1].Confidence)
}

func TestObject3DValidate(t *testing.T) {
	v := []geom.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	tests := []struct {
		name    string
		obj     Object3D
		wantErr bool
	}{
		{"vertices only", Object3D{Vertices: v}, false},
		{"mesh", Object3D{Vertices: v, Triangles: [][3]uint32{{0, 1, 2}}}, false},
		{"short colors", Object3D{Vertices: v, Colors: v[:2]}, true},
		{"long confidence", Object3D{Vertices: v, Confidence: []uint8{1, 1, 1, 1}}, true},
		{"bad triangle", Object3D{Vertices: v, Triangles: [][3]uint32{{0, 1, 3}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obj.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVec3BlobLayout(t *testing.T) {
	blob := EncodeVec3Blob([]geom.Vec3{{1, -2, 0.5}})
	require.Len(t, blob, 12)
	// 1.0f little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, blob[0:4])
	// -2.0f
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0xc0}, blob[4:8])
	// 0.5f
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f}, blob[8:12])
}

func TestVec3BlobRoundTrip(t *testing.T) {
	in := []geom.Vec3{
		{0, 0, 0},
		{math.MaxFloat32, -math.SmallestNonzeroFloat32, 1e-7},
		{float32(math.Inf(1)), 3.25, -0},
	}
	out, err := DecodeVec3Blob(EncodeVec3Blob(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	empty, err := DecodeVec3Blob(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecodeVec3Blob(make([]byte, 13))
	assert.Error(t, err)
}
