package preview

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

func ring(n int) []pointcloud.Particle {
	ps := make([]pointcloud.Particle, n)
	for i := range ps {
		f := float32(i) / float32(n)
		ps[i] = pointcloud.Particle{
			Position: geom.XYZ(f*4-2, f, -f*3),
			Color:    geom.XYZ(f, 1-f, 0.5),
		}
	}
	return ps
}

func TestThumbnail(t *testing.T) {
	b, err := Thumbnail(pointcloud.FromParticles(ring(500)), 128)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(b))
	require.NoError(t, err)
	assert.InDelta(t, 128, cfg.Width, 1)
	assert.InDelta(t, 128, cfg.Height, 1)
}

func TestThumbnailWithoutColors(t *testing.T) {
	obj := pointcloud.Object3D{Vertices: []geom.Vec3{geom.XYZ(0, 0, 0), geom.XYZ(1, 0, -1)}}
	b, err := Thumbnail(obj, 32)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(b))
	assert.NoError(t, err)
}

func TestThumbnailErrors(t *testing.T) {
	_, err := Thumbnail(pointcloud.Object3D{}, 64)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Thumbnail(pointcloud.FromParticles(ring(3)), 0)
	assert.Error(t, err)
}

func TestStride(t *testing.T) {
	assert.Equal(t, 1, stride(10, 100))
	assert.Equal(t, 1, stride(10, 0))
	assert.Equal(t, 2, stride(101, 100))
	assert.Equal(t, 3, stride(250, 100))
}

func TestScatterHTML(t *testing.T) {
	var buf bytes.Buffer
	err := ScatterHTML(&buf, ring(1000), ScatterOptions{Title: "Live capture", MaxPoints: 100})
	require.NoError(t, err)

	html := buf.String()
	assert.True(t, strings.Contains(html, "Live capture"))
	assert.Contains(t, html, "points=100 stride=10")
	assert.Contains(t, html, "echarts")

	assert.ErrorIs(t, ScatterHTML(&buf, nil, ScatterOptions{}), ErrEmpty)
}
