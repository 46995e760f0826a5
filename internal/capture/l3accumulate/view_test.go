package l3accumulate

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthscan/internal/capture/l1frames"
	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

func TestViewAccessors(t *testing.T) {
	e := newStripEngine(t, 8, 2)
	_, err := e.ProcessFrame(context.Background(), stripFrame(1, []float32{1, 2}, []l1frames.Confidence{H, M}))
	require.NoError(t, err)

	v := e.View()
	assert.Equal(t, 2, v.PointCount())

	pos, err := v.PositionAt(1)
	require.NoError(t, err)
	assert.InDelta(t, 100+1.5*2, pos[0], 1e-5)
	assert.InDelta(t, -0.5*2, pos[1], 1e-5)
	assert.InDelta(t, -2, pos[2], 1e-5)

	conf, err := v.ConfidenceAt(0)
	require.NoError(t, err)
	assert.Equal(t, float32(H), conf)
	conf, err = v.ConfidenceAt(1)
	require.NoError(t, err)
	assert.Equal(t, float32(M), conf)

	col, err := v.ColorAt(0)
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{}, col, "frames without color sample black")

	assert.Panics(t, func() { _, _ = v.PositionAt(2) })
	assert.Panics(t, func() { _, _ = v.ColorAt(-1) })
	assert.Panics(t, func() { _, _ = v.Snapshot(3) })
	assert.Panics(t, func() { v.SnapshotAsync(context.Background(), 3) })
}

func TestViewStaleAfterFlush(t *testing.T) {
	e := newStripEngine(t, 8, 2)
	_, err := e.ProcessFrame(context.Background(), stripFrame(1, []float32{1, 2}, []l1frames.Confidence{H, H}))
	require.NoError(t, err)

	v := e.View()
	require.NoError(t, e.Flush())

	assert.Zero(t, v.PointCount())
	_, err = v.PositionAt(0)
	assert.True(t, errors.Is(err, ErrStaleView))
	_, err = v.Snapshot(1)
	assert.True(t, errors.Is(err, ErrStaleView))
	_, err = v.SnapshotOrdered()
	assert.True(t, errors.Is(err, ErrStaleView))
	res := <-v.SnapshotAsync(context.Background(), 1)
	assert.True(t, errors.Is(res.Err, ErrStaleView))

	fresh := e.View()
	assert.Greater(t, fresh.Generation(), v.Generation())
	ps, err := fresh.Snapshot(0)
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestViewStaleAfterClearAndReload(t *testing.T) {
	e := newStripEngine(t, 8, 2)
	v := e.View()
	require.NoError(t, e.Reload(nil))
	_, err := v.Snapshot(0)
	assert.ErrorIs(t, err, ErrStaleView)

	v = e.View()
	e.ClearAll()
	_, err = v.Snapshot(0)
	assert.ErrorIs(t, err, ErrStaleView)
	_, err = e.View().Snapshot(0)
	assert.ErrorIs(t, err, ErrStaleView, "no buffer to read")
}

func TestViewSnapshotIsACopy(t *testing.T) {
	e := newStripEngine(t, 8, 2)
	ctx := context.Background()
	_, err := e.ProcessFrame(ctx, stripFrame(1, []float32{1, 2}, []l1frames.Confidence{H, H}))
	require.NoError(t, err)

	ps, err := e.View().Snapshot(2)
	require.NoError(t, err)
	ps[0].Position = geom.XYZ(9, 9, 9)

	p, err := e.View().PositionAt(0)
	require.NoError(t, err)
	assert.NotEqual(t, geom.XYZ(9, 9, 9), p)
}

func TestViewSnapshotAsync(t *testing.T) {
	e := newStripEngine(t, 8, 3)
	_, err := e.ProcessFrame(context.Background(), stripFrame(1, []float32{1, 2, 3}, []l1frames.Confidence{H, H, H}))
	require.NoError(t, err)

	res := <-e.View().SnapshotAsync(context.Background(), 2)
	require.NoError(t, res.Err)
	require.Len(t, res.Particles, 2)
	assert.InDelta(t, -2, res.Particles[1].Position[2], 1e-6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = <-e.View().SnapshotAsync(ctx, 1)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestViewSnapshotOrderedAsync(t *testing.T) {
	e := newStripEngine(t, 4, 2)
	ctx := context.Background()
	for i, d := range [][]float32{{1, 2}, {3, 4}, {5, 6}} {
		_, err := e.ProcessFrame(ctx, stripFrame(i+1, d, []l1frames.Confidence{H, H}))
		require.NoError(t, err)
	}

	res := <-e.View().SnapshotOrderedAsync(ctx)
	require.NoError(t, res.Err)
	got := make([]float32, len(res.Particles))
	for i, p := range res.Particles {
		got[i] = -p.Position[2]
	}
	assert.Equal(t, []float32{3, 4, 5, 6}, got)

	stale := e.View()
	require.NoError(t, e.Flush())
	res = <-stale.SnapshotOrderedAsync(ctx)
	assert.ErrorIs(t, res.Err, ErrStaleView)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res = <-e.View().SnapshotOrderedAsync(cancelled)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestViewRawBytes(t *testing.T) {
	e := newStripEngine(t, 4, 2)
	ctx := context.Background()
	for i, d := range [][]float32{{1, 2}, {3, 4}, {5, 6}} {
		_, err := e.ProcessFrame(ctx, stripFrame(i+1, d, []l1frames.Confidence{H, H}))
		require.NoError(t, err)
	}

	raw, err := e.View().RawBytes()
	require.NoError(t, err)
	require.Len(t, raw, 4*pointcloud.ParticleStride)

	// Slot order: the third frame wrapped onto slots 0 and 1.
	z := func(slot int) float32 {
		off := slot*pointcloud.ParticleStride + 8
		return math.Float32frombits(binary.NativeEndian.Uint32(raw[off:]))
	}
	assert.Equal(t, []float32{-5, -6, -3, -4}, []float32{z(0), z(1), z(2), z(3)})

	raw[8] ^= 0xff
	p, err := e.View().PositionAt(0)
	require.NoError(t, err)
	assert.Equal(t, float32(-5), p[2], "raw bytes are a copy")

	e.ClearAll()
	_, err = e.View().RawBytes()
	assert.ErrorIs(t, err, ErrStaleView)
}

func TestViewToObject3D(t *testing.T) {
	e := newStripEngine(t, 8, 2)
	_, err := e.ProcessFrame(context.Background(), stripFrame(1, []float32{1, 2}, []l1frames.Confidence{H, M}))
	require.NoError(t, err)

	obj, err := e.View().ToObject3D(2)
	require.NoError(t, err)
	assert.Len(t, obj.Vertices, 2)
	assert.Len(t, obj.Colors, 2)
	assert.Equal(t, []uint8{2, 1}, obj.Confidence)
	assert.False(t, obj.HasTriangles())
}

// Snapshots taken while frames are written and the buffer is flushed must
// each come from a single generation: either all particles of the
// generation they started on, or ErrStaleView.
func TestViewSnapshotFlushIsolation(t *testing.T) {
	e := newStripEngine(t, 64, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			// Depth encodes the generation-independent frame index; all
			// samples of one frame share it.
			d := float32(i%1000 + 1)
			_, _ = e.ProcessFrame(ctx, stripFrame(i, []float32{d, d, d, d}, []l1frames.Confidence{H, H, H, H}))
			if i%25 == 0 {
				_ = e.Flush()
				e.SetAccumulating(true)
			}
		}
	}()

	for i := 0; i < 500; i++ {
		v := e.View()
		n := v.PointCount()
		ps, err := v.Snapshot(n)
		if err != nil {
			require.ErrorIs(t, err, ErrStaleView)
			continue
		}
		require.Len(t, ps, n)
		// Every frame writes four samples, and a flush always lands between
		// frames, so a consistent snapshot holds whole frames.
		assert.Zero(t, n%4, "snapshot %d has a partial frame", i)
		for j := 0; j+3 < len(ps); j += 4 {
			assert.Equal(t, ps[j].Position[2], ps[j+3].Position[2])
		}
	}
	cancel()
	wg.Wait()
}
