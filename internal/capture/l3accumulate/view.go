package l3accumulate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

// View is a read-only window onto one generation of the engine's buffer.
// It never exposes the write cursor or allows mutation. After a flush,
// clear or reload the view reports ErrStaleView; fetch a new one with
// Engine.View.
type View struct {
	e          *Engine
	generation uint64
}

// SnapshotResult is delivered by SnapshotAsync.
type SnapshotResult struct {
	Particles []pointcloud.Particle
	Err       error
}

// rlock takes the engine read lock and verifies the generation. On
// success the caller must RUnlock.
func (v *View) rlock() error {
	v.e.mu.RLock()
	if v.e.generation != v.generation || v.e.buf == nil {
		v.e.mu.RUnlock()
		return ErrStaleView
	}
	return nil
}

// Generation identifies the buffer generation the view is bound to.
func (v *View) Generation() uint64 { return v.generation }

// PointCount returns the number of valid particles, or 0 for a stale view.
func (v *View) PointCount() int {
	if err := v.rlock(); err != nil {
		return 0
	}
	defer v.e.mu.RUnlock()
	return v.e.count
}

func (v *View) at(i int) (pointcloud.Particle, error) {
	if err := v.rlock(); err != nil {
		return pointcloud.Particle{}, err
	}
	defer v.e.mu.RUnlock()
	if i < 0 || i >= v.e.count {
		panic(fmt.Sprintf("l3accumulate: particle index %d out of range [0, %d)", i, v.e.count))
	}
	return v.e.buf.Read(i), nil
}

// PositionAt returns the world position of particle i. i must be below
// PointCount.
func (v *View) PositionAt(i int) (geom.Vec3, error) {
	p, err := v.at(i)
	return p.Position, err
}

// ColorAt returns the RGB color of particle i in [0,1].
func (v *View) ColorAt(i int) (geom.Vec3, error) {
	p, err := v.at(i)
	return p.Color, err
}

// ConfidenceAt returns the confidence of particle i.
func (v *View) ConfidenceAt(i int) (float32, error) {
	p, err := v.at(i)
	return p.Confidence, err
}

// Snapshot copies the first upTo slots of the buffer. Requesting more
// than PointCount is a programming error and panics. The copy blocks
// flushes until it completes, so it never mixes generations.
func (v *View) Snapshot(upTo int) ([]pointcloud.Particle, error) {
	if err := v.rlock(); err != nil {
		return nil, err
	}
	defer v.e.mu.RUnlock()
	if upTo < 0 || upTo > v.e.count {
		panic(fmt.Sprintf("l3accumulate: snapshot of %d exceeds point count %d", upTo, v.e.count))
	}
	start := v.e.clock.Now()
	out := v.e.buf.Snapshot(upTo)
	v.e.recordSnapshot(v.e.clock.Since(start))
	return out, nil
}

// SnapshotOrdered copies every valid particle, oldest first.
func (v *View) SnapshotOrdered() ([]pointcloud.Particle, error) {
	if err := v.rlock(); err != nil {
		return nil, err
	}
	defer v.e.mu.RUnlock()
	e := v.e
	start := e.clock.Now()
	defer func() { e.recordSnapshot(e.clock.Since(start)) }()
	if e.count < e.maxPoints {
		return e.buf.Snapshot(e.count), nil
	}
	// Full ring: the oldest particle sits at the cursor.
	all := e.buf.Snapshot(e.maxPoints)
	out := make([]pointcloud.Particle, 0, len(all))
	out = append(out, all[e.cursor:]...)
	return append(out, all[:e.cursor]...), nil
}

// SnapshotAsync performs Snapshot on a separate goroutine and delivers the
// result on the returned channel. upTo is validated before returning.
func (v *View) SnapshotAsync(ctx context.Context, upTo int) <-chan SnapshotResult {
	out := make(chan SnapshotResult, 1)
	if err := v.rlock(); err != nil {
		out <- SnapshotResult{Err: err}
		return out
	}
	n := v.e.count
	v.e.mu.RUnlock()
	if upTo < 0 || upTo > n {
		panic(fmt.Sprintf("l3accumulate: snapshot of %d exceeds point count %d", upTo, n))
	}
	go func() {
		if err := ctx.Err(); err != nil {
			out <- SnapshotResult{Err: err}
			return
		}
		// The count of a generation never shrinks, so upTo stays valid
		// unless the generation is replaced, which reports ErrStaleView.
		ps, err := v.Snapshot(upTo)
		out <- SnapshotResult{Particles: ps, Err: err}
	}()
	return out
}

// SnapshotOrderedAsync performs SnapshotOrdered on a separate goroutine
// and delivers the result on the returned channel.
func (v *View) SnapshotOrderedAsync(ctx context.Context) <-chan SnapshotResult {
	out := make(chan SnapshotResult, 1)
	go func() {
		if err := ctx.Err(); err != nil {
			out <- SnapshotResult{Err: err}
			return
		}
		ps, err := v.SnapshotOrdered()
		out <- SnapshotResult{Particles: ps, Err: err}
	}()
	return out
}

// RawBytes copies the valid particles in their buffer layout, slot order,
// for upload to a graphics adapter. The stride is
// pointcloud.ParticleStride.
func (v *View) RawBytes() ([]byte, error) {
	if err := v.rlock(); err != nil {
		return nil, err
	}
	defer v.e.mu.RUnlock()
	b := v.e.buf
	return bytes.Clone(b.Bytes()[:v.e.count*b.Stride()]), nil
}

// ToObject3D materialises the first count particles as a flat Object3D
// for geometry processing or export.
func (v *View) ToObject3D(count int) (pointcloud.Object3D, error) {
	ps, err := v.Snapshot(count)
	if err != nil {
		return pointcloud.Object3D{}, err
	}
	return pointcloud.FromParticles(ps), nil
}
