package geoproc

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthscan/internal/geom"
	"github.com/banshee-data/depthscan/internal/monitoring"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestParseOperation(t *testing.T) {
	for _, op := range Operations {
		got, err := ParseOperation(string(op))
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	_, err := ParseOperation("smooth")
	assert.Error(t, err)
}

func TestParametersValidate(t *testing.T) {
	def := DefaultParameters()
	for _, op := range Operations {
		assert.NoError(t, def.Validate(op), op)
	}

	tests := []struct {
		name   string
		op     Operation
		mutate func(p *Parameters)
	}{
		{"zero normal radius", OpNormalsEstimation, func(p *Parameters) { p.Normals.Radius = 0 }},
		{"poisson depth too deep", OpPoissonReconstruction, func(p *Parameters) { p.Poisson.Depth = 17 }},
		{"negative poisson scale", OpPoissonReconstruction, func(p *Parameters) { p.Poisson.Scale = -1 }},
		{"zero voxel", OpVoxelDownSampling, func(p *Parameters) { p.Voxel.VoxelSize = 0 }},
		{"zero neighbors", OpStatisticalOutlierRemoval, func(p *Parameters) { p.Statistical.Neighbors = 0 }},
		{"zero radius", OpRadiusOutlierRemoval, func(p *Parameters) { p.Radius.Radius = 0 }},
		{"unknown op", Operation("smooth"), func(p *Parameters) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mutate(&p)
			assert.Error(t, p.Validate(tt.op))
		})
	}
}

// flakyProcessor fails with the queued errors before succeeding.
type flakyProcessor struct {
	errs  []error
	calls int
}

func (f *flakyProcessor) Transform(ctx context.Context, op Operation, obj pointcloud.Object3D, params Parameters) (pointcloud.Object3D, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return pointcloud.Object3D{}, err
	}
	// Keep every other vertex.
	var out pointcloud.Object3D
	for i := 0; i < len(obj.Vertices); i += 2 {
		out.Vertices = append(out.Vertices, obj.Vertices[i])
	}
	return out, nil
}

func newTestRetrying(next Processor, retries int) *RetryingProcessor {
	r := NewRetryingProcessor(next, retries)
	r.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return r
}

func testObject(n int) pointcloud.Object3D {
	var obj pointcloud.Object3D
	for i := 0; i < n; i++ {
		obj.Vertices = append(obj.Vertices, geom.XYZ(float32(i), 0, 0))
	}
	return obj
}

func TestRetryingProcessorRetriesTransient(t *testing.T) {
	transient := &ProcessingError{Op: OpVoxelDownSampling, Err: errors.New("service busy"), Transient: true}
	p := &flakyProcessor{errs: []error{transient, transient}}
	r := newTestRetrying(p, 3)

	out, err := r.Transform(context.Background(), OpVoxelDownSampling, testObject(4), DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Len(t, out.Vertices, 2)
}

func TestRetryingProcessorGivesUp(t *testing.T) {
	transient := &ProcessingError{Op: OpVoxelDownSampling, Err: errors.New("service busy"), Transient: true}
	p := &flakyProcessor{errs: []error{transient, transient, transient}}
	r := newTestRetrying(p, 1)

	_, err := r.Transform(context.Background(), OpVoxelDownSampling, testObject(4), DefaultParameters())
	require.Error(t, err)
	assert.Equal(t, 2, p.calls)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "service busy")
}

func TestRetryingProcessorPermanent(t *testing.T) {
	p := &flakyProcessor{errs: []error{errors.New("mesh is not manifold")}}
	r := newTestRetrying(p, 3)

	_, err := r.Transform(context.Background(), OpPoissonReconstruction, testObject(4), DefaultParameters())
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
	var pe *ProcessingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, OpPoissonReconstruction, pe.Op)
	assert.False(t, IsRetryable(err))
}

func TestRetryingProcessorInvalidParameters(t *testing.T) {
	p := &flakyProcessor{}
	r := newTestRetrying(p, 3)
	params := DefaultParameters()
	params.Voxel.VoxelSize = 0

	_, err := r.Transform(context.Background(), OpVoxelDownSampling, testObject(4), params)
	assert.Error(t, err)
	assert.Zero(t, p.calls)
}

func TestRetryingProcessorCancelled(t *testing.T) {
	transient := &ProcessingError{Op: OpVoxelDownSampling, Err: errors.New("busy"), Transient: true}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	next := ProcessorFunc(func(context.Context, Operation, pointcloud.Object3D, Parameters) (pointcloud.Object3D, error) {
		calls++
		cancel()
		return pointcloud.Object3D{}, transient
	})
	r := newTestRetrying(next, 10)

	_, err := r.Transform(ctx, OpVoxelDownSampling, testObject(1), DefaultParameters())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type memCapture struct {
	particles []pointcloud.Particle
	reloadErr error
}

func (m *memCapture) PointCount() int { return len(m.particles) }

func (m *memCapture) ToObject3D(count int) (pointcloud.Object3D, error) {
	return pointcloud.FromParticles(append([]pointcloud.Particle(nil), m.particles[:count]...)), nil
}

func (m *memCapture) Reload(ps []pointcloud.Particle) error {
	if m.reloadErr != nil {
		return m.reloadErr
	}
	m.particles = ps
	return nil
}

func TestRoundTrip(t *testing.T) {
	live := &memCapture{}
	for i := 0; i < 6; i++ {
		live.particles = append(live.particles, pointcloud.Particle{Position: geom.XYZ(float32(i), 0, 0), Confidence: 2})
	}

	out, err := RoundTrip(context.Background(), &flakyProcessor{}, live, nil, OpVoxelDownSampling, DefaultParameters())
	require.NoError(t, err)
	assert.Len(t, out.Vertices, 3)
	assert.Len(t, live.particles, 6, "no sink leaves the capture alone")

	_, err = RoundTrip(context.Background(), &flakyProcessor{}, live, live, OpVoxelDownSampling, DefaultParameters())
	require.NoError(t, err)
	require.Len(t, live.particles, 3)
	assert.Equal(t, geom.XYZ(4, 0, 0), live.particles[2].Position)
}

func TestRoundTripFailureLeavesCapture(t *testing.T) {
	live := &memCapture{particles: []pointcloud.Particle{{}, {}}}
	failing := ProcessorFunc(func(context.Context, Operation, pointcloud.Object3D, Parameters) (pointcloud.Object3D, error) {
		return pointcloud.Object3D{}, &ProcessingError{Op: OpRadiusOutlierRemoval, Err: errors.New("timeout"), Transient: true}
	})

	_, err := RoundTrip(context.Background(), failing, live, live, OpRadiusOutlierRemoval, DefaultParameters())
	assert.True(t, IsRetryable(err))
	assert.Len(t, live.particles, 2)

	// A result with mismatched attribute arrays is rejected before reload.
	broken := ProcessorFunc(func(context.Context, Operation, pointcloud.Object3D, Parameters) (pointcloud.Object3D, error) {
		return pointcloud.Object3D{Vertices: []geom.Vec3{{}}, Colors: []geom.Vec3{{}, {}}}, nil
	})
	_, err = RoundTrip(context.Background(), broken, live, live, OpRadiusOutlierRemoval, DefaultParameters())
	var pe *ProcessingError
	assert.True(t, errors.As(err, &pe))
	assert.Len(t, live.particles, 2)
}
