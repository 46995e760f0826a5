package geoproc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/banshee-data/depthscan/internal/monitoring"
	"github.com/banshee-data/depthscan/internal/pointcloud"
)

var logf = monitoring.Component("geoproc")

// Processor runs one geometry operation on a point cloud. Implementations
// must not modify obj.
type Processor interface {
	Transform(ctx context.Context, op Operation, obj pointcloud.Object3D, params Parameters) (pointcloud.Object3D, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, op Operation, obj pointcloud.Object3D, params Parameters) (pointcloud.Object3D, error)

// Transform calls f.
func (f ProcessorFunc) Transform(ctx context.Context, op Operation, obj pointcloud.Object3D, params Parameters) (pointcloud.Object3D, error) {
	return f(ctx, op, obj, params)
}

// ProcessingError reports a failed operation. Transient failures are
// marked retryable and are surfaced to the user as such.
type ProcessingError struct {
	Op        Operation
	Err       error
	Transient bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("geometry processing %s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Retryable reports whether running the operation again may succeed.
func (e *ProcessingError) Retryable() bool { return e.Transient }

// IsRetryable reports whether err carries a retryable ProcessingError.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe) && pe.Retryable()
}

// RetryingProcessor retries retryable failures of the wrapped processor
// with exponential backoff. Any other error ends the attempt at once.
type RetryingProcessor struct {
	Next       Processor
	MaxRetries uint64                 // retries after the first attempt (default: 3)
	NewBackOff func() backoff.BackOff // backoff policy (default: exponential from 200ms)
}

// NewRetryingProcessor wraps next with up to maxRetries retries.
func NewRetryingProcessor(next Processor, maxRetries int) *RetryingProcessor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingProcessor{Next: next, MaxRetries: uint64(maxRetries)}
}

// Transform implements Processor.
func (r *RetryingProcessor) Transform(ctx context.Context, op Operation, obj pointcloud.Object3D, params Parameters) (pointcloud.Object3D, error) {
	if err := params.Validate(op); err != nil {
		return pointcloud.Object3D{}, &ProcessingError{Op: op, Err: err}
	}

	var bo backoff.BackOff
	if r.NewBackOff != nil {
		bo = r.NewBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 200 * time.Millisecond
		eb.MaxElapsedTime = 30 * time.Second
		bo = eb
	}
	bo = backoff.WithContext(backoff.WithMaxRetries(bo, r.MaxRetries), ctx)

	var out pointcloud.Object3D
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		res, err := r.Next.Transform(ctx, op, obj, params)
		if err == nil {
			out = res
			return nil
		}
		var pe *ProcessingError
		if !errors.As(err, &pe) {
			pe = &ProcessingError{Op: op, Err: err}
		}
		if !pe.Retryable() {
			return backoff.Permanent(pe)
		}
		return pe
	}, bo, func(err error, wait time.Duration) {
		logf("%s attempt %d failed, retrying in %s: %v", op, attempt, wait, err)
	})
	if err != nil {
		return pointcloud.Object3D{}, err
	}
	return out, nil
}

// Source is the read side of a live capture buffer.
type Source interface {
	PointCount() int
	ToObject3D(count int) (pointcloud.Object3D, error)
}

// Sink accepts processed particles back into a live capture buffer.
type Sink interface {
	Reload(ps []pointcloud.Particle) error
}

// RoundTrip copies the current capture out of src, runs op on the copy and
// returns the result. When sink is non-nil and the operation succeeded the
// processed points are written back. On failure the live buffer is left
// untouched.
func RoundTrip(ctx context.Context, p Processor, src Source, sink Sink, op Operation, params Parameters) (pointcloud.Object3D, error) {
	obj, err := src.ToObject3D(src.PointCount())
	if err != nil {
		return pointcloud.Object3D{}, fmt.Errorf("copy capture: %w", err)
	}
	in := len(obj.Vertices)
	out, err := p.Transform(ctx, op, obj, params)
	if err != nil {
		return pointcloud.Object3D{}, err
	}
	if err := out.Validate(); err != nil {
		return pointcloud.Object3D{}, &ProcessingError{Op: op, Err: err}
	}
	logf("%s: %d -> %d vertices", op, in, len(out.Vertices))
	if sink != nil {
		if err := sink.Reload(out.Particles()); err != nil {
			return out, fmt.Errorf("reload capture: %w", err)
		}
	}
	return out, nil
}
