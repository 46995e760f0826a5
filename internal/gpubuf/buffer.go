// Package gpubuf provides a fixed-capacity, typed block of memory shared
// with a graphics adapter. The buffer never resizes; indices outside
// [0, Capacity) are programmer errors and panic.
package gpubuf

import (
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// ErrCreation is returned when a buffer cannot be allocated, most often
// because the requested size exceeds the configured ceiling.
var ErrCreation = errors.New("buffer creation failed")

// Options configure buffer creation.
type Options struct {
	// Label names the buffer in logs and errors.
	Label string
	// MaxBytes is the allocation ceiling. Zero means unlimited.
	MaxBytes int64
}

// Buffer is a fixed-capacity array of T. It is not safe for concurrent
// mutation; the owner serialises writers and readers.
type Buffer[T any] struct {
	label  string
	data   []T
	stride int
}

// New allocates a zeroed buffer holding capacity elements of T.
func New[T any](capacity int, opts Options) (*Buffer[T], error) {
	var zero T
	stride := int(unsafe.Sizeof(zero))
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %s: capacity must be positive, got %d", ErrCreation, opts.Label, capacity)
	}
	if stride > 0 && capacity > math.MaxInt/stride {
		return nil, fmt.Errorf("%w: %s: %d elements of %d bytes overflows", ErrCreation, opts.Label, capacity, stride)
	}
	size := int64(capacity) * int64(stride)
	if opts.MaxBytes > 0 && size > opts.MaxBytes {
		return nil, fmt.Errorf("%w: %s: %d bytes exceeds ceiling of %d bytes", ErrCreation, opts.Label, size, opts.MaxBytes)
	}
	return &Buffer[T]{
		label:  opts.Label,
		data:   make([]T, capacity),
		stride: stride,
	}, nil
}

// Label returns the buffer's label.
func (b *Buffer[T]) Label() string { return b.label }

// Capacity returns the number of element slots.
func (b *Buffer[T]) Capacity() int { return len(b.data) }

// Stride returns the size in bytes of one element.
func (b *Buffer[T]) Stride() int { return b.stride }

// ByteSize returns the total allocation in bytes.
func (b *Buffer[T]) ByteSize() int64 { return int64(len(b.data)) * int64(b.stride) }

func (b *Buffer[T]) checkIndex(i int) {
	if i < 0 || i >= len(b.data) {
		panic(fmt.Sprintf("gpubuf: %s: index %d out of range [0, %d)", b.label, i, len(b.data)))
	}
}

// Write overwrites the whole element at index i.
func (b *Buffer[T]) Write(i int, v T) {
	b.checkIndex(i)
	b.data[i] = v
}

// Read returns a copy of the element at index i.
func (b *Buffer[T]) Read(i int) T {
	b.checkIndex(i)
	return b.data[i]
}

// Assign overwrites the buffer from offset 0 with values and zeroes every
// slot after them.
func (b *Buffer[T]) Assign(values []T) {
	if len(values) > len(b.data) {
		panic(fmt.Sprintf("gpubuf: %s: assign of %d elements exceeds capacity %d", b.label, len(values), len(b.data)))
	}
	n := copy(b.data, values)
	clear(b.data[n:])
}

// Snapshot copies the first count elements into a newly allocated slice.
// It blocks for the duration of the copy, which for millions of elements
// is measured in milliseconds.
func (b *Buffer[T]) Snapshot(count int) []T {
	if count < 0 || count > len(b.data) {
		panic(fmt.Sprintf("gpubuf: %s: snapshot of %d elements out of range [0, %d]", b.label, count, len(b.data)))
	}
	out := make([]T, count)
	copy(out, b.data[:count])
	return out
}

// Bytes exposes the raw backing memory for upload to a graphics adapter.
// The slice aliases the buffer and must not be retained past the next
// mutation.
func (b *Buffer[T]) Bytes() []byte {
	if len(b.data) == 0 || b.stride == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.data[0])), len(b.data)*b.stride)
}
