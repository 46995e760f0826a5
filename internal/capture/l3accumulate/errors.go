package l3accumulate

import "errors"

var (
	// ErrUnableToStartScan is surfaced when no particle buffer can be
	// allocated for a capture session.
	ErrUnableToStartScan = errors.New("unable to start scan")

	// ErrFrameDataMissing marks a frame delivered without depth or
	// confidence. The frame is skipped; engine state is untouched.
	ErrFrameDataMissing = errors.New("frame data missing")

	// ErrStaleView is returned by a View whose buffer generation was
	// replaced by a flush, clear or reload.
	ErrStaleView = errors.New("particle view is stale")

	// ErrNoBuffer is returned when accumulation is attempted after
	// ClearAll or a failed flush.
	ErrNoBuffer = errors.New("particle buffer released")
)
