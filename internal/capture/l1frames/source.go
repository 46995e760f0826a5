package l1frames

import "context"

// Source is an external producer of frames, such as a device camera
// session. Frames are delivered on a channel that stays valid across
// Start/Pause/Stop cycles.
type Source interface {
	// Start begins or resumes frame delivery.
	Start(ctx context.Context) error
	// Pause suspends delivery without tearing down the session.
	Pause() error
	// Stop tears down the session.
	Stop() error
	// Frames returns the delivery channel. A closed channel ends delivery;
	// consumers fetch the channel again after the next Start.
	Frames() <-chan *Frame
}
