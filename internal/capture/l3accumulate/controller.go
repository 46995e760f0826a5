package l3accumulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/depthscan/internal/capture/l1frames"
	"github.com/banshee-data/depthscan/internal/capture/l2sampling"
)

// ErrControllerStopped is returned by commands sent after Run has exited.
var ErrControllerStopped = errors.New("capture controller stopped")

type commandKind int

const (
	cmdStart commandKind = iota
	cmdBeginCapture
	cmdPause
	cmdFlush
	cmdStop
	cmdClearAll
	cmdSetMaxPoints
	cmdSetConfidence
	cmdSetRates
)

var commandNames = map[commandKind]string{
	cmdStart:         "start",
	cmdBeginCapture:  "beginCapture",
	cmdPause:         "pause",
	cmdFlush:         "flush",
	cmdStop:          "stop",
	cmdClearAll:      "clearAll",
	cmdSetMaxPoints:  "setMaxPoints",
	cmdSetConfidence: "setConfidence",
	cmdSetRates:      "setRates",
}

type command struct {
	kind  commandKind
	n     int
	conf  l1frames.Confidence
	h, v  l2sampling.SamplingRate
	reply chan error
}

// Status is a snapshot of the session and engine.
type Status struct {
	State string      `json:"state"`
	Stats EngineStats `json:"stats"`
}

// Controller is the single owner of an Engine. Lifecycle commands and
// incoming frames are consumed by one goroutine (Run), so state changes
// never interleave with a frame being written. Readers use views and do
// not go through the controller.
type Controller struct {
	engine  *Engine
	session *Session
	source  l1frames.Source
	cmds    chan command
	done    chan struct{}
}

// NewController wires an engine to a frame source. Call Run to start
// consuming.
func NewController(engine *Engine, source l1frames.Source) *Controller {
	c := &Controller{
		engine: engine,
		source: source,
		cmds:   make(chan command),
		done:   make(chan struct{}),
	}
	c.session = NewSession(func(from, to State) {
		logf("session %s -> %s", from, to)
	})
	return c
}

// Engine returns the owned engine.
func (c *Controller) Engine() *Engine { return c.engine }

// View returns a fresh read-only view of the current buffer.
func (c *Controller) View() *View { return c.engine.View() }

// State returns the session state.
func (c *Controller) State() State { return c.session.State() }

// Status returns the session state and engine statistics.
func (c *Controller) Status() Status {
	return Status{State: c.session.State().String(), Stats: c.engine.Stats()}
}

// Run consumes commands and frames until ctx is cancelled, then stops the
// frame source. Per-frame failures are logged and do not end the loop.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer func() {
		c.engine.SetAccumulating(false)
		if err := c.source.Stop(); err != nil {
			logf("stopping frame source: %v", err)
		}
	}()

	frames := c.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			err := c.handle(ctx, cmd)
			if err == nil && (cmd.kind == cmdStart || cmd.kind == cmdFlush) {
				frames = c.source.Frames()
			}
			cmd.reply <- err
		case f, ok := <-frames:
			if !ok {
				// A nil channel blocks, parking this case until the
				// source is started again.
				logf("frame source closed its channel")
				frames = nil
				continue
			}
			if f == nil {
				continue
			}
			if _, err := c.engine.ProcessFrame(ctx, f); err != nil {
				if errors.Is(err, ErrFrameDataMissing) {
					if c.engine.debug {
						logf("frame %d skipped: %v", f.Seq, err)
					}
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logf("frame %d: %v", f.Seq, err)
			}
		}
	}
}

func (c *Controller) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdStart:
		if err := c.session.Start(); err != nil {
			return err
		}
		if err := c.source.Start(ctx); err != nil {
			c.session.Stop()
			return fmt.Errorf("start frame source: %w", err)
		}
		return nil

	case cmdBeginCapture:
		if c.session.State() != StateRunning {
			return c.session.BeginCapture()
		}
		if err := c.engine.EnsureBuffer(); err != nil {
			return err
		}
		if err := c.session.BeginCapture(); err != nil {
			return err
		}
		c.engine.SetAccumulating(true)
		return nil

	case cmdPause:
		if err := c.session.Pause(); err != nil {
			return err
		}
		c.engine.SetAccumulating(false)
		return c.source.Pause()

	case cmdFlush:
		prev := c.session.State()
		err := c.engine.Flush()
		c.session.Flush()
		if prev == StateIdle || prev == StatePaused {
			if serr := c.source.Start(ctx); serr != nil {
				return errors.Join(err, fmt.Errorf("start frame source: %w", serr))
			}
		}
		return err

	case cmdStop:
		c.engine.SetAccumulating(false)
		c.session.Stop()
		return c.source.Stop()

	case cmdClearAll:
		c.session.Stop()
		c.engine.ClearAll()
		return c.source.Stop()

	case cmdSetMaxPoints:
		return c.engine.SetMaxPoints(cmd.n)

	case cmdSetConfidence:
		c.engine.SetConfidenceThreshold(cmd.conf)
		return nil

	case cmdSetRates:
		return c.engine.SetSamplingRates(cmd.h, cmd.v)
	}
	return fmt.Errorf("unknown command %d", cmd.kind)
}

func (c *Controller) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		if err != nil {
			return fmt.Errorf("%s: %w", commandNames[cmd.kind], err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start moves the session to Running and starts the frame source.
func (c *Controller) Start(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdStart})
}

// BeginCapture enables accumulation. It reallocates the buffer if none is
// held and reports ErrUnableToStartScan when that fails.
func (c *Controller) BeginCapture(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdBeginCapture})
}

// Pause suspends accumulation and the frame source, keeping the buffer.
func (c *Controller) Pause(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdPause})
}

// Flush resets the buffer and leaves the session Running.
func (c *Controller) Flush(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdFlush})
}

// Stop tears down the frame source. The buffer is retained.
func (c *Controller) Stop(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdStop})
}

// ClearAll stops the session and releases the buffer.
func (c *Controller) ClearAll(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdClearAll})
}

// SetMaxPoints sets the capacity applied at the next flush.
func (c *Controller) SetMaxPoints(ctx context.Context, n int) error {
	return c.send(ctx, command{kind: cmdSetMaxPoints, n: n})
}

// SetConfidenceThreshold changes the minimum accepted sample confidence.
func (c *Controller) SetConfidenceThreshold(ctx context.Context, conf l1frames.Confidence) error {
	return c.send(ctx, command{kind: cmdSetConfidence, conf: conf})
}

// SetSamplingRates changes the motion gate sensitivity.
func (c *Controller) SetSamplingRates(ctx context.Context, horizontal, vertical l2sampling.SamplingRate) error {
	return c.send(ctx, command{kind: cmdSetRates, h: horizontal, v: vertical})
}
