package l3accumulate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionTransitions(t *testing.T) {
	type op func(s *Session) error
	start := func(s *Session) error { return s.Start() }
	begin := func(s *Session) error { return s.BeginCapture() }
	pause := func(s *Session) error { return s.Pause() }
	flush := func(s *Session) error { s.Flush(); return nil }
	stop := func(s *Session) error { s.Stop(); return nil }

	tests := []struct {
		name    string
		ops     []op
		want    State
		wantErr bool
	}{
		{"start", []op{start}, StateRunning, false},
		{"begin capture", []op{start, begin}, StateAccumulating, false},
		{"pause while accumulating", []op{start, begin, pause}, StatePaused, false},
		{"pause while running", []op{start, pause}, StatePaused, false},
		{"resume", []op{start, begin, pause, start}, StateRunning, false},
		{"flush from accumulating", []op{start, begin, flush}, StateRunning, false},
		{"flush from idle", []op{flush}, StateRunning, false},
		{"flush from paused", []op{start, pause, flush}, StateRunning, false},
		{"stop", []op{start, begin, stop}, StateIdle, false},
		{"begin from idle", []op{begin}, StateIdle, true},
		{"begin from paused", []op{start, pause, begin}, StatePaused, true},
		{"begin twice", []op{start, begin, begin}, StateAccumulating, true},
		{"start twice", []op{start, start}, StateRunning, true},
		{"pause from idle", []op{pause}, StateIdle, true},
		{"pause twice", []op{start, pause, pause}, StatePaused, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(nil)
			var err error
			for _, o := range tt.ops {
				err = o(s)
			}
			assert.Equal(t, tt.want, s.State())
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionObserver(t *testing.T) {
	var seen []string
	s := NewSession(func(from, to State) {
		seen = append(seen, from.String()+">"+to.String())
	})
	_ = s.Start()
	_ = s.BeginCapture()
	s.Flush()
	s.Stop()
	s.Stop()

	assert.Equal(t, []string{
		"idle>running",
		"running>accumulating",
		"accumulating>flushed",
		"flushed>running",
		"running>idle",
	}, seen)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "state(9)", State(9).String())
}
