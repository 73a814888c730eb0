package game

import (
	"errors"
	"time"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

const (
	DefaultNormalDuration = 30 * time.Second
	DefaultEventDuration  = 120 * time.Second
)

var (
	ErrSkullInactive = errors.New("skull event is not active")
	ErrSkullTaken    = errors.New("skull already captured")
)

type SkullPhase int

const (
	PhaseNormal SkullPhase = iota
	PhaseEventActive
)

func (p SkullPhase) String() string {
	if p == PhaseEventActive {
		return "event"
	}
	return "normal"
}

// SkullTimer alternates between a dormant phase and a capture event
// forever. It is not safe for concurrent use; the owner serializes calls.
type SkullTimer struct {
	normal     time.Duration
	event      time.Duration
	phase      SkullPhase
	countdown  float64
	position   net.Vec3
	captured   bool
	capturedBy string
	place      func() net.Vec3

	OnModeActivated   func(state net.SkullModeState)
	OnModeDeactivated func(state net.SkullModeState)
	OnCaptured        func(playerID string)
}

// NewSkullTimer starts in the normal phase. Non-positive durations fall back
// to the defaults; a nil place func uses RandomSkullPoint.
func NewSkullTimer(normal, event time.Duration, place func() net.Vec3) *SkullTimer {
	if normal <= 0 {
		normal = DefaultNormalDuration
	}
	if event <= 0 {
		event = DefaultEventDuration
	}
	if place == nil {
		place = func() net.Vec3 { return RandomSkullPoint(nil) }
	}
	return &SkullTimer{
		normal:    normal,
		event:     event,
		phase:     PhaseNormal,
		countdown: normal.Seconds(),
		place:     place,
	}
}

func (t *SkullTimer) Phase() SkullPhase { return t.phase }

// Tick decrements the countdown by dt seconds and flips the phase when it
// runs out. It reports whether a flip happened.
func (t *SkullTimer) Tick(dt float64) bool {
	t.countdown -= dt
	if t.countdown > 0 {
		return false
	}

	if t.phase == PhaseNormal {
		t.phase = PhaseEventActive
		t.countdown = t.event.Seconds()
		t.position = t.place()
		t.captured = false
		t.capturedBy = ""
		if t.OnModeActivated != nil {
			t.OnModeActivated(t.State())
		}
		return true
	}

	t.phase = PhaseNormal
	t.countdown = t.normal.Seconds()
	t.captured = false
	t.capturedBy = ""
	if t.OnModeDeactivated != nil {
		t.OnModeDeactivated(t.State())
	}
	return true
}

// Capture awards the skull to playerID. The first claim during an event
// wins; later claims get ErrSkullTaken.
func (t *SkullTimer) Capture(playerID string) error {
	if t.phase != PhaseEventActive {
		return ErrSkullInactive
	}
	if t.captured {
		return ErrSkullTaken
	}
	t.captured = true
	t.capturedBy = playerID
	if t.OnCaptured != nil {
		t.OnCaptured(playerID)
	}
	return nil
}

func (t *SkullTimer) State() net.SkullModeState {
	return net.SkullModeState{
		IsActive:        t.phase == PhaseEventActive,
		Countdown:       t.countdown,
		SkullPosition:   t.position,
		IsSkullCaptured: t.captured,
		CapturedBy:      t.capturedBy,
	}
}
