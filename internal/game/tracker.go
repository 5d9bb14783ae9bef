// Package game implements the pose-hold game: target selection and the
// frame-driven hold timer.
package game

import (
	"time"
)

// DefaultHoldThreshold is how long a target pose must be held.
const DefaultHoldThreshold = 5 * time.Second

// State is the per-connection game state. A zero StartedAt means the player
// is not currently holding the target.
type State struct {
	Target     string      `json:"target" msgpack:"target"`
	StartedAt  time.Time   `json:"started_at,omitempty" msgpack:"started_at,omitempty"`
	HeldFrames [][]float64 `json:"held_frames,omitempty" msgpack:"held_frames,omitempty"`
}

// Holding reports whether a hold is in progress.
func (s State) Holding() bool {
	return !s.StartedAt.IsZero()
}

// Hold describes a completed hold.
type Hold struct {
	Target    string
	StartedAt time.Time
	EndedAt   time.Time
	Frames    [][]float64
}

// Duration returns how long the hold lasted.
func (h Hold) Duration() time.Duration {
	return h.EndedAt.Sub(h.StartedAt)
}

// Tracker advances game states one classified frame at a time.
// Timing is lazy: a hold only completes when a frame arrives after the threshold.
type Tracker struct {
	threshold time.Duration
	targets   *Targets
}

// NewTracker creates a Tracker. A non-positive threshold uses DefaultHoldThreshold.
func NewTracker(threshold time.Duration, targets *Targets) *Tracker {
	if threshold <= 0 {
		threshold = DefaultHoldThreshold
	}
	return &Tracker{threshold: threshold, targets: targets}
}

// Threshold returns the hold duration required for success.
func (t *Tracker) Threshold() time.Duration { return t.threshold }

// Targets returns the tracker's target source.
func (t *Tracker) Targets() *Targets { return t.targets }

// Start returns a fresh idle state with a random target.
func (t *Tracker) Start() State {
	return State{Target: t.targets.Pick()}
}

// Observe applies one classified frame to s and returns the next state. When the
// frame completes a hold, the returned Hold is non-nil and the next state is idle
// with a new target. s itself is never modified.
func (t *Tracker) Observe(s State, label string, coords []float64, now time.Time) (State, *Hold) {
	if label != s.Target {
		return State{Target: s.Target}, nil
	}

	next := State{Target: s.Target, StartedAt: s.StartedAt}
	if !s.Holding() {
		next.StartedAt = now
	} else {
		next.HeldFrames = make([][]float64, len(s.HeldFrames), len(s.HeldFrames)+1)
		copy(next.HeldFrames, s.HeldFrames)
	}
	next.HeldFrames = append(next.HeldFrames, append([]float64(nil), coords...))

	if now.Sub(next.StartedAt) < t.threshold {
		return next, nil
	}

	hold := &Hold{
		Target:    s.Target,
		StartedAt: next.StartedAt,
		EndedAt:   now,
		Frames:    next.HeldFrames,
	}
	return State{Target: t.targets.PickExcept(s.Target)}, hold
}
