package game

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrNoPoses is returned when a pose set is empty.
var ErrNoPoses = errors.New("pose set is empty")

// RandomSource draws uniform integers in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource returns a RandomSource backed by the runtime's global generator.
func DefaultSource() RandomSource { return globalSource{} }

// Targets draws target poses from a fixed pose set.
type Targets struct {
	mu    sync.Mutex
	poses []string
	rnd   RandomSource
}

// NewTargets creates a Targets drawing from poses. A nil source uses DefaultSource.
func NewTargets(poses []string, rnd RandomSource) (*Targets, error) {
	if len(poses) == 0 {
		return nil, ErrNoPoses
	}
	if rnd == nil {
		rnd = DefaultSource()
	}
	return &Targets{poses: append([]string(nil), poses...), rnd: rnd}, nil
}

// Poses returns a copy of the pose set.
func (t *Targets) Poses() []string {
	return append([]string(nil), t.poses...)
}

// Pick returns a pose chosen uniformly from the whole set.
func (t *Targets) Pick() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.poses[t.rnd.IntN(len(t.poses))]
}

// PickExcept returns a pose chosen uniformly from the set minus prev.
// When nothing else is left it returns prev.
func (t *Targets) PickExcept(prev string) string {
	candidates := make([]string, 0, len(t.poses))
	for _, p := range t.poses {
		if p != prev {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return prev
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return candidates[t.rnd.IntN(len(candidates))]
}
