package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ayusman/asana/internal/classifier"
	"github.com/ayusman/asana/internal/game"
	"github.com/ayusman/asana/internal/landmark"
	"github.com/ayusman/asana/internal/session"
)

var testPoses = []string{"chair", "tree", "warrior"}

type firstSource struct{}

func (firstSource) IntN(n int) int { return 0 }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// labelPredictor answers with a one-hot distribution for the current label.
type labelPredictor struct {
	mu    sync.Mutex
	label string
}

func (p *labelPredictor) Set(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.label = label
}

func (p *labelPredictor) Predict(ctx context.Context, features []float64) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range testPoses {
		if l == p.label {
			return classifier.OneHot(len(testPoses), i), nil
		}
	}
	return nil, errors.New("unknown label")
}

type holdSink struct {
	mu    sync.Mutex
	holds []game.Hold
	err   error
}

func (h *holdSink) RecordHold(ctx context.Context, connID string, hold game.Hold) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.holds = append(h.holds, hold)
	return h.err
}

func (h *holdSink) PublishHold(ctx context.Context, connID string, hold game.Hold) error {
	return h.RecordHold(ctx, connID, hold)
}

// flakyStore fails every call once broken is set.
type flakyStore struct {
	session.Store
	broken bool
}

func (f *flakyStore) Get(ctx context.Context, id string) (game.State, error) {
	if f.broken {
		return game.State{}, session.ErrStoreUnavailable
	}
	return f.Store.Get(ctx, id)
}

func (f *flakyStore) Set(ctx context.Context, id string, s game.State) error {
	if f.broken {
		return session.ErrStoreUnavailable
	}
	return f.Store.Set(ctx, id, s)
}

type testEnv struct {
	orch      *Orchestrator
	predictor *labelPredictor
	store     *flakyStore
	clock     *fakeClock
	sink      *holdSink
}

func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()

	codec, err := classifier.NewLabelCodec(testPoses)
	if err != nil {
		t.Fatalf("NewLabelCodec() error = %v", err)
	}
	targets, err := game.NewTargets(testPoses, firstSource{})
	if err != nil {
		t.Fatalf("NewTargets() error = %v", err)
	}
	tracker := game.NewTracker(5*time.Second, targets)

	env := &testEnv{
		predictor: &labelPredictor{label: "chair"},
		store:     &flakyStore{Store: session.NewMemoryStore(tracker)},
		clock:     &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		sink:      &holdSink{},
	}
	logger, _ := test.NewNullLogger()

	cfg := Config{
		Adapter:  classifier.NewAdapter(env.predictor, codec, 4),
		Store:    env.store,
		Tracker:  tracker,
		Alpha:    1,
		Recorder: env.sink,
		Logger:   logger,
		Clock:    env.clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	env.orch, err = New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return env
}

func standingCoords() []float64 {
	return landmark.StandingLandmarks().Coords()
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestOrchestrator_Open(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, ev, err := env.orch.Open(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if ev.Kind != game.EventStarted || ev.Target != "chair" || ev.Message != game.StartedMessage {
		t.Errorf("unexpected started event: %+v", ev)
	}
	if sess.ConnID() != "conn-1" {
		t.Errorf("expected conn-1, got %s", sess.ConnID())
	}
	if env.orch.ActiveSessions() != 1 {
		t.Errorf("expected 1 active session, got %d", env.orch.ActiveSessions())
	}

	state, _ := env.store.Get(ctx, "conn-1")
	if state.Target != "chair" {
		t.Errorf("expected stored target chair, got %q", state.Target)
	}
}

func TestSession_HoldToSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _, err := env.orch.Open(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		ev, err := sess.Process(ctx, standingCoords())
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if ev.Kind != game.EventProgress || ev.Pose != "chair" || ev.Target != "chair" {
			t.Fatalf("frame %d: unexpected event %+v", i, ev)
		}
		env.clock.Advance(time.Second)
	}

	ev, err := sess.Process(ctx, standingCoords())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ev.Kind != game.EventSuccess || ev.Target != "chair" || ev.Effect != "success" || ev.Message != "Held 5 seconds." {
		t.Fatalf("expected success on chair, got %+v", ev)
	}

	if len(env.sink.holds) != 1 || len(env.sink.holds[0].Frames) != 6 {
		t.Errorf("expected one recorded hold with 6 frames, got %+v", env.sink.holds)
	}

	env.clock.Advance(time.Second)
	ev, err = sess.Process(ctx, standingCoords())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ev.Kind != game.EventProgress || ev.Target == "chair" {
		t.Errorf("expected progress towards a new target, got %+v", ev)
	}

	if s := env.orch.Metrics().Snapshot(); s.Frames != 7 || s.Successes != 1 {
		t.Errorf("unexpected metrics: %+v", s)
	}
}

func TestSession_MismatchResetsHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")

	for i := 0; i < 3; i++ {
		sess.Process(ctx, standingCoords())
		env.clock.Advance(time.Second)
	}
	env.predictor.Set("tree")
	ev, _ := sess.Process(ctx, standingCoords())
	if ev.Pose != "tree" || ev.Target != "chair" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	state, _ := env.store.Get(ctx, "conn-1")
	if state.Holding() || len(state.HeldFrames) != 0 {
		t.Errorf("expected hold to be reset, got %+v", state)
	}
}

func TestSession_ProtocolErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")
	sess.Process(ctx, standingCoords())
	before, _ := env.store.Get(ctx, "conn-1")

	tests := []struct {
		name    string
		message string
		want    error
	}{
		{"short frame", `{"coords":[1,2,3]}`, landmark.ErrInvalidFrameShape},
		{"missing coords", `{"points":[]}`, ErrMalformedMessage},
		{"invalid json", `{"coords":`, ErrMalformedMessage},
		{"wrong type", `{"coords":"abc"}`, ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := sess.ProcessMessage(ctx, []byte(tt.message))
			if err != nil {
				t.Fatalf("ProcessMessage() error = %v", err)
			}
			if ev.Kind != game.EventError || ev.Error == "" {
				t.Fatalf("expected error event, got %+v", ev)
			}
			if !strings.Contains(ev.Error, tt.want.Error()) {
				t.Errorf("expected %q in %q", tt.want, ev.Error)
			}
		})
	}

	after, _ := env.store.Get(ctx, "conn-1")
	if !after.StartedAt.Equal(before.StartedAt) || len(after.HeldFrames) != len(before.HeldFrames) {
		t.Errorf("state changed by rejected frames: before %+v, after %+v", before, after)
	}
}

func TestSession_ValidMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")

	ev, err := sess.ProcessMessage(ctx, []byte(`{"coords":[`+strings.Repeat("0.5,", 38)+`0.5]}`))
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if ev.Kind != game.EventProgress {
		t.Errorf("expected progress, got %+v", ev)
	}
}

func TestSession_ClassificationFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")
	sess.Process(ctx, standingCoords())

	env.predictor.Set("cobra")
	ev, err := sess.Process(ctx, standingCoords())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ev.Kind != game.EventError || !strings.Contains(ev.Error, classifier.ErrClassification.Error()) {
		t.Errorf("expected classification error event, got %+v", ev)
	}

	state, _ := env.store.Get(ctx, "conn-1")
	if !state.Holding() || len(state.HeldFrames) != 1 {
		t.Errorf("expected state to be untouched, got %+v", state)
	}
}

func TestSession_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")

	env.store.broken = true
	if _, err := sess.Process(ctx, standingCoords()); !errors.Is(err, session.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, _, err := env.orch.Open(ctx, "conn-2"); !errors.Is(err, session.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable from Open, got %v", err)
	}
}

func TestSession_RecorderFailureIsNotSurfaced(t *testing.T) {
	env := newTestEnv(t)
	env.sink.err = errors.New("disk full")
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")

	sess.Process(ctx, standingCoords())
	env.clock.Advance(5 * time.Second)
	ev, err := sess.Process(ctx, standingCoords())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ev.Kind != game.EventSuccess {
		t.Errorf("expected success despite recorder failure, got %+v", ev)
	}
}

func TestSession_Smoothing(t *testing.T) {
	env := newTestEnv(t)
	env.orch.cfg.Alpha = 0.3
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")

	sess.Process(ctx, standingCoords())
	env.predictor.Set("tree")

	// One disagreeing frame is not enough to flip the smoothed label.
	ev, _ := sess.Process(ctx, standingCoords())
	if ev.Pose != "chair" {
		t.Errorf("expected smoothed pose to stay chair, got %q", ev.Pose)
	}

	ev, _ = sess.Process(ctx, standingCoords())
	ev, _ = sess.Process(ctx, standingCoords())
	if ev.Pose != "tree" {
		t.Errorf("expected smoothed pose to converge to tree, got %q", ev.Pose)
	}
}

func TestSession_Close(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")
	sess.Process(ctx, standingCoords())

	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if env.orch.ActiveSessions() != 0 {
		t.Errorf("expected 0 active sessions, got %d", env.orch.ActiveSessions())
	}

	mem := env.store.Store.(*session.MemoryStore)
	if mem.Len() != 0 {
		t.Errorf("expected state to be deleted, %d left", mem.Len())
	}

	if _, err := sess.Process(ctx, standingCoords()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestOrchestrator_ClassifierStatus(t *testing.T) {
	env := newTestEnv(t)
	if got := env.orch.ClassifierStatus(context.Background()); got != ClassifierUnknown {
		t.Errorf("expected unknown for predictor without health check, got %s", got)
	}
}

// stalledPublisher blocks until its context ends.
type stalledPublisher struct {
	err chan error
}

func (p *stalledPublisher) PublishHold(ctx context.Context, connID string, hold game.Hold) error {
	<-ctx.Done()
	p.err <- ctx.Err()
	return ctx.Err()
}

func TestSession_SlowPublisherIsBounded(t *testing.T) {
	pub := &stalledPublisher{err: make(chan error, 1)}
	env := newTestEnv(t, func(c *Config) {
		c.Publisher = pub
		c.ReportTimeout = 20 * time.Millisecond
	})
	ctx := context.Background()
	sess, _, _ := env.orch.Open(ctx, "conn-1")

	sess.Process(ctx, standingCoords())
	env.clock.Advance(5 * time.Second)

	start := time.Now()
	ev, err := sess.Process(ctx, standingCoords())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if ev.Kind != game.EventSuccess {
		t.Errorf("expected success, got %+v", ev)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Process() took %s with a stalled publisher", elapsed)
	}
	if err := <-pub.err; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected publisher deadline, got %v", err)
	}
	if len(env.sink.holds) != 1 {
		t.Errorf("expected hold to be recorded, got %d", len(env.sink.holds))
	}

	// The next frame is processed normally.
	if _, err := sess.Process(ctx, standingCoords()); err != nil {
		t.Errorf("Process() after slow publish error = %v", err)
	}
}
