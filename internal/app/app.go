// Package app ties the pose pipeline together: one Orchestrator per process and
// one Session per WebSocket connection.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/asana/internal/classifier"
	"github.com/ayusman/asana/internal/game"
	"github.com/ayusman/asana/internal/landmark"
	"github.com/ayusman/asana/internal/metrics"
	"github.com/ayusman/asana/internal/session"
)

// ErrMalformedMessage is returned for inbound messages that are not {"coords": [...]}.
var ErrMalformedMessage = errors.New("malformed message")

// ErrSessionClosed is returned when a closed session receives a frame.
var ErrSessionClosed = errors.New("session closed")

// Classifier health values reported by ClassifierStatus.
const (
	ClassifierOK          = "ok"
	ClassifierUnavailable = "unavailable"
	ClassifierUnknown     = "unknown"
)

// HoldRecorder persists completed holds.
type HoldRecorder interface {
	RecordHold(ctx context.Context, connID string, hold game.Hold) error
}

// HoldPublisher announces completed holds to other systems.
type HoldPublisher interface {
	PublishHold(ctx context.Context, connID string, hold game.Hold) error
}

// Config holds the dependencies of an Orchestrator.
type Config struct {
	Adapter *classifier.Adapter
	Store   session.Store
	Tracker *game.Tracker

	// Alpha is the smoothing weight of the newest distribution.
	Alpha float64
	// TorsoMultiplier scales the torso length during normalization.
	TorsoMultiplier float64

	// Optional.
	Recorder  HoldRecorder
	Publisher HoldPublisher
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	Clock     func() time.Time

	// ReportTimeout bounds recording and publishing a completed hold.
	ReportTimeout time.Duration
}

// DefaultReportTimeout is used when Config.ReportTimeout is not set.
const DefaultReportTimeout = time.Second

// Orchestrator creates per-connection sessions that share the classifier,
// session store and game rules.
type Orchestrator struct {
	cfg    Config
	log    logrus.FieldLogger
	active atomic.Int64
}

// New creates an Orchestrator, filling optional fields with defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("orchestrator: classifier adapter is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator: session store is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("orchestrator: tracker is required")
	}
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = classifier.DefaultAlpha
	}
	if cfg.TorsoMultiplier <= 0 {
		cfg.TorsoMultiplier = landmark.DefaultTorsoMultiplier
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = DefaultReportTimeout
	}

	return &Orchestrator{cfg: cfg, log: cfg.Logger}, nil
}

// Open starts a game for a new connection. It stores the initial state and
// returns the started event. A store failure is returned as an error.
func (o *Orchestrator) Open(ctx context.Context, connID string) (*Session, game.Event, error) {
	state := o.cfg.Tracker.Start()
	if err := o.cfg.Store.Set(ctx, connID, state); err != nil {
		return nil, game.Event{}, err
	}

	o.active.Add(1)
	s := &Session{
		o:        o,
		connID:   connID,
		smoother: classifier.NewSmoother(o.cfg.Alpha),
		log:      o.log.WithField("conn_id", connID),
	}
	s.log.WithField("target", state.Target).Info("game started")

	return s, game.Started(state.Target), nil
}

// ActiveSessions returns the number of open sessions.
func (o *Orchestrator) ActiveSessions() int {
	return int(o.active.Load())
}

// Metrics returns the orchestrator's counters.
func (o *Orchestrator) Metrics() *metrics.Metrics {
	return o.cfg.Metrics
}

// Tracker returns the game rules.
func (o *Orchestrator) Tracker() *game.Tracker {
	return o.cfg.Tracker
}

// ClassifierStatus reports whether the predictor is reachable.
func (o *Orchestrator) ClassifierStatus(ctx context.Context) string {
	hc, ok := o.cfg.Adapter.Predictor().(classifier.HealthChecker)
	if !ok {
		return ClassifierUnknown
	}
	if err := hc.HealthCheck(ctx); err != nil {
		o.log.WithError(err).Warn("classifier health check failed")
		return ClassifierUnavailable
	}
	return ClassifierOK
}
