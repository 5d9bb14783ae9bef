package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/asana/internal/classifier"
	"github.com/ayusman/asana/internal/feature"
	"github.com/ayusman/asana/internal/game"
	"github.com/ayusman/asana/internal/landmark"
)

// Session processes the frames of one connection, in order.
type Session struct {
	o        *Orchestrator
	connID   string
	smoother *classifier.Smoother
	log      logrus.FieldLogger

	mu     sync.Mutex
	closed bool
}

type inbound struct {
	Coords *[]float64 `json:"coords"`
}

// ConnID returns the connection id the session is keyed by.
func (s *Session) ConnID() string { return s.connID }

// ProcessMessage decodes a raw {"coords": [...]} message and processes it.
// Malformed messages produce an error event.
func (s *Session) ProcessMessage(ctx context.Context, data []byte) (game.Event, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return s.reject(fmt.Errorf("%w: %v", ErrMalformedMessage, err)), nil
	}
	if msg.Coords == nil {
		return s.reject(fmt.Errorf("%w: missing coords", ErrMalformedMessage)), nil
	}
	return s.Process(ctx, *msg.Coords)
}

// Process runs one frame through the pipeline:
//
//  1. Parse and normalize the landmarks, then build the feature vector.
//  2. Classify it and fold the distribution into the connection's smoother.
//  3. Advance the stored game state with the smoothed label.
//
// Protocol and classification failures come back as error events and leave the
// stored state untouched. Store failures are returned as errors.
func (s *Session) Process(ctx context.Context, coords []float64) (game.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return game.Event{}, ErrSessionClosed
	}

	o := s.o
	start := o.cfg.Clock()

	frame, err := landmark.FromCoords(coords)
	if err != nil {
		return s.reject(err), nil
	}
	features := feature.Extract(frame, o.cfg.TorsoMultiplier)

	res, err := o.cfg.Adapter.Classify(ctx, features)
	if err != nil {
		return s.reject(err), nil
	}
	smoothed := s.smoother.Update(res.Probabilities)
	label, err := o.cfg.Adapter.Codec().Decode(classifier.Argmax(smoothed))
	if err != nil {
		return s.reject(fmt.Errorf("%w: %v", classifier.ErrClassification, err)), nil
	}

	state, err := o.cfg.Store.Get(ctx, s.connID)
	if err != nil {
		o.cfg.Metrics.IncrementErrors()
		return game.Event{}, err
	}

	now := o.cfg.Clock()
	next, hold := o.cfg.Tracker.Observe(state, label, coords, now)
	if err := o.cfg.Store.Set(ctx, s.connID, next); err != nil {
		o.cfg.Metrics.IncrementErrors()
		return game.Event{}, err
	}
	o.cfg.Metrics.ObserveFrame(o.cfg.Clock().Sub(start))

	if hold == nil {
		s.log.WithFields(logrus.Fields{
			"pose":    label,
			"instant": res.Label,
			"target":  next.Target,
		}).Debug("frame classified")
		return game.Progress(label, next.Target), nil
	}

	o.cfg.Metrics.IncrementSuccess()
	s.log.WithFields(logrus.Fields{
		"target":   hold.Target,
		"duration": hold.Duration(),
		"frames":   len(hold.Frames),
		"next":     next.Target,
	}).Info("pose held")
	s.report(ctx, *hold)

	return game.Success(label, hold.Target, o.cfg.Tracker.Threshold()), nil
}

// report hands a completed hold to the optional recorder and publisher within
// ReportTimeout. Their failures are logged and never reach the client.
func (s *Session) report(ctx context.Context, hold game.Hold) {
	ctx, cancel := context.WithTimeout(ctx, s.o.cfg.ReportTimeout)
	defer cancel()

	if r := s.o.cfg.Recorder; r != nil {
		if err := r.RecordHold(ctx, s.connID, hold); err != nil {
			s.log.WithError(err).Warn("failed to record hold")
		}
	}
	if p := s.o.cfg.Publisher; p != nil {
		if err := p.PublishHold(ctx, s.connID, hold); err != nil {
			s.log.WithError(err).Warn("failed to publish hold")
		}
	}
}

func (s *Session) reject(err error) game.Event {
	s.o.cfg.Metrics.IncrementErrors()
	entry := s.log.WithError(err)
	if errors.Is(err, classifier.ErrClassification) {
		entry.Warn("classification failed")
	} else {
		entry.Debug("rejected frame")
	}
	return game.Error(err)
}

// Close deletes the connection's state. Only the first call has an effect.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.o.active.Add(-1)
	s.smoother.Reset()

	if err := s.o.cfg.Store.Delete(ctx, s.connID); err != nil {
		s.log.WithError(err).Warn("failed to delete session state")
		return err
	}
	s.log.Info("session closed")
	return nil
}
