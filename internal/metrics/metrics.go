// Package metrics keeps process-wide counters for the pose pipeline.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics counts frames, failures and completed holds. All methods are safe for
// concurrent use.
type Metrics struct {
	totalFrames   atomic.Int64
	totalErrors   atomic.Int64
	totalSuccess  atomic.Int64
	totalLatency  atomic.Int64 // microseconds
	lastFrameTime atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Frames           int64   `json:"frames"`
	Errors           int64   `json:"errors"`
	Successes        int64   `json:"successes"`
	AvgLatencyMS     float64 `json:"avg_classification_latency_ms"`
	LastFrameUnix    int64   `json:"last_frame_unix"`
	ActiveWebSockets int64   `json:"active_websockets"`
	WSMessages       int64   `json:"ws_messages"`
	WSErrors         int64   `json:"ws_errors"`
}

// New creates zeroed metrics.
func New() *Metrics {
	return &Metrics{}
}

// ObserveFrame records one classified frame and its pipeline latency.
func (m *Metrics) ObserveFrame(latency time.Duration) {
	m.totalFrames.Add(1)
	m.totalLatency.Add(latency.Microseconds())
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementErrors()  { m.totalErrors.Add(1) }
func (m *Metrics) IncrementSuccess() { m.totalSuccess.Add(1) }

func (m *Metrics) WebSocketOpened() { m.wsConnections.Add(1) }
func (m *Metrics) WebSocketClosed() { m.wsConnections.Add(-1) }

func (m *Metrics) IncrementWebSocketMessages() { m.wsMessages.Add(1) }
func (m *Metrics) IncrementWebSocketErrors()   { m.wsErrors.Add(1) }

// ActiveWebSockets returns the number of open pose connections.
func (m *Metrics) ActiveWebSockets() int64 {
	return m.wsConnections.Load()
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	frames := m.totalFrames.Load()
	var avg float64
	if frames > 0 {
		avg = float64(m.totalLatency.Load()) / float64(frames) / 1000
	}
	return Snapshot{
		Frames:           frames,
		Errors:           m.totalErrors.Load(),
		Successes:        m.totalSuccess.Load(),
		AvgLatencyMS:     avg,
		LastFrameUnix:    m.lastFrameTime.Load(),
		ActiveWebSockets: m.wsConnections.Load(),
		WSMessages:       m.wsMessages.Load(),
		WSErrors:         m.wsErrors.Load(),
	}
}
